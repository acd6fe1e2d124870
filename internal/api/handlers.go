package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lucasnobrega7/lobe-chat/internal/auth"
	"github.com/lucasnobrega7/lobe-chat/internal/blob"
	"github.com/lucasnobrega7/lobe-chat/internal/config"
	"github.com/lucasnobrega7/lobe-chat/internal/models"
	"github.com/lucasnobrega7/lobe-chat/internal/service/ai"
	"github.com/lucasnobrega7/lobe-chat/internal/service/chatstore"
	"github.com/lucasnobrega7/lobe-chat/internal/worker"
)

// Streamer invokes a resolved model and drains its token stream.
type Streamer interface {
	StreamChat(ctx context.Context, opt *ai.Option, messages []*models.Message, onChunk func(string) error) (*ai.StreamResult, error)
}

// RateLimiter gates chat completions per user.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

// Handler wires HTTP routes to the chat store, the model services and blob
// storage.
type Handler struct {
	store    *chatstore.Service
	auth     *auth.Service
	registry *ai.Registry
	streamer Streamer
	limiter  RateLimiter
	blobs    blob.Store
	pool     *worker.Pool
	cfg      *config.Config
}

// NewHandler constructs a Handler instance.
func NewHandler(store *chatstore.Service, authService *auth.Service, registry *ai.Registry, streamer Streamer, limiter RateLimiter, blobs blob.Store, pool *worker.Pool, cfg *config.Config) *Handler {
	return &Handler{
		store:    store,
		auth:     authService,
		registry: registry,
		streamer: streamer,
		limiter:  limiter,
		blobs:    blobs,
		pool:     pool,
		cfg:      cfg,
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)
	api.POST("/v1/chat", h.publicChat)

	authMW := h.auth.Middleware()
	private := api.Group("")
	private.Use(authMW, h.auth.CSRFMiddleware())
	private.POST("/chat", h.chat)
	private.GET("/chats", h.listChats)
	private.POST("/chats", h.createChat)
	private.PATCH("/chats/:chat_id", h.renameChat)
	private.DELETE("/chats/:chat_id", h.deleteChat)
	private.GET("/chats/:chat_id/messages", h.listChatMessages)
	private.GET("/chats/:chat_id/attachments", h.listChatAttachments)
	private.GET("/settings", h.getSettings)
	private.PATCH("/settings", h.updateSettings)
	private.POST("/settings/api-key", h.generateAPIKey)
	private.GET("/models", h.listModels)
	private.POST("/upload", h.uploadFile)
	private.POST("/logout", h.logoutUser)
	private.DELETE("/users/me", h.deleteUser)
}

// User create&login interface
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.store.RegisterUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.store.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, chatstore.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		storeError(c, err)
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), id); err != nil {
		log.WithError(err).Error("revoke user tokens failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if err := h.store.DeleteUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		storeError(c, err)
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}

// storeError maps a chat store failure onto a response. Caller mistakes keep
// their message; store faults are logged and masked behind a generic body.
func storeError(c *gin.Context, err error) {
	var input *chatstore.InputError
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &input):
		c.JSON(http.StatusBadRequest, gin.H{"error": input.Error()})
	default:
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("store operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathChatID(c *gin.Context) (int64, bool) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return chatID, true
}
