package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	userIDContextKey    = "auth_user_id"
	authTokenContextKey = "auth_token"
)

// Middleware resolves the session token from the Authorization header or the
// session cookie and stores the authenticated user on the request context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionToken := s.requestToken(c)
		if sessionToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), sessionToken)
		if err != nil {
			log.WithError(err).WithField("path", c.Request.URL.Path).Debug("session rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Set(authTokenContextKey, sessionToken)
		c.Next()
	}
}

// UserIDFromContext retrieves the authenticated user id from the gin context.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok
}

// AuthTokenFromContext retrieves the session token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

// requestToken prefers an explicit bearer header over the session cookie.
func (s *Service) requestToken(c *gin.Context) string {
	if token := bearerToken(c); token != "" {
		return token
	}
	if token, err := c.Cookie(s.cfg.CookieName); err == nil {
		return token
	}
	return ""
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader(authHeaderName)
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("bearer "):])
}
