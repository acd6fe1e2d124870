package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lucasnobrega7/lobe-chat/internal/models"
	"github.com/lucasnobrega7/lobe-chat/internal/service/chatstore"
)

func (h *Handler) listChats(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chats, err := h.store.ListChats(c.Request.Context(), userID)
	if err != nil {
		storeError(c, err)
		return
	}
	if chats == nil {
		chats = make([]models.Chat, 0)
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *Handler) createChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
		Model string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Model != "" {
		if _, ok := h.registry.Resolve(req.Model); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model id"})
			return
		}
	}
	chat, err := h.store.CreateChat(c.Request.Context(), userID, req.Title, req.Model)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (h *Handler) renameChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chatID, ok := pathChatID(c)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if err := h.store.RenameChat(c.Request.Context(), userID, chatID, req.Title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chatID, ok := pathChatID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteChat(c.Request.Context(), userID, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listChatMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chatID, ok := pathChatID(c)
	if !ok {
		return
	}
	chat, err := h.store.GetChat(c.Request.Context(), userID, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		storeError(c, err)
		return
	}
	messages, err := h.store.ListMessages(c.Request.Context(), chatID)
	if err != nil {
		storeError(c, err)
		return
	}
	if messages == nil {
		messages = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"chat":     chat,
		"messages": messages,
	})
}

func (h *Handler) listChatAttachments(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chatID, ok := pathChatID(c)
	if !ok {
		return
	}
	if _, err := h.store.GetChat(c.Request.Context(), userID, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		storeError(c, err)
		return
	}
	attachments, err := h.store.ListAttachments(c.Request.Context(), chatID)
	if err != nil {
		storeError(c, err)
		return
	}
	if attachments == nil {
		attachments = make([]*models.Attachment, 0)
	}
	c.JSON(http.StatusOK, gin.H{"attachments": attachments})
}

func (h *Handler) getSettings(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	settings, err := h.store.GetOrCreateSettings(c.Request.Context(), userID)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) updateSettings(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		PreferredModel *string `json:"preferred_model"`
		Theme          *string `json:"theme"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.PreferredModel != nil {
		if _, ok := h.registry.Resolve(*req.PreferredModel); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model id"})
			return
		}
	}
	settings, err := h.store.UpdateSettings(c.Request.Context(), userID, chatstore.SettingsUpdate{
		PreferredModel: req.PreferredModel,
		Theme:          req.Theme,
	})
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) generateAPIKey(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	key, err := h.store.GenerateAPIKey(c.Request.Context(), userID)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_key": key})
}

func (h *Handler) listModels(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": h.registry.Options()})
}
