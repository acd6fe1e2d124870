package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lucasnobrega7/lobe-chat/internal/models"
)

const publicDefaultModel = "grok-2"

type publicChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// publicChat serves the key-authenticated REST wrapper. The caller's
// x-api-key must match the key stored for the configured demo account.
// This path never touches chat history.
func (h *Handler) publicChat(c *gin.Context) {
	apiKey := c.GetHeader("x-api-key")
	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "api key required"})
		return
	}
	settings, err := h.store.GetOrCreateSettings(c.Request.Context(), h.cfg.BasicConfig.PublicAPIUserID)
	if err != nil {
		log.WithError(err).Error("load api key failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load api key failed"})
		return
	}
	if settings.APIKey == "" || settings.APIKey != apiKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}

	var req publicChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages are required"})
		return
	}
	modelID := req.Model
	if modelID == "" {
		modelID = publicDefaultModel
	}
	option, ok := h.registry.Resolve(modelID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model id"})
		return
	}

	messages := make([]*models.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, &models.Message{
			Role:    models.Role(m.Role),
			Content: m.Content,
		})
	}

	streamCtx, cancel := context.WithTimeout(c.Request.Context(), streamTimeout)
	defer cancel()

	if c.Query("stream") == "true" {
		sendEvent, ok := sseWriter(c)
		if !ok {
			return
		}
		result, err := h.streamer.StreamChat(streamCtx, option, messages, func(chunk string) error {
			return sendEvent("stream", gin.H{"content": chunk})
		})
		if err != nil {
			log.WithError(err).WithField("model", option.ID).Error("public model stream failed")
			_ = sendEvent("error", gin.H{"message": "model invocation failed"})
			return
		}
		_ = sendEvent("done", gin.H{
			"model": option.ID,
			"usage": result.Usage,
		})
		return
	}

	result, err := h.streamer.StreamChat(streamCtx, option, messages, nil)
	if err != nil {
		log.WithError(err).WithField("model", option.ID).Error("public model call failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "model invocation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response": result.Content,
		"model":    option.ID,
		"usage":    result.Usage,
	})
}
