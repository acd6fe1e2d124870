package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lucasnobrega7/lobe-chat/internal/blob"
	"github.com/lucasnobrega7/lobe-chat/internal/models"
	"github.com/lucasnobrega7/lobe-chat/internal/service/ai"
	"github.com/lucasnobrega7/lobe-chat/internal/worker"
)

const streamTimeout = 2 * time.Minute

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	ChatID   int64         `json:"chat_id"`
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

func (r *chatRequest) toModelMessages() []*models.Message {
	messages := make([]*models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, &models.Message{
			ChatID:  r.ChatID,
			Role:    models.Role(m.Role),
			Content: m.Content,
		})
	}
	return messages
}

// sendEventFunc writes one SSE frame and flushes it.
type sendEventFunc func(event string, payload interface{}) error

func sseWriter(c *gin.Context) (sendEventFunc, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return nil, false
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	return func(event string, payload interface{}) error {
		var data []byte
		switch v := payload.(type) {
		case string:
			data = []byte(v)
		default:
			var err error
			data, err = json.Marshal(v)
			if err != nil {
				return err
			}
		}
		if event != "" {
			if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}, true
}

func (h *Handler) chat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages are required"})
		return
	}

	allowed, err := h.limiter.Allow(c.Request.Context(), userID)
	if err != nil {
		log.WithError(err).Error("rate limit check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
		return
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	option, ok := h.registry.Resolve(req.Model)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model id"})
		return
	}

	// The user's turn must be durable before the model is invoked.
	var userMessage *models.Message
	last := req.Messages[len(req.Messages)-1]
	if models.Role(last.Role) == models.RoleUser && req.ChatID > 0 {
		if _, err := h.store.GetChat(c.Request.Context(), userID, req.ChatID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
				return
			}
			log.WithError(err).Error("load chat failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load chat failed"})
			return
		}
		userMessage, err = h.store.AppendMessage(c.Request.Context(), models.Message{
			ChatID:  req.ChatID,
			Role:    models.RoleUser,
			Content: last.Content,
		})
		if err != nil {
			storeError(c, err)
			return
		}
	}

	sendEvent, ok := sseWriter(c)
	if !ok {
		return
	}
	if userMessage != nil {
		if err := sendEvent("ack", gin.H{"message": userMessage}); err != nil {
			log.WithError(err).Debug("ack event not delivered")
		}
	}

	// The drain must outlive the client connection so the assistant reply can
	// still be persisted after a disconnect.
	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), streamTimeout)
	defer cancel()
	streamCtx = h.toolContext(streamCtx, userID, req.ChatID)

	result, err := h.streamer.StreamChat(streamCtx, option, req.toModelMessages(), func(chunk string) error {
		return sendEvent("stream", gin.H{"content": chunk})
	})
	if err != nil {
		log.WithError(err).WithField("model", option.ID).Error("model stream failed")
		_ = sendEvent("error", gin.H{"message": "model invocation failed"})
		return
	}

	var aiMessage *models.Message
	if req.ChatID > 0 {
		aiMessage = h.persistAssistant(streamCtx, req.ChatID, result.Content)
	}

	payload := gin.H{
		"model": option.ID,
		"usage": result.Usage,
	}
	if userMessage != nil {
		payload["user_message"] = userMessage
	}
	if aiMessage != nil {
		payload["ai_message"] = aiMessage
	}
	_ = sendEvent("done", payload)
}

// persistAssistant writes the completed assistant reply through the worker
// pool and waits for the result. The write keeps running even when the
// request connection is already gone; its failure is logged, never surfaced
// to the closed client.
func (h *Handler) persistAssistant(ctx context.Context, chatID int64, content string) *models.Message {
	var persisted *models.Message
	job := worker.Job{
		Name: "persist assistant message",
		Ctx:  context.WithoutCancel(ctx),
		Run: func(jobCtx context.Context) error {
			msg, err := h.store.AppendMessage(jobCtx, models.Message{
				ChatID:  chatID,
				Role:    models.RoleAssistant,
				Content: content,
			})
			if err != nil {
				return err
			}
			persisted = msg
			return nil
		},
	}
	result, err := h.pool.Submit(job)
	if err != nil {
		// Queue saturated, fall back to a direct write.
		if rErr := job.Run(job.Ctx); rErr != nil {
			log.WithError(rErr).WithField("chat_id", chatID).Error("persist assistant message failed")
			return nil
		}
		return persisted
	}
	if err := <-result; err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("persist assistant message failed")
		return nil
	}
	return persisted
}

// toolContext exposes the chat's readable attachments to the model tools.
// Only the local blob backend maps attachments onto disk paths.
func (h *Handler) toolContext(ctx context.Context, userID, chatID int64) context.Context {
	if chatID <= 0 {
		return ctx
	}
	local, ok := h.blobs.(*blob.LocalStore)
	if !ok {
		return ctx
	}
	attachments, err := h.store.ListAttachments(ctx, chatID)
	if err != nil || len(attachments) == 0 {
		return ctx
	}
	files := make([]*ai.AttachmentFile, 0, len(attachments))
	for _, att := range attachments {
		key := strings.TrimPrefix(att.URL, h.cfg.Blob.BaseURL+"/")
		files = append(files, &ai.AttachmentFile{
			ID:   att.ID,
			Name: att.Name,
			Path: local.ObjectPath(key),
		})
	}
	ctx = ai.WithAttachments(ctx, files)
	return ai.WithToolSession(ctx, userID, chatID)
}
