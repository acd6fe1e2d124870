package api

import (
	"database/sql"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lucasnobrega7/lobe-chat/internal/blob"
	"github.com/lucasnobrega7/lobe-chat/internal/models"
)

const maxUploadBytes = 10 << 20 // 10 MB

var allowedContentTypes = []string{
	"text/plain",
	"text/markdown",
	"application/pdf",
	"application/json",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"image/",
}

func isAllowedContentType(ct string) bool {
	for _, allowed := range allowedContentTypes {
		if strings.HasPrefix(ct, allowed) {
			return true
		}
	}
	return false
}

func (h *Handler) uploadFile(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	chatID, err := strconv.ParseInt(c.PostForm("chat_id"), 10, 64)
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat_id"})
		return
	}
	var messageID int64
	if raw := c.PostForm("message_id"); raw != "" {
		messageID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || messageID < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message_id"})
			return
		}
	}
	if _, err := h.store.GetChat(c.Request.Context(), userID, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		log.WithError(err).Error("load chat failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load chat failed"})
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	contentType := http.DetectContentType(buf[:n])
	if !isAllowedContentType(contentType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return
	}
	if _, err := f.Seek(0, 0); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}

	filename := filepath.Base(header.Filename)
	key := blob.ObjectKey(userID, chatID, filename)
	url, err := h.blobs.Put(c.Request.Context(), key, f, contentType)
	if err != nil {
		log.WithError(err).Error("store upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store file failed"})
		return
	}

	attachment, err := h.store.AppendAttachment(c.Request.Context(), models.Attachment{
		MessageID: messageID,
		ChatID:    chatID,
		Name:      filename,
		URL:       url,
		Size:      header.Size,
		MimeType:  contentType,
	})
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}
