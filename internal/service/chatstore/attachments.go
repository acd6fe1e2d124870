package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lucasnobrega7/lobe-chat/internal/models"
)

// AppendAttachment records metadata for an uploaded file.
func (s *Service) AppendAttachment(ctx context.Context, att models.Attachment) (*models.Attachment, error) {
	if att.ChatID <= 0 {
		return nil, inputError("chat_id is required")
	}
	if att.Name == "" || att.URL == "" {
		return nil, inputError("name and url are required")
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chats WHERE id = ?)`, att.ChatID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify chat: %w", err)
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (message_id, chat_id, name, url, size, mime_type, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		att.MessageID, att.ChatID, att.Name, att.URL, att.Size, att.MimeType, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("attachment id: %w", err)
	}
	att.ID = id
	att.CreatedAt = now
	return &att, nil
}

// ListAttachments returns all attachments recorded for a chat.
func (s *Service) ListAttachments(ctx context.Context, chatID int64) ([]*models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, chat_id, name, url, size, mime_type, created_at FROM attachments WHERE chat_id = ? ORDER BY created_at ASC, id ASC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]*models.Attachment, 0)
	for rows.Next() {
		a := new(models.Attachment)
		if err := rows.Scan(&a.ID, &a.MessageID, &a.ChatID, &a.Name, &a.URL, &a.Size, &a.MimeType, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
