package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnobrega7/lobe-chat/internal/models"
)

// ListMessages returns a chat's messages in creation order, reading through
// the cache when an entry is present.
func (s *Service) ListMessages(ctx context.Context, chatID int64) ([]*models.Message, error) {
	if cached, ok := s.cache.GetMessages(ctx, chatID); ok {
		return cached, nil
	}
	messages, err := s.loadMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.cache.SetMessages(ctx, chatID, messages)
	return messages, nil
}

func (s *Service) loadMessages(ctx context.Context, chatID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendMessage stores a new message, bumps the parent chat's updated_at, and
// refreshes the cached message list with the full updated sequence before
// returning, so the cached path never misses this write.
func (s *Service) AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	if msg.ChatID <= 0 {
		return nil, inputError("chat_id is required")
	}
	if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant && msg.Role != models.RoleSystem {
		return nil, inputError("invalid role: %s", msg.Role)
	}
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.Content == "" {
		return nil, inputError("content cannot be empty")
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chats WHERE id = ?)`, msg.ChatID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify chat: %w", err)
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.ChatID, msg.Role, msg.Content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now, msg.ChatID); err != nil {
		return nil, fmt.Errorf("touch chat: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now

	all, err := s.loadMessages(ctx, msg.ChatID)
	if err != nil {
		return nil, fmt.Errorf("refresh message cache: %w", err)
	}
	s.cache.SetMessages(ctx, msg.ChatID, all)
	return &msg, nil
}
