package chatstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnobrega7/lobe-chat/internal/models"
)

// CreateChat inserts a new chat for the user and returns the record.
func (s *Service) CreateChat(ctx context.Context, userID int64, title, modelID string) (*models.Chat, error) {
	if userID <= 0 {
		return nil, inputError("user_id is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New chat"
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		modelID = models.DefaultModelID
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (user_id, title, model_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, title, modelID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("chat id: %w", err)
	}
	return &models.Chat{ID: id, UserID: userID, Title: title, ModelID: modelID, CreatedAt: now, UpdatedAt: now}, nil
}

// ListChats returns all chats for a user ordered by last activity.
func (s *Service) ListChats(ctx context.Context, userID int64) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, model_id, created_at, updated_at FROM chats WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.ModelID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns one chat owned by the user, or sql.ErrNoRows.
func (s *Service) GetChat(ctx context.Context, userID, chatID int64) (*models.Chat, error) {
	var c models.Chat
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, model_id, created_at, updated_at FROM chats WHERE id = ? AND user_id = ?`,
		chatID, userID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.ModelID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &c, nil
}

// RenameChat sets a chat title for the specified user.
func (s *Service) RenameChat(ctx context.Context, userID, chatID int64, title string) error {
	if chatID <= 0 {
		return inputError("invalid chat id")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return inputError("title cannot be empty")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		title, time.Now().UTC(), chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("chat rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteChat removes a chat with all its messages and attachments. Children
// go first to satisfy the foreign key constraints.
func (s *Service) DeleteChat(ctx context.Context, userID, chatID int64) error {
	if chatID <= 0 {
		return inputError("invalid chat id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chats WHERE id = ? AND user_id = ?)`,
		chatID, userID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("verify chat: %w", err)
	}
	if !exists {
		err = sql.ErrNoRows
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM attachments WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete attachments: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete chat: %w", err)
	}
	s.cache.InvalidateMessages(ctx, chatID)
	return nil
}
