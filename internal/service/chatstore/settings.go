package chatstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/lucasnobrega7/lobe-chat/internal/models"
)

// SettingsUpdate carries the partial fields of an UpdateSettings call. Nil
// fields are left untouched.
type SettingsUpdate struct {
	PreferredModel *string
	Theme          *string
	APIKey         *string
}

// GetOrCreateSettings returns the user's settings row, creating it with
// defaults on first access. A missing row is the trigger for creation, not an
// error.
func (s *Service) GetOrCreateSettings(ctx context.Context, userID int64) (*models.UserSettings, error) {
	if userID <= 0 {
		return nil, inputError("user_id is required")
	}
	if cached, ok := s.cache.GetSettings(ctx, userID); ok {
		return cached, nil
	}
	settings, err := s.loadSettings(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		settings, err = s.createDefaultSettings(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	s.cache.SetSettings(ctx, userID, settings)
	return settings, nil
}

func (s *Service) loadSettings(ctx context.Context, userID int64) (*models.UserSettings, error) {
	var (
		settings models.UserSettings
		apiKey   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, preferred_model, theme, api_key, created_at, updated_at FROM user_settings WHERE user_id = ?`,
		userID,
	).Scan(&settings.ID, &settings.UserID, &settings.PreferredModel, &settings.Theme, &apiKey, &settings.CreatedAt, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	settings.APIKey = apiKey.String
	return &settings, nil
}

func (s *Service) createDefaultSettings(ctx context.Context, userID int64) (*models.UserSettings, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, preferred_model, theme, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, models.DefaultModelID, models.DefaultTheme, now, now,
	)
	if err != nil {
		// A concurrent first access may have won the insert.
		if existing, loadErr := s.loadSettings(ctx, userID); loadErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create default settings: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("settings id: %w", err)
	}
	return &models.UserSettings{
		ID:             id,
		UserID:         userID,
		PreferredModel: models.DefaultModelID,
		Theme:          models.DefaultTheme,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// UpdateSettings applies the partial update and synchronously overwrites the
// cached entry with the updated row.
func (s *Service) UpdateSettings(ctx context.Context, userID int64, update SettingsUpdate) (*models.UserSettings, error) {
	settings, err := s.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if update.PreferredModel != nil {
		settings.PreferredModel = *update.PreferredModel
	}
	if update.Theme != nil {
		switch *update.Theme {
		case "light", "dark", "system":
			settings.Theme = *update.Theme
		default:
			return nil, inputError("invalid theme: %s", *update.Theme)
		}
	}
	if update.APIKey != nil {
		settings.APIKey = *update.APIKey
	}
	settings.UpdatedAt = time.Now().UTC()

	apiKey := sql.NullString{String: settings.APIKey, Valid: settings.APIKey != ""}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE user_settings SET preferred_model = ?, theme = ?, api_key = ?, updated_at = ? WHERE user_id = ?`,
		settings.PreferredModel, settings.Theme, apiKey, settings.UpdatedAt, userID,
	); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	s.cache.SetSettings(ctx, userID, settings)
	return settings, nil
}

// GenerateAPIKey mints a fresh public API key for the user and stores it in
// the settings row.
func (s *Service) GenerateAPIKey(ctx context.Context, userID int64) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	key := "lobe_" + hex.EncodeToString(buf)
	if _, err := s.UpdateSettings(ctx, userID, SettingsUpdate{APIKey: &key}); err != nil {
		return "", err
	}
	return key, nil
}
