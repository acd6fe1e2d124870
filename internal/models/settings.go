package models

import "time"

const (
	DefaultModelID = "grok-2"
	DefaultTheme   = "system"
)

// UserSettings holds per-user preferences. The row is created lazily with
// defaults the first time it is requested.
type UserSettings struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	PreferredModel string    `json:"preferred_model"`
	Theme          string    `json:"theme"`
	APIKey         string    `json:"api_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
