package chatstore

import (
	"database/sql"

	"github.com/lucasnobrega7/lobe-chat/internal/cache"
)

// Service is the single source of truth for chats, messages, attachments, and
// user settings. All durable writes go through it; the cache only mirrors its
// reads and writes.
type Service struct {
	db    *sql.DB
	cache *cache.Cache
}

// NewService builds a chat store over the database and an optional cache.
func NewService(db *sql.DB, c *cache.Cache) *Service {
	if c == nil {
		c = cache.New(nil)
	}
	return &Service{db: db, cache: c}
}
