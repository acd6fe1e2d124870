package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lucasnobrega7/lobe-chat/internal/models"
	"github.com/lucasnobrega7/lobe-chat/internal/redis"
)

// Expiry applies to both key families.
const Expiry = 7 * 24 * time.Hour

// Cache mirrors chat store reads and writes in redis. It never originates
// data: absence always falls through to the database, and write paths refresh
// the entry synchronously with the full updated value.
type Cache struct {
	client *redis.Client
}

// New builds a cache over the given redis client. A nil client yields a
// disabled cache on which every lookup misses.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func messagesKey(chatID int64) string {
	return fmt.Sprintf("chat:%d:messages", chatID)
}

func settingsKey(userID int64) string {
	return fmt.Sprintf("user:%d:settings", userID)
}

// GetMessages returns the cached message list for the chat, or ok=false on a miss.
func (c *Cache) GetMessages(ctx context.Context, chatID int64) ([]*models.Message, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, messagesKey(chatID))
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.WithError(err).Warn("cache get messages failed")
		}
		return nil, false
	}
	var messages []*models.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		log.WithError(err).Warn("cache decode messages failed")
		return nil, false
	}
	return messages, true
}

// SetMessages overwrites the cached message list for the chat. Write paths
// call this with the complete refreshed list before they return.
func (c *Cache) SetMessages(ctx context.Context, chatID int64, messages []*models.Message) {
	if c == nil || c.client == nil {
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		log.WithError(err).Warn("cache encode messages failed")
		return
	}
	if err := c.client.Set(ctx, messagesKey(chatID), data, Expiry); err != nil {
		log.WithError(err).Warn("cache set messages failed")
	}
}

// InvalidateMessages drops the message list entry for the chat.
func (c *Cache) InvalidateMessages(ctx context.Context, chatID int64) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, messagesKey(chatID)); err != nil && err != redis.ErrCacheMiss {
		log.WithError(err).Warn("cache invalidate messages failed")
	}
}

// GetSettings returns the cached settings row for the user, or ok=false on a miss.
func (c *Cache) GetSettings(ctx context.Context, userID int64) (*models.UserSettings, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, settingsKey(userID))
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.WithError(err).Warn("cache get settings failed")
		}
		return nil, false
	}
	var settings models.UserSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		log.WithError(err).Warn("cache decode settings failed")
		return nil, false
	}
	return &settings, true
}

// SetSettings overwrites the cached settings row for the user.
func (c *Cache) SetSettings(ctx context.Context, userID int64, settings *models.UserSettings) {
	if c == nil || c.client == nil || settings == nil {
		return
	}
	data, err := json.Marshal(settings)
	if err != nil {
		log.WithError(err).Warn("cache encode settings failed")
		return
	}
	if err := c.client.Set(ctx, settingsKey(userID), data, Expiry); err != nil {
		log.WithError(err).Warn("cache set settings failed")
	}
}
