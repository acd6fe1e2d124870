package chatstore

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lucasnobrega7/lobe-chat/internal/cache"
	"github.com/lucasnobrega7/lobe-chat/internal/config"
	"github.com/lucasnobrega7/lobe-chat/internal/models"
	"github.com/lucasnobrega7/lobe-chat/internal/redis"
	"github.com/lucasnobrega7/lobe-chat/internal/storage"
)

func newTestStore(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewService(db, nil), db
}

func newTestUser(t *testing.T, svc *Service, name string) *models.User {
	t.Helper()
	user, err := svc.RegisterUser(context.Background(), name, "pass123")
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	return user
}

func TestAppendMessageOrderingAndChatBump(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "alice")
	chat, err := svc.CreateChat(ctx, user.ID, "Test", "grok-2")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	contents := []string{"first", "second", "third"}
	prevUpdated := chat.UpdatedAt
	for _, content := range contents {
		time.Sleep(2 * time.Millisecond)
		msg, err := svc.AppendMessage(ctx, models.Message{
			ChatID:  chat.ID,
			Role:    models.RoleUser,
			Content: content,
		})
		if err != nil {
			t.Fatalf("append %q: %v", content, err)
		}
		if msg.ID <= 0 {
			t.Fatalf("expected persisted message id")
		}
		got, err := svc.GetChat(ctx, user.ID, chat.ID)
		if err != nil {
			t.Fatalf("get chat: %v", err)
		}
		if !got.UpdatedAt.After(prevUpdated) {
			t.Fatalf("updated_at did not increase: %v vs %v", got.UpdatedAt, prevUpdated)
		}
		prevUpdated = got.UpdatedAt
	}

	messages, err := svc.ListMessages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(messages))
	}
	for i, content := range contents {
		if messages[i].Content != content {
			t.Fatalf("message %d out of order: want %q got %q", i, content, messages[i].Content)
		}
	}
	if messages[len(messages)-1].Content != "third" {
		t.Fatalf("newest message not last")
	}
}

func TestAppendMessageValidation(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "bob")
	chat, err := svc.CreateChat(ctx, user.ID, "", "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	if _, err := svc.AppendMessage(ctx, models.Message{ChatID: chat.ID, Role: "robot", Content: "hi"}); err == nil {
		t.Fatalf("expected invalid role error")
	}
	if _, err := svc.AppendMessage(ctx, models.Message{ChatID: chat.ID, Role: models.RoleUser, Content: "   "}); err == nil {
		t.Fatalf("expected empty content error")
	}
	if _, err := svc.AppendMessage(ctx, models.Message{ChatID: 9999, Role: models.RoleUser, Content: "hi"}); err == nil {
		t.Fatalf("expected missing chat error")
	}
}

func TestCreateChatDefaults(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "carol")
	chat, err := svc.CreateChat(ctx, user.ID, "", "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if chat.Title == "" || chat.ModelID == "" {
		t.Fatalf("expected default title and model, got %q %q", chat.Title, chat.ModelID)
	}
}

func TestListChatsOrderedByRecency(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "dave")
	first, err := svc.CreateChat(ctx, user.ID, "first", "grok-2")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := svc.CreateChat(ctx, user.ID, "second", "grok-2")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	chats, err := svc.ListChats(ctx, user.ID)
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 2 || chats[0].ID != second.ID {
		t.Fatalf("expected newest chat first, got %#v", chats)
	}

	// A new message moves the older chat back to the front.
	time.Sleep(2 * time.Millisecond)
	if _, err := svc.AppendMessage(ctx, models.Message{ChatID: first.ID, Role: models.RoleUser, Content: "bump"}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	chats, err = svc.ListChats(ctx, user.ID)
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if chats[0].ID != first.ID {
		t.Fatalf("expected bumped chat first, got %d", chats[0].ID)
	}
}

func TestDeleteChatCascades(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "erin")
	chat, err := svc.CreateChat(ctx, user.ID, "doomed", "grok-2")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	msg, err := svc.AppendMessage(ctx, models.Message{ChatID: chat.ID, Role: models.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("append message: %v", err)
	}
	if _, err := svc.AppendAttachment(ctx, models.Attachment{
		MessageID: msg.ID,
		ChatID:    chat.ID,
		Name:      "doc.txt",
		URL:       "/files/1/1/doc.txt",
		Size:      12,
		MimeType:  "text/plain",
	}); err != nil {
		t.Fatalf("append attachment: %v", err)
	}

	if err := svc.DeleteChat(ctx, user.ID, chat.ID); err != nil {
		t.Fatalf("delete chat: %v", err)
	}

	messages, err := svc.ListMessages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no messages after delete, got %d", len(messages))
	}
	attachments, err := svc.ListAttachments(ctx, chat.ID)
	if err != nil {
		t.Fatalf("list attachments: %v", err)
	}
	if len(attachments) != 0 {
		t.Fatalf("expected no attachments after delete, got %d", len(attachments))
	}
	if _, err := svc.GetChat(ctx, user.ID, chat.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestDeleteChatWrongOwner(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	owner := newTestUser(t, svc, "frank")
	other := newTestUser(t, svc, "grace")
	chat, err := svc.CreateChat(ctx, owner.ID, "private", "grok-2")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if err := svc.DeleteChat(ctx, other.ID, chat.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for foreign chat, got %v", err)
	}
}

func TestRenameChat(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "heidi")
	chat, err := svc.CreateChat(ctx, user.ID, "old", "grok-2")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if err := svc.RenameChat(ctx, user.ID, chat.ID, "new title"); err != nil {
		t.Fatalf("rename chat: %v", err)
	}
	got, err := svc.GetChat(ctx, user.ID, chat.ID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if got.Title != "new title" {
		t.Fatalf("title not updated: %q", got.Title)
	}
	if err := svc.RenameChat(ctx, user.ID, 9999, "x"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing chat, got %v", err)
	}
}

func TestGetOrCreateSettingsIdempotent(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "ivan")
	first, err := svc.GetOrCreateSettings(ctx, user.ID)
	if err != nil {
		t.Fatalf("get-or-create settings: %v", err)
	}
	if first.PreferredModel != models.DefaultModelID || first.Theme != models.DefaultTheme {
		t.Fatalf("unexpected defaults: %q %q", first.PreferredModel, first.Theme)
	}
	second, err := svc.GetOrCreateSettings(ctx, user.ID)
	if err != nil {
		t.Fatalf("second get-or-create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same settings row, got %d vs %d", second.ID, first.ID)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_settings WHERE user_id = ?`, user.ID).Scan(&count); err != nil {
		t.Fatalf("count settings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single settings row, got %d", count)
	}
}

func TestUpdateSettings(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "judy")
	theme := "dark"
	preferred := "claude-3-5-sonnet"
	updated, err := svc.UpdateSettings(ctx, user.ID, SettingsUpdate{
		PreferredModel: &preferred,
		Theme:          &theme,
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.PreferredModel != preferred || updated.Theme != theme {
		t.Fatalf("settings not applied: %#v", updated)
	}

	bad := "neon"
	if _, err := svc.UpdateSettings(ctx, user.ID, SettingsUpdate{Theme: &bad}); err == nil {
		t.Fatalf("expected invalid theme error")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "mallory")
	key, err := svc.GenerateAPIKey(ctx, user.ID)
	if err != nil {
		t.Fatalf("generate api key: %v", err)
	}
	if !strings.HasPrefix(key, "lobe_") {
		t.Fatalf("unexpected key prefix: %q", key)
	}
	settings, err := svc.GetOrCreateSettings(ctx, user.ID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.APIKey != key {
		t.Fatalf("generated key not stored")
	}

	second, err := svc.GenerateAPIKey(ctx, user.ID)
	if err != nil {
		t.Fatalf("regenerate api key: %v", err)
	}
	if second == key {
		t.Fatalf("expected a fresh key on regeneration")
	}
}

func TestRegisterLoginDeleteUser(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "nina")
	if _, err := svc.Login(ctx, "nina", "pass123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Login(ctx, "nina", "wrong"); err == nil {
		t.Fatalf("expected login failure with wrong password")
	}
	if _, err := svc.RegisterUser(ctx, "nina", "other"); err == nil {
		t.Fatalf("expected duplicate username error")
	}

	chat, err := svc.CreateChat(ctx, user.ID, "t", "grok-2")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if _, err := svc.AppendMessage(ctx, models.Message{ChatID: chat.ID, Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if err := svc.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := svc.Login(ctx, "nina", "pass123"); err == nil {
		t.Fatalf("expected login failure after deletion")
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chat.ID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected messages removed with user, got %d", count)
	}
}

func TestValidationErrorsAreTyped(t *testing.T) {
	svc, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	var input *InputError
	_, err := svc.AppendMessage(ctx, models.Message{ChatID: 1, Role: "wizard", Content: "hi"})
	if !errors.As(err, &input) {
		t.Fatalf("expected InputError for bad role, got %v", err)
	}
	if _, err := svc.AppendMessage(ctx, models.Message{ChatID: 99, Role: models.RoleUser, Content: "hi"}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for unknown chat, got %v", err)
	}
	if _, err := svc.Login(ctx, "ghost", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "", ""); !errors.As(err, &input) {
		t.Fatalf("expected InputError for empty credentials, got %v", err)
	}
}

func newRedisBackedStore(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed store tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	if raw := client.Raw(); raw != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := raw.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush db: %v", err)
		}
	}
	return NewService(db, cache.New(client)), db
}

func TestAppendMessageRefreshesCachedList(t *testing.T) {
	svc, db := newRedisBackedStore(t)
	defer db.Close()
	ctx := context.Background()

	user := newTestUser(t, svc, "cacher")
	chat, err := svc.CreateChat(ctx, user.ID, "cached", "grok-2")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if _, err := svc.AppendMessage(ctx, models.Message{ChatID: chat.ID, Role: models.RoleUser, Content: "first"}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if _, err := svc.ListMessages(ctx, chat.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := svc.AppendMessage(ctx, models.Message{ChatID: chat.ID, Role: models.RoleAssistant, Content: "second"}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	// Empty the table so only the cached entry can serve the next read.
	if _, err := db.Exec(`DELETE FROM messages WHERE chat_id = ?`, chat.ID); err != nil {
		t.Fatalf("clear messages: %v", err)
	}

	messages, err := svc.ListMessages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("cached read returned %d messages, want 2", len(messages))
	}
	if messages[1].Content != "second" {
		t.Fatalf("cached read missing the appended message: %q", messages[1].Content)
	}
}
