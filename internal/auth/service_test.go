package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lucasnobrega7/lobe-chat/internal/config"
	"github.com/lucasnobrega7/lobe-chat/internal/storage"
)

func TestAuthIssueValidateRevoke(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)

	svc := NewService(db, Config{TokenTTL: time.Hour})
	token, err := svc.IssueToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	userID, err := svc.ValidateToken(context.Background(), token)
	if err != nil || userID != 1 {
		t.Fatalf("ValidateToken failed: id=%d err=%v", userID, err)
	}
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("RevokeToken error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatalf("expected error after revoke")
	}

	token2, err := svc.IssueToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if err := svc.RevokeUserTokens(context.Background(), 1); err != nil {
		t.Fatalf("RevokeUserTokens error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token2); err == nil {
		t.Fatalf("expected error after revoke all")
	}
}

func TestAuthValidateExpiredToken(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 2)

	svc := NewService(db, Config{TokenTTL: 10 * time.Millisecond})
	token, err := svc.IssueToken(context.Background(), 2)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatalf("expected expiration error")
	}
	// ensure token removed
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens WHERE token = ?`, token).Scan(&count); err != nil {
		t.Fatalf("query tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired token not purged")
	}
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	svc := NewService(nil, Config{})
	if svc.AuthCookieName() != "auth_token" {
		t.Fatalf("unexpected session cookie name: %q", svc.AuthCookieName())
	}
	if svc.CSRFCookieName() != "csrf_token" {
		t.Fatalf("unexpected csrf cookie name: %q", svc.CSRFCookieName())
	}
	if svc.TokenTTL() != 24*time.Hour {
		t.Fatalf("unexpected default ttl: %v", svc.TokenTTL())
	}
}

func TestNewServiceConfiguredNames(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 3)

	svc := NewService(db, Config{
		TokenTTL:       2 * time.Hour,
		CookieName:     "lobe_session",
		CSRFCookieName: "lobe_csrf",
	})
	if svc.AuthCookieName() != "lobe_session" || svc.CSRFCookieName() != "lobe_csrf" {
		t.Fatalf("configured cookie names not applied: %q %q", svc.AuthCookieName(), svc.CSRFCookieName())
	}
	if svc.TokenTTL() != 2*time.Hour {
		t.Fatalf("configured ttl not applied: %v", svc.TokenTTL())
	}

	token, err := svc.IssueToken(context.Background(), 3)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	var expiresAt, createdAt time.Time
	err = db.QueryRow(`SELECT created_at, expires_at FROM user_tokens WHERE token = ?`, token).Scan(&createdAt, &expiresAt)
	if err != nil {
		t.Fatalf("query token: %v", err)
	}
	if got := expiresAt.Sub(createdAt); got != 2*time.Hour {
		t.Fatalf("token lifetime = %v, want 2h", got)
	}
}

func openTestDB(t *testing.T) *sql.DB {
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
	return db
}

func insertUser(t *testing.T, db *sql.DB, id int64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, '', ?)`,
		id, "user_"+time.Now().Format("150405.000000000"), time.Now().UTC())
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}
