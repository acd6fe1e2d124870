package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultTokenTTL       = 24 * time.Hour
	defaultCookieName     = "auth_token"
	defaultCSRFCookieName = "csrf_token"

	authHeaderName = "Authorization"
	csrfHeaderName = "X-CSRF-Token"

	tokenBytes     = 32
	insertAttempts = 5
)

// Config carries the tunable parts of the session service. Zero values fall
// back to the defaults above.
type Config struct {
	TokenTTL       time.Duration
	CookieName     string
	CSRFCookieName string
}

// Service issues, validates, and revokes session tokens backed by the
// user_tokens table.
type Service struct {
	db  *sql.DB
	cfg Config
}

func NewService(db *sql.DB, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.CSRFCookieName == "" {
		cfg.CSRFCookieName = defaultCSRFCookieName
	}
	return &Service{db: db, cfg: cfg}
}

// IssueToken mints a session token for the user and persists it with the
// configured lifetime. Insert collisions on the random token are retried.
func (s *Service) IssueToken(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("invalid user id")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.cfg.TokenTTL)

	var lastErr error
	for attempt := 0; attempt < insertAttempts; attempt++ {
		token, err := randomToken()
		if err != nil {
			return "", err
		}
		_, lastErr = s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, userID, now, expiresAt,
		)
		if lastErr == nil {
			return token, nil
		}
		log.WithError(lastErr).WithFields(log.Fields{
			"user_id": userID,
			"attempt": attempt + 1,
		}).Warn("session token insert failed, retrying")
	}
	return "", fmt.Errorf("issue token: %w", lastErr)
}

// NewCSRFToken returns a random token for double-submit CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return randomToken()
}

// ValidateToken resolves a session token to its user id. Expired tokens are
// purged on sight.
func (s *Service) ValidateToken(ctx context.Context, sessionToken string) (int64, error) {
	if sessionToken == "" {
		return 0, errors.New("token required")
	}
	var (
		userID    int64
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`, sessionToken,
	).Scan(&userID, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, errors.New("invalid token")
	case err != nil:
		return 0, fmt.Errorf("lookup token: %w", err)
	}

	if time.Now().UTC().After(expiresAt) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, sessionToken); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("purge expired session token failed")
		}
		return 0, errors.New("token expired")
	}
	return userID, nil
}

// RevokeToken deletes a single session token.
func (s *Service) RevokeToken(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, sessionToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeUserTokens ends every session belonging to the user.
func (s *Service) RevokeUserTokens(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the configured session cookie name.
func (s *Service) AuthCookieName() string {
	return s.cfg.CookieName
}

// CSRFCookieName returns the configured CSRF cookie name.
func (s *Service) CSRFCookieName() string {
	return s.cfg.CSRFCookieName
}

// CSRFHeaderName returns the header checked against the CSRF cookie.
func (s *Service) CSRFHeaderName() string {
	return csrfHeaderName
}

// TokenTTL reports the configured session lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.cfg.TokenTTL
}
