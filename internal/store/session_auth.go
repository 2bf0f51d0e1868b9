package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/pavelanni/feedback/internal/model"
)

const authSessionTTL = 24 * time.Hour

// VisitorTTL is how long an anonymous visitor's values live without being
// touched.
const VisitorTTL = 12 * time.Hour

// CreateAuthSession creates a new auth session token for a user.
func (s *Store) CreateAuthSession(ctx context.Context, userID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(authSessionTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession returns the auth session for the given token, or nil if not found/expired.
func (s *Store) GetAuthSession(ctx context.Context, token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(ctx, token)
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession removes a session token.
func (s *Store) DeleteAuthSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes expired auth sessions and stale visitor values.
func (s *Store) CleanupExpiredSessions(ctx context.Context) error {
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at < ?`, now); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM visitor_values WHERE updated_at < ?`, now.Add(-VisitorTTL))
	return err
}

// GetVisitorValue returns the value stored under key for a visitor. The
// boolean is false when nothing is stored or the value has expired.
func (s *Store) GetVisitorValue(ctx context.Context, visitorID, key string) (string, bool, error) {
	var value string
	var updated time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM visitor_values WHERE visitor_id = ? AND key = ?`, visitorID, key,
	).Scan(&value, &updated)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if time.Since(updated) > VisitorTTL {
		return "", false, s.DeleteVisitorValue(ctx, visitorID, key)
	}
	return value, true, nil
}

// SetVisitorValue stores value under key for a visitor, replacing any previous one.
func (s *Store) SetVisitorValue(ctx context.Context, visitorID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visitor_values (visitor_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(visitor_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		visitorID, key, value, time.Now(),
	)
	return err
}

// DeleteVisitorValue removes key for a visitor. Removing a missing key is not an error.
func (s *Store) DeleteVisitorValue(ctx context.Context, visitorID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM visitor_values WHERE visitor_id = ? AND key = ?`, visitorID, key)
	return err
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
