package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/examdraft/internal/model"
)

// AuthSessionTTL is how long a login stays valid.
const AuthSessionTTL = 24 * time.Hour

// CreateAuthSession starts a login for userID and returns its cookie token.
func (s *Store) CreateAuthSession(userID int64) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(b)

	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(AuthSessionTTL),
	)
	if err != nil {
		return "", fmt.Errorf("create auth session: %w", err)
	}
	return token, nil
}

// GetAuthSession returns the login for token. Unknown and expired tokens
// yield nil; expired ones are removed on the way.
func (s *Store) GetAuthSession(token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth session: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, s.DeleteAuthSession(token)
	}
	return &sess, nil
}

// DeleteAuthSession ends a login.
func (s *Store) DeleteAuthSession(token string) error {
	if _, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token); err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes expired logins and reports how many went.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup auth sessions: %w", err)
	}
	return res.RowsAffected()
}
