package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/prep-work/backend/internal/model"
)

const authTokenTTL = 24 * time.Hour

// CreateAuthSession issues a fresh login token for the user.
func (s *Store) CreateAuthSession(userID int64) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(authTokenTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// AuthenticateToken resolves a login token to its user in one query. Unknown
// tokens, expired tokens, and deactivated accounts all yield nil; expired
// tokens are deleted on sight.
func (s *Store) AuthenticateToken(token string) (*model.User, error) {
	var u model.User
	var expiresAt time.Time
	err := s.db.QueryRow(
		`SELECT u.id, u.username, u.email, u.display_name, u.password_hash, u.role, u.active, u.created_at, t.expires_at
		 FROM auth_sessions t JOIN users u ON u.id = t.user_id
		 WHERE t.id = ?`, token,
	).Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(expiresAt) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	if !u.Active {
		return nil, nil
	}
	return &u, nil
}

// DeleteAuthSession removes a login token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes all expired login tokens.
func (s *Store) CleanupExpiredSessions() error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, time.Now())
	return err
}
