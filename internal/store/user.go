package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/examdraft/internal/model"
)

var (
	// ErrUsernameTaken is returned by CreateUser for a duplicate username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrUserNotFound is returned when an update matches no user.
	ErrUserNotFound = errors.New("user not found")
)

const userColumns = `id, username, display_name, password_hash, role, active, created_at`

// CreateUser inserts a teacher or admin account and returns its ID.
func (s *Store) CreateUser(u model.User) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (username, display_name, password_hash, role, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.DisplayName, u.PasswordHash, u.Role, u.Active, time.Now().UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("create user %s: %w", u.Username, ErrUsernameTaken)
		}
		return 0, fmt.Errorf("create user %s: %w", u.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", u.Username, err)
	}
	slog.Info("created user", "id", id, "username", u.Username, "role", u.Role)
	return id, nil
}

// GetUserByUsername returns the named user, or nil if there is none.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	return s.getUser(`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// GetUserByID returns the user with the given ID, or nil if there is none.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	return s.getUser(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *Store) getUser(query string, arg any) (*model.User, error) {
	u, err := scanUser(s.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns every account in creation order.
func (s *Store) ListUsers() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ToggleUserActive flips the active flag on a user. Deactivating a user also
// signs them out everywhere. It returns the new state.
func (s *Store) ToggleUserActive(id int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("toggle user %d: %w", id, err)
	}
	defer tx.Rollback()

	var active bool
	err = tx.QueryRow(`UPDATE users SET active = NOT active WHERE id = ? RETURNING active`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("toggle user %d: %w", id, ErrUserNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("toggle user %d: %w", id, err)
	}
	if !active {
		if _, err := tx.Exec(`DELETE FROM auth_sessions WHERE user_id = ?`, id); err != nil {
			return false, fmt.Errorf("sign out user %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("toggle user %d: %w", id, err)
	}
	slog.Info("toggled user", "id", id, "active", active)
	return active, nil
}

// UserCount returns the total number of users.
func (s *Store) UserCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func scanUser(sc scanner) (model.User, error) {
	var u model.User
	err := sc.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	return u, err
}
