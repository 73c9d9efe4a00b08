package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/examdraft/internal/rubric"
	"github.com/pavelanni/examdraft/internal/workflow"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// An in-memory database lives only as long as its connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'teacher',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS workflow_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		phase TEXT NOT NULL,
		meta TEXT NOT NULL DEFAULT '{}',
		content TEXT NOT NULL DEFAULT '',
		review_table TEXT,
		exam TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_workflow_sessions_user ON workflow_sessions(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS exports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		filename TEXT NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSession inserts or replaces a drafting session.
func (s *Store) SaveSession(ws workflow.Session) error {
	meta, err := json.Marshal(ws.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	var table sql.NullString
	if ws.Table != nil {
		b, err := json.Marshal(ws.Table)
		if err != nil {
			return fmt.Errorf("encode table: %w", err)
		}
		table = sql.NullString{String: string(b), Valid: true}
	}
	if ws.UpdatedAt.IsZero() {
		ws.UpdatedAt = time.Now()
	}

	_, err = s.db.Exec(
		`INSERT INTO workflow_sessions (id, user_id, phase, meta, content, review_table, exam, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   phase = excluded.phase, meta = excluded.meta, content = excluded.content,
		   review_table = excluded.review_table, exam = excluded.exam, updated_at = excluded.updated_at`,
		ws.ID, ws.UserID, ws.Phase, string(meta), ws.Content, table, ws.Exam, ws.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", ws.ID, err)
	}
	return nil
}

// GetSession returns a drafting session by ID, or nil if it does not exist.
func (s *Store) GetSession(id string) (*workflow.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, phase, meta, content, review_table, exam, updated_at
		 FROM workflow_sessions WHERE id = ?`, id,
	)
	ws, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// ListSessions returns a user's drafting sessions, most recently updated first.
func (s *Store) ListSessions(userID int64) ([]workflow.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, phase, meta, content, review_table, exam, updated_at
		 FROM workflow_sessions WHERE user_id = ? ORDER BY updated_at DESC, id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []workflow.Session
	for rows.Next() {
		ws, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, ws)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a drafting session.
func (s *Store) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM workflow_sessions WHERE id = ?`, id)
	return err
}

// SessionCount returns the number of stored drafting sessions.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM workflow_sessions`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (workflow.Session, error) {
	var (
		ws    workflow.Session
		meta  string
		table sql.NullString
		phase string
	)
	if err := sc.Scan(&ws.ID, &ws.UserID, &phase, &meta, &ws.Content, &table, &ws.Exam, &ws.UpdatedAt); err != nil {
		return ws, err
	}
	ws.Phase = workflow.Phase(phase)
	if !ws.Phase.Valid() {
		return ws, fmt.Errorf("session %s: unknown phase %q", ws.ID, phase)
	}
	if err := json.Unmarshal([]byte(meta), &ws.Meta); err != nil {
		return ws, fmt.Errorf("session %s: decode meta: %w", ws.ID, err)
	}
	if table.Valid {
		var rs rubric.RecordSet
		if err := json.Unmarshal([]byte(table.String), &rs); err != nil {
			return ws, fmt.Errorf("session %s: decode table: %w", ws.ID, err)
		}
		ws.Table = &rs
	}
	return ws, nil
}

