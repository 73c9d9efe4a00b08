package store

import (
	"time"

	"github.com/pavelanni/examdraft/internal/model"
)

// RecordExport logs a download.
func (s *Store) RecordExport(rec model.ExportRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO exports (session_id, user_id, kind, filename, bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.UserID, rec.Kind, rec.Filename, rec.Bytes, rec.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListExports returns a user's downloads, newest first. A zero userID lists
// every user's downloads.
func (s *Store) ListExports(userID int64) ([]model.ExportRecord, error) {
	query := `SELECT id, session_id, user_id, kind, filename, bytes, created_at FROM exports`
	var args []any
	if userID != 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ExportRecord
	for rows.Next() {
		var r model.ExportRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserID, &r.Kind, &r.Filename, &r.Bytes, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
