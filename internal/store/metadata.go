package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pavelanni/examdraft/internal/model"
)

// SetMetadata upserts a key-value pair in the app_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO app_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func lastMetaKey(userID int64) string {
	return "last_meta:" + strconv.FormatInt(userID, 10)
}

// SetLastMeta remembers the exam parameters a user chose most recently so the
// next session's form starts from them.
func (s *Store) SetLastMeta(userID int64, meta model.ExamMeta) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	return s.SetMetadata(lastMetaKey(userID), string(b))
}

// GetLastMeta returns the remembered exam parameters, or a zero value.
func (s *Store) GetLastMeta(userID int64) (model.ExamMeta, error) {
	var meta model.ExamMeta
	v, err := s.GetMetadata(lastMetaKey(userID))
	if err != nil || v == "" {
		return meta, err
	}
	if err := json.Unmarshal([]byte(v), &meta); err != nil {
		return meta, fmt.Errorf("decode meta: %w", err)
	}
	return meta, nil
}
