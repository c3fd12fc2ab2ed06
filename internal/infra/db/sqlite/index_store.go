package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/bryanwahyu/petri/internal/domain/index"
)

// IndexStore persists the prompt index in a local SQLite file.
type IndexStore struct {
	db  *sql.DB
	key string
}

func NewIndexStore(db *sql.DB, key string) *IndexStore {
	if strings.TrimSpace(key) == "" {
		key = domain.StorageKey
	}
	return &IndexStore{db: db, key: key}
}

func (s *IndexStore) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS petri_storage (
  storage_key TEXT    PRIMARY KEY,
  value       TEXT    NOT NULL,
  version     INTEGER NOT NULL DEFAULT 1,
  updated_at  INTEGER NOT NULL
);`
	_, err := s.db.ExecContext(ctx, q)
	return err
}

func (s *IndexStore) Get(ctx context.Context) ([]domain.Record, error) {
	const q = `SELECT value FROM petri_storage WHERE storage_key = ?;`
	var value string
	err := s.db.QueryRowContext(ctx, q, s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite index get: %w", err)
	}
	return domain.Decode([]byte(value))
}

func (s *IndexStore) Put(ctx context.Context, records []domain.Record) error {
	const q = `
INSERT INTO petri_storage (storage_key, value, version, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT(storage_key) DO UPDATE SET
  value = excluded.value,
  version = petri_storage.version + 1,
  updated_at = excluded.updated_at;`
	data, err := domain.Encode(records)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, s.key, string(data), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("sqlite index put: %w", err)
	}
	return nil
}

// Fingerprint returns the row version, "0" before the first Put.
func (s *IndexStore) Fingerprint(ctx context.Context) (string, error) {
	const q = `SELECT version FROM petri_storage WHERE storage_key = ?;`
	var v int64
	err := s.db.QueryRowContext(ctx, q, s.key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(v, 10), nil
}
