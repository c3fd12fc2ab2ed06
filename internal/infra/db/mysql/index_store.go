package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/petri/internal/domain/index"
)

// IndexStore keeps the serialized prompt index as one row of petri_storage,
// the same key/value shape the dashboard uses in browser storage.
type IndexStore struct {
	db  *sql.DB
	key string
}

func NewIndexStore(db *sql.DB, key string) *IndexStore {
	return &IndexStore{db: db, key: keyOrDefault(key, domain.StorageKey)}
}

// EnsureSchema creates the storage table when missing
func (s *IndexStore) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS petri_storage (
  storage_key VARCHAR(191) NOT NULL PRIMARY KEY,
  value       LONGTEXT     NOT NULL,
  version     BIGINT       NOT NULL DEFAULT 1,
  updated_at  DATETIME(3)  NOT NULL
) DEFAULT CHARSET=utf8mb4;`
	_, err := s.db.ExecContext(ctx, q)
	return err
}

// Get returns the stored records, newest first
func (s *IndexStore) Get(ctx context.Context) ([]domain.Record, error) {
	const q = `SELECT value FROM petri_storage WHERE storage_key=?;`
	var value string
	err := s.db.QueryRowContext(ctx, q, s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mysql index get: %w", err)
	}
	return domain.Decode([]byte(value))
}

// Put replaces the stored record set
func (s *IndexStore) Put(ctx context.Context, records []domain.Record) error {
	const q = `
INSERT INTO petri_storage (storage_key, value, version, updated_at)
VALUES (?,?,1,?)
ON DUPLICATE KEY UPDATE
  value=VALUES(value), version=version+1, updated_at=VALUES(updated_at);`
	data, err := domain.Encode(records)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, s.key, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("mysql index put: %w", err)
	}
	return nil
}

// Fingerprint returns the row version, 0 when nothing is stored yet
func (s *IndexStore) Fingerprint(ctx context.Context) (string, error) {
	const q = `SELECT version FROM petri_storage WHERE storage_key=?;`
	var v int64
	err := s.db.QueryRowContext(ctx, q, s.key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}
