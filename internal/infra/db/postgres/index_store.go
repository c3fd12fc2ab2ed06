package postgres

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
  storage_key TEXT        PRIMARY KEY,
  value       TEXT        NOT NULL,
  version     BIGINT      NOT NULL DEFAULT 1,
  updated_at  TIMESTAMPTZ NOT NULL
);`
    _, err := s.db.ExecContext(ctx, q)
    return err
}

// Get returns the stored records, newest first
func (s *IndexStore) Get(ctx context.Context) ([]domain.Record, error) {
    const q = `SELECT value FROM petri_storage WHERE storage_key=$1;`
    var value string
    err := s.db.QueryRowContext(ctx, q, s.key).Scan(&value)
    if errors.Is(err, sql.ErrNoRows) { return []domain.Record{}, nil }
    if err != nil { return nil, fmt.Errorf("postgres index get: %w", err) }
    return domain.Decode([]byte(value))
}

// Put inserts or updates the stored record set
func (s *IndexStore) Put(ctx context.Context, records []domain.Record) error {
    const q = `
INSERT INTO petri_storage (storage_key, value, version, updated_at)
VALUES ($1,$2,1,$3)
ON CONFLICT (storage_key) DO UPDATE SET
  value=EXCLUDED.value,
  version=petri_storage.version+1,
  updated_at=EXCLUDED.updated_at;`
    data, err := domain.Encode(records)
    if err != nil { return err }
    if _, err := s.db.ExecContext(ctx, q, s.key, string(data), time.Now().UTC()); err != nil {
        return fmt.Errorf("postgres index put: %w", err)
    }
    return nil
}

func (s *IndexStore) Fingerprint(ctx context.Context) (string, error) {
    const q = `SELECT version FROM petri_storage WHERE storage_key=$1;`
    var v int64
    err := s.db.QueryRowContext(ctx, q, s.key).Scan(&v)
    if errors.Is(err, sql.ErrNoRows) { return "0", nil }
    if err != nil { return "", err }
    return strconv.FormatInt(v, 10), nil
}
