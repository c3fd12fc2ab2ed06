package index

import "context"

// Store port: durable holder of the whole record set.
// Get returns an empty list when nothing was stored yet and an error matching
// ErrCorrupt when the stored value cannot be decoded.
type Store interface {
	Get(ctx context.Context) ([]Record, error)
	Put(ctx context.Context, records []Record) error
}
