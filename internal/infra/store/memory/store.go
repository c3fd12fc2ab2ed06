package memory

import (
	"context"
	"sync"

	domain "github.com/bryanwahyu/petri/internal/domain/index"
)

// Store is a process-local index store. Values are copied in and out.
type Store struct {
	mu      sync.Mutex
	records []domain.Record
	version int64
}

func New(seed ...domain.Record) *Store {
	s := &Store{}
	if len(seed) > 0 {
		s.records = append([]domain.Record(nil), seed...)
		domain.SortByRecency(s.records)
	}
	return s
}

func (s *Store) Get(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Record{}, s.records...), nil
}

func (s *Store) Put(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]domain.Record(nil), records...)
	s.version++
	return nil
}

// Puts returns how many times Put succeeded.
func (s *Store) Puts() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}
