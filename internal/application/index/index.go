// Package index keeps the durable prompt -> request id mapping that the dashboard
// uses to resume and list past analyses.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bryanwahyu/petri/internal/application"
	"github.com/bryanwahyu/petri/internal/domain/analysis"
	domain "github.com/bryanwahyu/petri/internal/domain/index"
)

// Index is safe for concurrent use within one process. Read-modify-write cycles are
// serialised by a mutex; other processes writing the same store are not coordinated.
type Index struct {
	store  domain.Store
	clock  application.Clock
	logger *slog.Logger

	mu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int
}

func New(store domain.Store, clock application.Clock, logger *slog.Logger) *Index {
	if clock == nil {
		clock = application.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		store:  store,
		clock:  clock,
		logger: logger,
		subs:   make(map[int]func()),
	}
}

// load reads the record set, treating a corrupt store as empty.
func (x *Index) load(ctx context.Context) ([]domain.Record, error) {
	records, err := x.store.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCorrupt) {
			x.logger.Warn("index storage corrupt, treating as empty", "error", err)
			return []domain.Record{}, nil
		}
		return nil, fmt.Errorf("reading index: %w", err)
	}
	if records == nil {
		records = []domain.Record{}
	}
	domain.SortByRecency(records)
	return records, nil
}

// Upsert replaces the record for prompt with a fresh one pointing at id.
func (x *Index) Upsert(ctx context.Context, prompt string, id analysis.RequestID) ([]domain.Record, error) {
	x.mu.Lock()
	records, err := x.load(ctx)
	if err != nil {
		x.mu.Unlock()
		return nil, err
	}

	rec := domain.Record{
		Prompt:    prompt,
		RequestID: string(id),
		Timestamp: x.clock.Now().UnixMilli(),
	}
	updated := append([]domain.Record{rec}, domain.Without(records, prompt)...)
	domain.SortByRecency(updated)

	if err := x.store.Put(ctx, updated); err != nil {
		x.mu.Unlock()
		return nil, fmt.Errorf("writing index: %w", err)
	}
	x.mu.Unlock()

	x.logger.Debug("index upsert", "prompt", prompt, "request_id", id, "records", len(updated))
	x.Notify()
	return cloneRecords(updated), nil
}

// Remove deletes the record for prompt. Removing an unknown prompt is not an error.
func (x *Index) Remove(ctx context.Context, prompt string) ([]domain.Record, error) {
	x.mu.Lock()
	records, err := x.load(ctx)
	if err != nil {
		x.mu.Unlock()
		return nil, err
	}

	updated := domain.Without(records, prompt)
	changed := len(updated) != len(records)
	if err := x.store.Put(ctx, updated); err != nil {
		x.mu.Unlock()
		return nil, fmt.Errorf("writing index: %w", err)
	}
	x.mu.Unlock()

	if changed {
		x.logger.Debug("index remove", "prompt", prompt, "records", len(updated))
		x.Notify()
	}
	return cloneRecords(updated), nil
}

// Lookup returns the request id stored for prompt.
func (x *Index) Lookup(ctx context.Context, prompt string) (analysis.RequestID, bool, error) {
	records, err := x.List(ctx)
	if err != nil {
		return "", false, err
	}
	rec, ok := domain.Find(records, prompt)
	if !ok || rec.RequestID == "" {
		return "", false, nil
	}
	return analysis.RequestID(rec.RequestID), true, nil
}

// List returns every record, most recent first.
func (x *Index) List(ctx context.Context) ([]domain.Record, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.load(ctx)
}

// Search filters List case-insensitively by term and keeps at most limit records (0 = all).
func (x *Index) Search(ctx context.Context, term string, limit int) ([]domain.Record, error) {
	records, err := x.List(ctx)
	if err != nil {
		return nil, err
	}
	return domain.Filter(records, term, limit), nil
}

// OnChange registers fn to be called after every change. The returned function
// unsubscribes; calling it more than once is harmless.
func (x *Index) OnChange(fn func()) (unsubscribe func()) {
	x.subMu.Lock()
	id := x.nextID
	x.nextID++
	x.subs[id] = fn
	x.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			x.subMu.Lock()
			delete(x.subs, id)
			x.subMu.Unlock()
		})
	}
}

// Notify calls every subscriber. Watchers call it when another process changed the store.
func (x *Index) Notify() {
	x.subMu.Lock()
	ids := make([]int, 0, len(x.subs))
	for id := range x.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, x.subs[id])
	}
	x.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func cloneRecords(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	copy(out, records)
	return out
}
