package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/petri/internal/domain/analysis"
)

// RunInfo describes an active poll loop
type RunInfo struct {
	RunID     string             `json:"run_id"`
	RequestID analysis.RequestID `json:"request_id"`
	Status    analysis.Status    `json:"status,omitempty"`
	Attached  int                `json:"attached"`
	StartedAt time.Time          `json:"started_at"`
}

// run is the single poll loop of one request id, shared by every attached caller.
type run struct {
	runID     string
	id        analysis.RequestID
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	// guarded by Service.runsMu
	refs int

	mu       sync.Mutex
	last     analysis.Status
	seq      int
	watchers map[int]*watcher
	nextW    int

	// set before done is closed
	res *analysis.Results
	err error
}

// watcher delivers statuses to one caller in publish order. Callbacks run without
// run.mu held, so they may call back into the Service.
type watcher struct {
	fn   func(analysis.Status)
	mu   sync.Mutex
	seen int
}

func (w *watcher) deliver(seq int, st analysis.Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// a replay that lost the race against a newer publish is stale
	if seq <= w.seen {
		return
	}
	w.seen = seq
	w.fn(st)
}

func (r *run) publish(st analysis.Status) {
	r.mu.Lock()
	r.last = st
	r.seq++
	seq := r.seq
	targets := make([]*watcher, 0, len(r.watchers))
	for _, w := range r.watchers {
		targets = append(targets, w)
	}
	r.mu.Unlock()

	for _, w := range targets {
		w.deliver(seq, st)
	}
}

// watch registers fn and replays the last status, so a late caller sees the same
// sequence tail as the first one.
func (r *run) watch(fn func(analysis.Status)) int {
	w := &watcher{fn: fn}
	r.mu.Lock()
	id := r.nextW
	r.nextW++
	r.watchers[id] = w
	seq, last := r.seq, r.last
	r.mu.Unlock()

	if last != "" {
		w.deliver(seq, last)
	}
	return id
}

func (r *run) unwatch(id int) {
	r.mu.Lock()
	delete(r.watchers, id)
	r.mu.Unlock()
}

// await attaches to the poll loop of id, starting it when none is active, and waits for
// its outcome or for ctx. The loop stops once no caller is attached anymore.
func (s *Service) await(ctx context.Context, id analysis.RequestID, onStatus func(analysis.Status)) (*analysis.Results, error) {
	r := s.attach(id)
	wid := r.watch(onStatus)
	defer s.detach(r, wid)

	select {
	case <-r.done:
		return r.res, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", analysis.ErrCancelled, ctx.Err())
	}
}

func (s *Service) attach(id analysis.RequestID) *run {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	if s.runs == nil {
		s.runs = make(map[analysis.RequestID]*run)
	}
	r, ok := s.runs[id]
	// a cancelled loop that has not exited yet cannot serve new callers
	if !ok || r.ctx.Err() != nil {
		loopCtx, cancel := context.WithCancel(context.Background())
		r = &run{
			runID:     uuid.NewString(),
			id:        id,
			startedAt: time.Now(),
			ctx:       loopCtx,
			cancel:    cancel,
			done:      make(chan struct{}),
			watchers:  make(map[int]*watcher),
		}
		s.runs[id] = r
		s.logger().Debug("poll loop started", "request_id", id, "run_id", r.runID)
		go s.loop(loopCtx, r)
	}
	r.refs++
	return r
}

func (s *Service) detach(r *run, wid int) {
	r.unwatch(wid)

	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	r.refs--
	if r.refs <= 0 {
		r.cancel()
	}
}

func (s *Service) loop(ctx context.Context, r *run) {
	res, err := s.Poller.Poll(ctx, r.id, r.publish)

	s.runsMu.Lock()
	if s.runs[r.id] == r {
		delete(s.runs, r.id)
	}
	s.runsMu.Unlock()

	r.res, r.err = res, err
	close(r.done)
	r.cancel()
}

// Cancel stops the active poll loop of id. It reports whether one was running.
func (s *Service) Cancel(id analysis.RequestID) bool {
	s.runsMu.Lock()
	r, ok := s.runs[id]
	s.runsMu.Unlock()
	if ok {
		s.logger().Info("poll loop cancelled", "request_id", id, "run_id", r.runID)
		r.cancel()
	}
	return ok
}

// Active lists the running poll loops, oldest first.
func (s *Service) Active() []RunInfo {
	s.runsMu.Lock()
	runs := make([]*run, 0, len(s.runs))
	refs := make(map[*run]int, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
		refs[r] = r.refs
	}
	s.runsMu.Unlock()

	out := make([]RunInfo, 0, len(runs))
	for _, r := range runs {
		r.mu.Lock()
		last := r.last
		r.mu.Unlock()
		out = append(out, RunInfo{
			RunID:     r.runID,
			RequestID: r.id,
			Status:    last,
			Attached:  refs[r],
			StartedAt: r.startedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
