// Package analysisapitest provides a scripted analysis service for tests, usable
// directly as analysis.Service or over HTTP through Handler.
package analysisapitest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bryanwahyu/petri/internal/domain/analysis"
)

// Fake answers status queries from a per-id script. Once a script is exhausted its
// last status repeats. Ids without a script use Default.
type Fake struct {
	mu sync.Mutex

	Default   []analysis.Status
	Script    map[analysis.RequestID][]analysis.Status
	Payloads  map[analysis.RequestID]*analysis.Results
	SubmitErr error
	StatusErr error
	// Gate, when set, blocks Submit until it is closed.
	Gate chan struct{}

	submits []string
	polls   map[analysis.RequestID]int
	fetches map[analysis.RequestID]int
	nextID  int
}

func New() *Fake {
	return &Fake{
		Default:  []analysis.Status{analysis.StatusPending, analysis.StatusProcessing, analysis.StatusCompleted},
		Script:   make(map[analysis.RequestID][]analysis.Status),
		Payloads: make(map[analysis.RequestID]*analysis.Results),
		polls:    make(map[analysis.RequestID]int),
		fetches:  make(map[analysis.RequestID]int),
	}
}

// SetScript replaces the status sequence of id.
func (f *Fake) SetScript(id analysis.RequestID, seq ...analysis.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Script[id] = seq
}

func (f *Fake) Submit(ctx context.Context, prompt string, _ analysis.SubmitOptions) (analysis.RequestID, error) {
	f.mu.Lock()
	gate := f.Gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.nextID++
	f.submits = append(f.submits, prompt)
	return analysis.RequestID(fmt.Sprintf("req-%d", f.nextID)), nil
}

func (f *Fake) Status(ctx context.Context, id analysis.RequestID) (analysis.StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return analysis.StatusReport{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return analysis.StatusReport{}, f.StatusErr
	}
	f.polls[id]++
	seq, ok := f.Script[id]
	if !ok {
		seq = f.Default
	}
	if len(seq) == 0 {
		return analysis.StatusReport{Status: analysis.StatusPending}, nil
	}
	i := f.polls[id] - 1
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return analysis.StatusReport{Status: seq[i], Timestamp: "2026-01-01T00:00:00Z"}, nil
}

func (f *Fake) Results(ctx context.Context, id analysis.RequestID) (*analysis.Results, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[id]++
	if r, ok := f.Payloads[id]; ok {
		if r == nil {
			return nil, analysis.ErrResultsMissing
		}
		return r, nil
	}
	return &analysis.Results{Content: "answer for " + string(id)}, nil
}

// Submits returns the prompts submitted so far, in order.
func (f *Fake) Submits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submits...)
}

// Polls returns how many status queries id received.
func (f *Fake) Polls(id analysis.RequestID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[id]
}

// Fetches returns how many results requests id received.
func (f *Fake) Fetches(id analysis.RequestID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

// Handler serves the HTTP contract of the analysis service from f.
func (f *Fake) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req analysis.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, err := f.Submit(r.Context(), req.Prompt, req.SubmitOptions)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, analysis.SubmitResponse{RequestID: id})
	})
	mux.HandleFunc("/analysis/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/analysis/")
		if id, ok := strings.CutSuffix(rest, "/status"); ok {
			st, err := f.Status(r.Context(), analysis.RequestID(id))
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, st)
			return
		}
		res, err := f.Results(r.Context(), analysis.RequestID(rest))
		if err != nil {
			writeJSON(w, nil)
			return
		}
		writeJSON(w, res)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
