// Package lifecycle reconciles what the user typed with the analysis job that answers it:
// it finds or submits the job, polls it to completion and keeps the index current.
package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bryanwahyu/petri/internal/application/poller"
	"github.com/bryanwahyu/petri/internal/domain/analysis"
	"github.com/bryanwahyu/petri/internal/domain/index"
)

// ErrPromptRequired is returned when neither a prompt nor a request id is given.
var ErrPromptRequired = errors.New("prompt is required")

// Source tells where the request id of a run came from
type Source string

const (
	SourceProvided  Source = "provided"
	SourceIndex     Source = "index"
	SourceSubmitted Source = "submitted"
)

// Index is the part of the analysis index the orchestrator writes.
type Index interface {
	Lookup(ctx context.Context, prompt string) (analysis.RequestID, bool, error)
	Upsert(ctx context.Context, prompt string, id analysis.RequestID) ([]index.Record, error)
}

// Poller drives one job to a terminal status.
type Poller interface {
	Poll(ctx context.Context, id analysis.RequestID, observe poller.Observer) (*analysis.Results, error)
}

// Request is one presentation request: a prompt and, optionally, the id already known
// for it (e.g. from the page address).
type Request struct {
	Prompt    string
	RequestID analysis.RequestID
}

// Observer callbacks are optional. They are called synchronously and must not block.
type Observer struct {
	// OnRequestID is called once the id to poll is known; the caller should update
	// its address to reference it.
	OnRequestID func(id analysis.RequestID, src Source)
	// OnStatus is called with every polled status, in order.
	OnStatus func(analysis.Status)
}

func (o Observer) requestID(id analysis.RequestID, src Source) {
	if o.OnRequestID != nil {
		o.OnRequestID(id, src)
	}
}

func (o Observer) status(s analysis.Status) {
	if o.OnStatus != nil {
		o.OnStatus(s)
	}
}

// Service orchestrates Index, API and Poller. The zero value of the unexported fields
// is ready to use; Service must not be copied after first use.
type Service struct {
	API     analysis.Service
	Index   Index
	Poller  Poller
	Archive analysis.ResultArchive // optional
	Submit  analysis.SubmitOptions
	Logger  *slog.Logger

	inflight singleflight.Group

	runsMu sync.Mutex
	runs   map[analysis.RequestID]*run
}

type submission struct {
	id  analysis.RequestID
	src Source
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Resolve finds the request id for req: the given one, the indexed one, or a freshly
// submitted job that is recorded in the index.
func (s *Service) Resolve(ctx context.Context, req Request) (analysis.RequestID, Source, error) {
	if req.RequestID != "" {
		return req.RequestID, SourceProvided, nil
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", "", ErrPromptRequired
	}

	id, ok, err := s.Index.Lookup(ctx, req.Prompt)
	if err != nil {
		return "", "", err
	}
	if ok {
		return id, SourceIndex, nil
	}
	return s.submit(ctx, req.Prompt)
}

// submit creates at most one remote job per prompt at a time. Callers arriving while a
// submission is in flight share its outcome instead of creating a duplicate job.
func (s *Service) submit(ctx context.Context, prompt string) (analysis.RequestID, Source, error) {
	ch := s.inflight.DoChan(prompt, func() (any, error) {
		// detached so one impatient caller does not fail the others
		bg := context.WithoutCancel(ctx)

		// a submission that finished between our lookup and this call already indexed it
		if id, ok, err := s.Index.Lookup(bg, prompt); err == nil && ok {
			return submission{id: id, src: SourceIndex}, nil
		}

		id, err := s.API.Submit(bg, prompt, s.Submit)
		if err != nil {
			return nil, err
		}
		if _, err := s.Index.Upsert(bg, prompt, id); err != nil {
			return nil, fmt.Errorf("recording request %s: %w", id, err)
		}
		s.logger().Info("analysis submitted", "prompt", prompt, "request_id", id)
		return submission{id: id, src: SourceSubmitted}, nil
	})

	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", "", r.Err
		}
		sub := r.Val.(submission)
		return sub.id, sub.src, nil
	}
}

// Run executes the whole lifecycle for req and returns the results of the completed job.
// On failure, timeout or cancellation the index entry is left in place so a retry reuses
// the same request id.
func (s *Service) Run(ctx context.Context, req Request, obs Observer) (*analysis.Results, error) {
	id, src, err := s.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	obs.requestID(id, src)

	log := s.logger().With("request_id", id, "source", src)
	res, err := s.await(ctx, id, obs.status)
	if err != nil {
		log.Warn("analysis did not complete", "state", poller.StateOf(err), "error", err)
		return nil, err
	}

	if req.Prompt != "" {
		if _, err := s.Index.Upsert(ctx, req.Prompt, id); err != nil {
			return nil, fmt.Errorf("refreshing index for %s: %w", id, err)
		}
	}
	s.archive(ctx, id, res)

	log.Info("analysis completed", "sources", len(res.Sources))
	return res, nil
}

// archive stores the results when an archive is configured. Failures are only logged.
func (s *Service) archive(ctx context.Context, id analysis.RequestID, res *analysis.Results) {
	if s.Archive == nil {
		return
	}
	body, err := json.Marshal(res)
	if err != nil {
		s.logger().Warn("encoding results for archive", "request_id", id, "error", err)
		return
	}
	url, err := s.Archive.Put(ctx, id, bytes.NewReader(body), int64(len(body)))
	if err != nil {
		s.logger().Warn("archiving results", "request_id", id, "error", err)
		return
	}
	s.logger().Debug("results archived", "request_id", id, "url", url)
}
