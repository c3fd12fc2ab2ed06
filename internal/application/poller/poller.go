// Package poller drives an analysis job to a terminal status with a fixed-interval
// status loop.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bryanwahyu/petri/internal/domain/analysis"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
)

// State of one poll loop
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
	StateCancelled  State = "cancelled"
	StateError      State = "error"
)

// StatusFetcher is the part of analysis.Service the poller needs.
type StatusFetcher interface {
	Status(ctx context.Context, id analysis.RequestID) (analysis.StatusReport, error)
	Results(ctx context.Context, id analysis.RequestID) (*analysis.Results, error)
}

// Observer receives the raw status of every poll, in poll order.
type Observer func(analysis.Status)

// Poller does not guard against two loops for the same id; callers own that.
type Poller struct {
	Service     StatusFetcher
	Interval    time.Duration
	MaxAttempts int
	Logger      *slog.Logger

	// sleep waits d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(svc StatusFetcher, interval time.Duration, maxAttempts int, logger *slog.Logger) *Poller {
	return &Poller{Service: svc, Interval: interval, MaxAttempts: maxAttempts, Logger: logger}
}

func (p *Poller) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultInterval
	}
	return p.Interval
}

func (p *Poller) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p *Poller) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Poll queries the status of id until it is completed, failed, the attempts run out or
// ctx is done. On completion the results are fetched once and returned.
func (p *Poller) Poll(ctx context.Context, id analysis.RequestID, observe Observer) (*analysis.Results, error) {
	sleep := p.sleep
	if sleep == nil {
		sleep = wait
	}
	limit := p.maxAttempts()
	log := p.logger().With("request_id", id)

	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}

		report, err := p.Service.Status(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, cancelled(ctx.Err())
			}
			return nil, err
		}
		if observe != nil {
			observe(report.Status)
		}
		log.Debug("poll", "attempt", attempt, "status", report.Status)

		switch report.Status {
		case analysis.StatusCompleted:
			res, err := p.Service.Results(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil, cancelled(ctx.Err())
				}
				return nil, err
			}
			if res == nil {
				return nil, analysis.ErrResultsMissing
			}
			return res, nil
		case analysis.StatusFailed:
			return nil, analysis.ErrAnalysisFailed
		}

		if attempt == limit {
			break
		}
		if err := sleep(ctx, p.interval()); err != nil {
			return nil, cancelled(err)
		}
	}

	log.Warn("poll attempts exhausted", "max_attempts", limit)
	return nil, fmt.Errorf("%w after %d attempts", analysis.ErrAnalysisTimedOut, limit)
}

// StateOf maps the outcome of Poll to the terminal state of the loop.
func StateOf(err error) State {
	switch {
	case err == nil:
		return StateCompleted
	case errors.Is(err, analysis.ErrAnalysisFailed):
		return StateFailed
	case errors.Is(err, analysis.ErrAnalysisTimedOut):
		return StateTimedOut
	case errors.Is(err, analysis.ErrCancelled):
		return StateCancelled
	default:
		return StateError
	}
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", analysis.ErrCancelled, cause)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
