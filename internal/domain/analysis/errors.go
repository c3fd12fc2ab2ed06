package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrAnalysisFailed is returned when the service reports status "failed".
	ErrAnalysisFailed = errors.New("analysis failed")
	// ErrAnalysisTimedOut is returned when polling gives up before a terminal status.
	// The job may still finish remotely.
	ErrAnalysisTimedOut = errors.New("analysis timed out")
	// ErrCancelled is returned when polling is stopped through its context.
	ErrCancelled = errors.New("analysis polling cancelled")
	// ErrResultsMissing is returned when a completed analysis has no results body.
	ErrResultsMissing = errors.New("analysis results missing")

	// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
	ErrQuotaExceeded = errors.New("ai quota exceeded")
	// ErrAdvisorDisabled is returned when no recommendation provider is configured.
	ErrAdvisorDisabled = errors.New("optimization advisor disabled")
)

// TransportError is a non-2xx answer from the analysis service.
type TransportError struct {
	Op         string // "start analysis", "get analysis status", "get analysis results"
	StatusCode int
	Status     string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s: %s", e.Op, e.Status)
}

// IsTransport reports whether err carries a TransportError and returns it.
func IsTransport(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
