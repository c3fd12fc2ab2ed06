package advisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanwahyu/petri/internal/domain/analysis"
)

// ErrNotCompleted is returned when recommendations are asked for an unfinished analysis.
var ErrNotCompleted = errors.New("analysis not completed")

// ResultsFetcher is the part of analysis.Service the advisor needs.
type ResultsFetcher interface {
	Status(ctx context.Context, id analysis.RequestID) (analysis.StatusReport, error)
	Results(ctx context.Context, id analysis.RequestID) (*analysis.Results, error)
}

type Service struct {
	api    ResultsFetcher
	client analysis.Advisor
}

// NewService returns a Service; a nil client makes every call fail with ErrAdvisorDisabled.
func NewService(api ResultsFetcher, client analysis.Advisor) *Service {
	return &Service{api: api, client: client}
}

// Enabled reports whether a recommendation provider is configured.
func (s *Service) Enabled() bool { return s.client != nil }

// Recommend asks for optimization recommendations for a completed analysis.
func (s *Service) Recommend(ctx context.Context, prompt string, id analysis.RequestID) ([]analysis.Recommendation, error) {
	if s.client == nil {
		return nil, analysis.ErrAdvisorDisabled
	}

	report, err := s.api.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.Status != analysis.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, report.Status)
	}

	res, err := s.api.Results(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.client.Recommend(ctx, prompt, res)
}
