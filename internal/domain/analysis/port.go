package analysis

import (
	"context"
	"io"
)

// Service port: the remote analysis engine
type Service interface {
	Submit(ctx context.Context, prompt string, opts SubmitOptions) (RequestID, error)
	Status(ctx context.Context, id RequestID) (StatusReport, error)
	Results(ctx context.Context, id RequestID) (*Results, error)
}

// ResultArchive port (penyimpanan hasil analisis yang sudah selesai)
type ResultArchive interface {
	Put(ctx context.Context, id RequestID, body io.Reader, size int64) (string, error)
}

// Advisor port: turns results into optimization recommendations
type Advisor interface {
	Recommend(ctx context.Context, prompt string, r *Results) ([]Recommendation, error)
}
