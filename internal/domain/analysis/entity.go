package analysis

import (
	"bytes"
	"encoding/json"
	"sort"
)

// RequestID is the opaque job identifier issued by the analysis service
type RequestID string

// Status enum
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further polling happens after this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StatusReport is the body of one status poll
type StatusReport struct {
	Status    Status `json:"status"`
	Timestamp string `json:"timestamp"`
}

// SubmitOptions are the optional flags sent with a new analysis
type SubmitOptions struct {
	UseCache       *bool `json:"use_cache,omitempty"`
	NumCompletions int   `json:"num_completions,omitempty"`
}

// SubmitRequest is the wire body of POST /analyze
type SubmitRequest struct {
	Prompt string `json:"prompt"`
	SubmitOptions
}

// SubmitResponse is the wire body returned by POST /analyze
type SubmitResponse struct {
	RequestID RequestID `json:"request_id"`
}

// CitationMetadata describes where and how a source was cited
type CitationMetadata struct {
	Order          int    `json:"order"`
	ReferenceStyle string `json:"reference_style"`
	TotalCitations int    `json:"total_citations,omitempty"`
	Snippet        string `json:"snippet,omitempty"`
}

// Source is one cited source of the generated response
type Source struct {
	URL              string           `json:"url"`
	Title            string           `json:"title"`
	Content          string           `json:"content"`
	Description      string           `json:"description"`
	SourceType       string           `json:"source_type"`
	CitationMetadata CitationMetadata `json:"citation_metadata"`
}

// TargetPageContent is the matched target page, when found
type TargetPageContent struct {
	Content  string `json:"content"`
	Summary  string `json:"summary"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Metadata struct {
		SourceType       string           `json:"source_type"`
		Domain           string           `json:"domain"`
		IsTargetPage     bool             `json:"is_target_page"`
		GoogleSnippet    string           `json:"google_snippet"`
		CitationMetadata CitationMetadata `json:"citation_metadata"`
	} `json:"metadata"`
}

// TargetPageInfo reports whether the target domain was cited
type TargetPageInfo struct {
	TargetPageFound  bool              `json:"target_page_found"`
	TargetPageSource string            `json:"target_page_source"` // primary | secondary
	TargetDomain     string            `json:"target_domain"`
	TargetContent    TargetPageContent `json:"target_content"`
}

// Scores holds per-source derived metrics, index-aligned with Sources
type Scores struct {
	WordPosition    []float64 `json:"word_position"`
	WordCount       []float64 `json:"word_count"`
	CitationQuality []float64 `json:"citation_quality"`
}

// CalculatedMetrics value object
type CalculatedMetrics struct {
	Scores   Scores `json:"scores"`
	Metadata struct {
		TotalCitations int  `json:"total_citations"`
		HasCitations   bool `json:"has_citations"`
	} `json:"metadata"`
}

// Results is the payload of a completed analysis. The client does not interpret it;
// the original document is kept and re-emitted as-is on marshal so fields unknown
// to this struct are not lost on the way to the dashboard.
type Results struct {
	Content           string            `json:"content"`
	Sources           []Source          `json:"sources"`
	TargetPageInfo    TargetPageInfo    `json:"target_page_info"`
	CalculatedMetrics CalculatedMetrics `json:"calculated_metrics"`

	raw json.RawMessage
}

// results avoids recursion into Results' own (Un)MarshalJSON
type results Results

func (r *Results) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var typed results
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	*r = Results(typed)
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (r Results) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	return json.Marshal(results(r))
}

// Raw returns the document as received from the service, or nil for locally built values.
func (r *Results) Raw() json.RawMessage {
	return r.raw
}

// CitedSources returns sources ordered as cited (citation_metadata.order ascending),
// dropping the ones without an order.
func (r *Results) CitedSources() []Source {
	out := make([]Source, 0, len(r.Sources))
	for _, s := range r.Sources {
		if s.CitationMetadata.Order > 0 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CitationMetadata.Order < out[j].CitationMetadata.Order
	})
	return out
}

// Recommendation is one optimization suggestion for the target page
type Recommendation struct {
	ID          string `json:"id"`
	Category    string `json:"category"` // content | structure | technical
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"` // high | medium | low
	Effort      string `json:"effort"` // high | medium | low
}
