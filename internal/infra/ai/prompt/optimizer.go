package prompt

import (
    "encoding/json"
    "fmt"
    "strings"

    "github.com/bryanwahyu/petri/internal/domain/analysis"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
    return `You are a generative-engine optimization consultant. An assistant answered a user prompt and cited web sources. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- recommendations is an array of 3 to 6 items ordered by impact.
- category is one of: content, structure, technical.
- impact and effort use lowercase values: high, medium, low.
- Recommendations must help the target page get cited earlier and more often for this prompt.
- Base every recommendation on the data provided; do not invent metrics.

Schema (example with empty values):
{
  "recommendations": [
    {
      "id": "<short-kebab-case>",
      "category": "<content|structure|technical>",
      "title": "<string>",
      "description": "<string>",
      "impact": "<high|medium|low>",
      "effort": "<high|medium|low>"
    }
  ]
}`
}

// maxSnippet keeps the user message compact
const maxSnippet = 280

type citedSource struct {
    Order       int     `json:"order"`
    URL         string  `json:"url"`
    Title       string  `json:"title"`
    Snippet     string  `json:"snippet,omitempty"`
    WordPos     float64 `json:"word_position,omitempty"`
    WordCount   float64 `json:"word_count,omitempty"`
    CiteQuality float64 `json:"citation_quality,omitempty"`
}

type summary struct {
    Prompt          string        `json:"prompt"`
    TargetDomain    string        `json:"target_domain"`
    TargetFound     bool          `json:"target_page_found"`
    TargetSource    string        `json:"target_page_source,omitempty"`
    TargetURL       string        `json:"target_url,omitempty"`
    TargetSummary   string        `json:"target_summary,omitempty"`
    TotalCitations  int           `json:"total_citations"`
    Sources         []citedSource `json:"cited_sources"`
    ResponseExcerpt string        `json:"response_excerpt"`
}

// GetUserPrompt builds the user message from the analysis results.
func GetUserPrompt(userPrompt string, r *analysis.Results) string {
    s := summary{
        Prompt:          userPrompt,
        TargetDomain:    r.TargetPageInfo.TargetDomain,
        TargetFound:     r.TargetPageInfo.TargetPageFound,
        TargetSource:    r.TargetPageInfo.TargetPageSource,
        TargetURL:       r.TargetPageInfo.TargetContent.URL,
        TargetSummary:   trim(r.TargetPageInfo.TargetContent.Summary, maxSnippet),
        TotalCitations:  r.CalculatedMetrics.Metadata.TotalCitations,
        ResponseExcerpt: trim(r.Content, 4*maxSnippet),
    }
    for _, src := range r.CitedSources() {
        c := citedSource{
            Order:   src.CitationMetadata.Order,
            URL:     src.URL,
            Title:   src.Title,
            Snippet: trim(src.CitationMetadata.Snippet, maxSnippet),
        }
        if i := sourceIndex(r, src.URL); i >= 0 {
            c.WordPos = at(r.CalculatedMetrics.Scores.WordPosition, i)
            c.WordCount = at(r.CalculatedMetrics.Scores.WordCount, i)
            c.CiteQuality = at(r.CalculatedMetrics.Scores.CitationQuality, i)
        }
        s.Sources = append(s.Sources, c)
    }

    b, err := json.Marshal(s)
    if err != nil {
        // summary only holds strings and numbers
        b = []byte("{}")
    }
    return fmt.Sprintf("Recommend how the target page can be cited better for this prompt. Respond with the JSON per schema. Data: %s", b)
}

// Envelope is the response object the model is asked for.
type Envelope struct {
    Recommendations []analysis.Recommendation `json:"recommendations"`
}

// ParseRecommendations decodes the model output and normalizes the enum fields.
func ParseRecommendations(raw string) ([]analysis.Recommendation, error) {
    raw = strings.TrimSpace(raw)
    raw = strings.TrimPrefix(raw, "```json")
    raw = strings.TrimPrefix(raw, "```")
    raw = strings.TrimSuffix(raw, "```")

    var env Envelope
    if err := json.Unmarshal([]byte(raw), &env); err != nil {
        return nil, fmt.Errorf("decoding recommendations: %w", err)
    }
    out := make([]analysis.Recommendation, 0, len(env.Recommendations))
    for i, rec := range env.Recommendations {
        if strings.TrimSpace(rec.Title) == "" {
            continue
        }
        if rec.ID == "" {
            rec.ID = fmt.Sprintf("rec-%d", i+1)
        }
        rec.Category = oneOf(rec.Category, "content", "content", "structure", "technical")
        rec.Impact = oneOf(rec.Impact, "medium", "high", "medium", "low")
        rec.Effort = oneOf(rec.Effort, "medium", "high", "medium", "low")
        out = append(out, rec)
    }
    return out, nil
}

func oneOf(v, def string, allowed ...string) string {
    v = strings.ToLower(strings.TrimSpace(v))
    for _, a := range allowed {
        if v == a {
            return v
        }
    }
    return def
}

func trim(s string, n int) string {
    if len(s) <= n {
        return s
    }
    return s[:n] + "..."
}

func sourceIndex(r *analysis.Results, url string) int {
    for i, s := range r.Sources {
        if s.URL == url {
            return i
        }
    }
    return -1
}

func at(xs []float64, i int) float64 {
    if i < 0 || i >= len(xs) {
        return 0
    }
    return xs[i]
}
