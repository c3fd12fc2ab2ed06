package prompt

import (
    "strings"
    "testing"

    "github.com/bryanwahyu/petri/internal/domain/analysis"
)

func TestParseRecommendationsStripsFences(t *testing.T) {
    recs, err := ParseRecommendations("```json\n{\"recommendations\":[{\"title\":\"T\",\"category\":\"bogus\",\"impact\":\"LOW\"}]}\n```")
    if err != nil {
        t.Fatal(err)
    }
    if len(recs) != 1 || recs[0].ID != "rec-1" || recs[0].Category != "content" || recs[0].Impact != "low" || recs[0].Effort != "medium" {
        t.Fatalf("normalized %+v", recs)
    }
    if _, err := ParseRecommendations("not json"); err == nil {
        t.Fatal("expected decode error")
    }
}

func TestGetUserPromptCarriesCitations(t *testing.T) {
    r := &analysis.Results{
        Content: "answer",
        Sources: []analysis.Source{
            {URL: "https://b.example", Title: "B", CitationMetadata: analysis.CitationMetadata{Order: 2}},
            {URL: "https://a.example", Title: "A", CitationMetadata: analysis.CitationMetadata{Order: 1}},
        },
        CalculatedMetrics: analysis.CalculatedMetrics{Scores: analysis.Scores{WordCount: []float64{0.25, 0.75}}},
    }
    msg := GetUserPrompt("best crm", r)
    for _, want := range []string{`"prompt":"best crm"`, `"url":"https://a.example"`, `"word_count":0.75`} {
        if !strings.Contains(msg, want) {
            t.Errorf("user prompt missing %s: %s", want, msg)
        }
    }
    if strings.Index(msg, "a.example") > strings.Index(msg, "b.example") {
        t.Error("sources not in citation order")
    }
}

func TestHeuristicRules(t *testing.T) {
    r := &analysis.Results{
        Sources: []analysis.Source{{URL: "https://competitor.io/x", Title: "Competitor", CitationMetadata: analysis.CitationMetadata{Order: 1}}},
        TargetPageInfo: analysis.TargetPageInfo{
            TargetPageFound:  true,
            TargetPageSource: "secondary",
            TargetDomain:     "example.com",
        },
    }
    r.TargetPageInfo.TargetContent.Metadata.CitationMetadata.Order = 5

    ids := map[string]bool{}
    for _, rec := range HeuristicRecommendations("p", r) {
        ids[rec.ID] = true
    }
    for _, want := range []string{"primary-source", "citation-rank", "meta-description", "expand-summary", "study-top-source"} {
        if !ids[want] {
            t.Errorf("missing %s in %v", want, ids)
        }
    }
}
