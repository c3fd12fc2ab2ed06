package openai

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/sashabaranov/go-openai"

    "github.com/bryanwahyu/petri/internal/domain/analysis"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
    t.Helper()
    srv := httptest.NewServer(h)
    t.Cleanup(srv.Close)
    cfg := openai.DefaultConfig("test-key")
    cfg.BaseURL = srv.URL + "/v1"
    return NewClientWithConfig(cfg, "gpt-4o-mini")
}

func TestRecommendParsesModelOutput(t *testing.T) {
    content := `{"recommendations":[{"id":"a","category":"STRUCTURE","title":"Add a summary","description":"d","impact":"high","effort":"weird"},{"title":""}]}`
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/v1/chat/completions" {
            t.Errorf("unexpected path %s", r.URL.Path)
        }
        var req openai.ChatCompletionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            t.Errorf("decode request: %v", err)
        }
        if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
            t.Errorf("expected json_object response format")
        }
        w.Header().Set("Content-Type", "application/json")
        json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
            Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: "assistant", Content: content}}},
        })
    })

    recs, err := c.Recommend(context.Background(), "best crm", &analysis.Results{})
    if err != nil {
        t.Fatalf("Recommend: %v", err)
    }
    if len(recs) != 1 {
        t.Fatalf("expected 1 recommendation, got %d", len(recs))
    }
    if recs[0].Category != "structure" || recs[0].Effort != "medium" {
        t.Fatalf("enums not normalized: %#v", recs[0])
    }
}

func TestRecommendQuota(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "application/json")
        w.WriteHeader(http.StatusTooManyRequests)
        w.Write([]byte(`{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
    })
    _, err := c.Recommend(context.Background(), "p", &analysis.Results{})
    if !errors.Is(err, analysis.ErrQuotaExceeded) {
        t.Fatalf("expected ErrQuotaExceeded, got %v", err)
    }
}
