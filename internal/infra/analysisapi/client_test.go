package analysisapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bryanwahyu/petri/internal/domain/analysis"
	"github.com/bryanwahyu/petri/internal/infra/analysisapi/analysisapitest"
)

func TestClientAgainstFakeService(t *testing.T) {
	fake := analysisapitest.New()
	srv := httptest.NewServer(fake.Handler())
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	ctx := context.Background()

	yes := true
	id, err := c.Submit(ctx, "best crm", analysis.SubmitOptions{UseCache: &yes, NumCompletions: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "req-1" {
		t.Fatalf("id %s", id)
	}

	st, err := c.Status(ctx, id)
	if err != nil || st.Status != analysis.StatusPending {
		t.Fatalf("Status = %+v, %v", st, err)
	}

	res, err := c.Results(ctx, id)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if res.Content != "answer for req-1" || len(res.Raw()) == 0 {
		t.Fatalf("results %+v", res)
	}
}

func TestSubmitSendsContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/analyze" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" || r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing headers: %v", r.Header)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["prompt"] != "p" || body["use_cache"] != false {
			t.Errorf("body %v", body)
		}
		w.Write([]byte(`{"request_id":"xyz"}`))
	}))
	defer srv.Close()

	no := false
	id, err := New(srv.URL+"/api/v1/", 0).Submit(context.Background(), "p", analysis.SubmitOptions{UseCache: &no})
	if err != nil || id != "xyz" {
		t.Fatalf("Submit = %s, %v", id, err)
	}
}

func TestNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := New(srv.URL, time.Second)

	_, err := c.Submit(context.Background(), "p", analysis.SubmitOptions{})
	te, ok := analysis.IsTransport(err)
	if !ok || te.StatusCode != 503 || te.Op != "start analysis" {
		t.Fatalf("expected transport error, got %v", err)
	}
	if err.Error() != "failed to start analysis: 503 Service Unavailable" {
		t.Fatalf("message %q", err.Error())
	}

	_, err = c.Status(context.Background(), "x")
	if te, ok := analysis.IsTransport(err); !ok || te.Op != "get analysis status" {
		t.Fatalf("status error %v", err)
	}
}

func TestResultsNullIsMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("null"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Results(context.Background(), "x")
	if !errors.Is(err, analysis.ErrResultsMissing) {
		t.Fatalf("expected ErrResultsMissing, got %v", err)
	}
}

func TestPathIsEscaped(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.EscapedPath()
		w.Write([]byte(`{"status":"pending","timestamp":""}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, time.Second).Status(context.Background(), "a/b c"); err != nil {
		t.Fatal(err)
	}
	if got != "/analysis/a%2Fb%20c/status" {
		t.Fatalf("path %s", got)
	}
}

func TestContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL, 0).Status(ctx, "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
