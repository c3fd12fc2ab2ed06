package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bryanwahyu/petri/internal/application/advisor"
	appindex "github.com/bryanwahyu/petri/internal/application/index"
	"github.com/bryanwahyu/petri/internal/application/lifecycle"
	"github.com/bryanwahyu/petri/internal/application/poller"
	"github.com/bryanwahyu/petri/internal/domain/analysis"
	domain "github.com/bryanwahyu/petri/internal/domain/index"
	"github.com/bryanwahyu/petri/internal/infra/ai/prompt"
	"github.com/bryanwahyu/petri/internal/infra/analysisapi/analysisapitest"
	"github.com/bryanwahyu/petri/internal/infra/logging"
	"github.com/bryanwahyu/petri/internal/infra/store/memory"
)

type testServer struct {
	api    *analysisapitest.Fake
	lc     *lifecycle.Service
	index  *appindex.Index
	hub    *Hub
	router *Router
	srv    *httptest.Server
}

func newTestServer(t *testing.T, interval time.Duration, adv analysis.Advisor, seed ...domain.Record) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	api := analysisapitest.New()
	idx := appindex.New(memory.New(seed...), nil, logging.Discard())
	lc := &lifecycle.Service{
		API:    api,
		Index:  idx,
		Poller: poller.New(api, interval, 30, logging.Discard()),
		Logger: logging.Discard(),
	}
	hub := NewHub(logging.Discard())
	go hub.Run(ctx)

	router := NewRouter(ctx, Deps{
		Lifecycle:    lc,
		Index:        idx,
		API:          api,
		Advisor:      advisor.NewService(api, adv),
		Hub:          hub,
		Logger:       logging.Discard(),
		RateCapacity: 100,
		RateRefill:   10,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		router.Close()
	})
	return &testServer{api: api, lc: lc, index: idx, hub: hub, router: router, srv: srv}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(method, s.srv.URL+path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) []Event {
	t.Helper()
	var seen []Event
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var e Event
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("reading events (seen %v): %v", seen, err)
		}
		seen = append(seen, e)
		if e.Type == typ {
			return seen
		}
	}
}

func TestStartAnalysisStreamsEvents(t *testing.T) {
	s := newTestServer(t, time.Millisecond, nil)
	conn := s.dial(t)

	resp, body := s.do(t, http.MethodPost, "/api/v1/analyses", `{"prompt":"best crm"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d %v", resp.StatusCode, body)
	}
	if body["request_id"] != "req-1" || body["source"] != string(lifecycle.SourceSubmitted) {
		t.Fatalf("body %v", body)
	}

	events := readUntil(t, conn, EventFinished)
	last := events[len(events)-1]
	if last.RequestID != "req-1" || last.State != poller.StateCompleted || last.Error != "" {
		t.Fatalf("finished event %+v", last)
	}
	var statuses []analysis.Status
	for _, e := range events {
		if e.Type == EventStatus {
			statuses = append(statuses, e.Status)
		}
	}
	if len(statuses) == 0 || statuses[len(statuses)-1] != analysis.StatusCompleted {
		t.Fatalf("statuses %v", statuses)
	}

	id, ok, err := s.index.Lookup(context.Background(), "best crm")
	if err != nil || !ok || id != "req-1" {
		t.Fatalf("index lookup = %s %v %v", id, ok, err)
	}
}

func TestStartAnalysisReusesIndexedID(t *testing.T) {
	s := newTestServer(t, time.Millisecond, nil, domain.Record{Prompt: "best crm", RequestID: "known", Timestamp: 1})

	resp, body := s.do(t, http.MethodPost, "/api/v1/analyses", `{"prompt":"best crm"}`)
	if resp.StatusCode != http.StatusAccepted || body["request_id"] != "known" || body["source"] != "index" {
		t.Fatalf("%d %v", resp.StatusCode, body)
	}
	if len(s.api.Submits()) != 0 {
		t.Fatalf("unexpected submission %v", s.api.Submits())
	}
}

func TestStartAnalysisRejectsBadInput(t *testing.T) {
	s := newTestServer(t, time.Millisecond, nil)

	for _, body := range []string{`not json`, `{"prompt":"   "}`, `{"request_id":"bad id/with space"}`} {
		resp, out := s.do(t, http.MethodPost, "/api/v1/analyses", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d %v", body, resp.StatusCode, out)
		}
	}
}

func TestPromptLookupAndRemove(t *testing.T) {
	s := newTestServer(t, time.Millisecond, nil, domain.Record{Prompt: "a b", RequestID: "id-1", Timestamp: 1})

	resp, body := s.do(t, http.MethodGet, "/api/v1/prompts/a%20b", "")
	if resp.StatusCode != http.StatusOK || body["request_id"] != "id-1" {
		t.Fatalf("lookup %d %v", resp.StatusCode, body)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/v1/prompts/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing prompt status %d", resp.StatusCode)
	}

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/prompts/a%20b", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove status %d", resp.StatusCode)
	}
	if _, ok, _ := s.index.Lookup(context.Background(), "a b"); ok {
		t.Fatal("prompt still indexed after remove")
	}
}

func TestStatusTransportErrorIsBadGateway(t *testing.T) {
	s := newTestServer(t, time.Millisecond, nil)
	s.api.StatusErr = &analysis.TransportError{Op: "get analysis status", StatusCode: 500, Status: "500 Internal Server Error"}

	resp, body := s.do(t, http.MethodGet, "/api/v1/analyses/abc/status", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if body["upstream_status"] != float64(500) || body["error"] != "failed to get analysis status: 500 Internal Server Error" {
		t.Fatalf("body %v", body)
	}
}

func TestResultsPassThroughRawDocument(t *testing.T) {
	s := newTestServer(t, time.Millisecond, nil)
	var res analysis.Results
	if err := json.Unmarshal([]byte(`{"content":"c","extra":42}`), &res); err != nil {
		t.Fatal(err)
	}
	s.api.Payloads["r1"] = &res

	resp, body := s.do(t, http.MethodGet, "/api/v1/analyses/r1/results", "")
	if resp.StatusCode != http.StatusOK || body["extra"] != float64(42) {
		t.Fatalf("%d %v", resp.StatusCode, body)
	}

	s.api.Payloads["r2"] = nil
	resp, _ = s.do(t, http.MethodGet, "/api/v1/analyses/r2/results", "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("missing results status %d", resp.StatusCode)
	}
}

func TestRecommendations(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, time.Millisecond, nil)
		resp, _ := s.do(t, http.MethodPost, "/api/v1/analyses/done/recommendations", `{"prompt":"best crm"}`)
		if resp.StatusCode != http.StatusNotImplemented {
			t.Fatalf("status %d", resp.StatusCode)
		}
	})

	t.Run("not completed", func(t *testing.T) {
		s := newTestServer(t, time.Millisecond, prompt.Heuristic{})
		s.api.SetScript("busy", analysis.StatusProcessing)
		resp, _ := s.do(t, http.MethodPost, "/api/v1/analyses/busy/recommendations", `{"prompt":"best crm"}`)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("status %d", resp.StatusCode)
		}
	})

	t.Run("heuristic", func(t *testing.T) {
		s := newTestServer(t, time.Millisecond, prompt.Heuristic{})
		s.api.SetScript("done", analysis.StatusCompleted)
		resp, body := s.do(t, http.MethodPost, "/api/v1/analyses/done/recommendations", `{"prompt":"best crm"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d %v", resp.StatusCode, body)
		}
		recs, _ := body["recommendations"].([]any)
		if len(recs) == 0 {
			t.Fatalf("no recommendations: %v", body)
		}
	})
}

func TestCancelAnalysis(t *testing.T) {
	s := newTestServer(t, time.Hour, nil)
	s.api.SetScript("slow", analysis.StatusPending)
	conn := s.dial(t)

	resp, body := s.do(t, http.MethodPost, "/api/v1/analyses", `{"request_id":"slow"}`)
	if resp.StatusCode != http.StatusAccepted || body["source"] != "provided" {
		t.Fatalf("%d %v", resp.StatusCode, body)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(s.lc.Active()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("run never became active")
		}
		time.Sleep(time.Millisecond)
	}

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/analyses/slow", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("cancel status %d", resp.StatusCode)
	}

	events := readUntil(t, conn, EventFinished)
	if last := events[len(events)-1]; last.State != poller.StateCancelled {
		t.Fatalf("finished event %+v", last)
	}

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/analyses/unknown", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown cancel status %d", resp.StatusCode)
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, time.Millisecond, nil)
	resp, _ := s.do(t, http.MethodGet, "/live", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("live status %d", resp.StatusCode)
	}
}

func TestWrapKeepsResponseAfterWriteError(t *testing.T) {
	r := &Router{logger: logging.Discard()}
	h := r.wrap(func(w http.ResponseWriter, req *http.Request) error {
		if err := writeJSON(w, http.StatusAccepted, map[string]any{"ok": true}); err != nil {
			return err
		}
		return errors.New("client went away")
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]any
	dec := json.NewDecoder(rec.Body)
	if err := dec.Decode(&body); err != nil || body["ok"] != true {
		t.Fatalf("body %v, %v", body, err)
	}
	if dec.More() {
		t.Fatal("a second body was written after the response")
	}
}

func TestWrapMapsErrorBeforeWrite(t *testing.T) {
	r := &Router{logger: logging.Discard()}
	h := r.wrap(func(w http.ResponseWriter, req *http.Request) error {
		return errNotFound
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"error":"not found"`) {
		t.Fatalf("%d %s", rec.Code, rec.Body.String())
	}
}
