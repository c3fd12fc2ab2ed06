package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/petri/internal/application/advisor"
	appindex "github.com/bryanwahyu/petri/internal/application/index"
	"github.com/bryanwahyu/petri/internal/application/lifecycle"
	"github.com/bryanwahyu/petri/internal/application/poller"
	"github.com/bryanwahyu/petri/internal/domain/analysis"
	"github.com/bryanwahyu/petri/internal/middleware"
)

// maxBody bounds JSON request bodies
const maxBody = 64 << 10

var errNotFound = errors.New("not found")

// badRequest marks client input errors
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

// StatusFetcher proxies status and results of the analysis service.
type StatusFetcher interface {
	Status(ctx context.Context, id analysis.RequestID) (analysis.StatusReport, error)
	Results(ctx context.Context, id analysis.RequestID) (*analysis.Results, error)
}

// Deps are the services the router exposes.
type Deps struct {
	Lifecycle *lifecycle.Service
	Index     *appindex.Index
	API       StatusFetcher
	Advisor   *advisor.Service
	Hub       *Hub
	Logger    *slog.Logger
	Checkers  map[string]middleware.HealthChecker

	AllowedOrigins []string
	APIKey         string
	RateCapacity   int
	RateRefill     int
}

type Router struct {
	mux    http.Handler
	lc     *lifecycle.Service
	idx    *appindex.Index
	api    StatusFetcher
	adv    *advisor.Service
	hub    *Hub
	logger *slog.Logger

	// ctx bounds background runs
	ctx         context.Context
	wg          sync.WaitGroup
	watchMu     sync.Mutex
	watching    map[analysis.RequestID]bool
	unsubscribe func()
}

// NewRouter builds the dashboard API. Background runs started through it stop when
// ctx is done; Close waits for them.
func NewRouter(ctx context.Context, d Deps) *Router {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		lc:       d.Lifecycle,
		idx:      d.Index,
		api:      d.API,
		adv:      d.Advisor,
		hub:      d.Hub,
		logger:   logger,
		ctx:      ctx,
		watching: make(map[analysis.RequestID]bool),
	}
	r.unsubscribe = r.idx.OnChange(func() {
		middleware.IncrementIndexWrites()
		r.hub.Publish(Event{Type: EventIndexChanged})
	})

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware(logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	mux.Use(middleware.APIKeyAuth(d.APIKey))

	mux.Get("/health", middleware.HealthHandler(d.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/api/v1", func(rt chi.Router) {
		rt.Get("/prompts", r.wrap(r.handleListPrompts))
		rt.Get("/prompts/{prompt}", r.wrap(r.handleLookupPrompt))
		rt.Delete("/prompts/{prompt}", r.wrap(r.handleRemovePrompt))

		rt.With(middleware.RateLimitMiddleware(d.RateCapacity, d.RateRefill)).
			Post("/analyses", r.wrap(r.handleStartAnalysis))
		rt.Get("/analyses", r.wrap(r.handleActive))
		rt.Get("/analyses/{id}/status", r.wrap(r.handleStatus))
		rt.Get("/analyses/{id}/results", r.wrap(r.handleResults))
		rt.Delete("/analyses/{id}", r.wrap(r.handleCancel))
		rt.Post("/analyses/{id}/recommendations", r.wrap(r.handleRecommendations))

		rt.Get("/events", r.hub.ServeWS(newUpgrader(d.AllowedOrigins)))
	})

	r.mux = mux
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close stops forwarding index changes and waits for background runs to end.
// Cancel the context given to NewRouter first.
func (r *Router) Close() {
	r.unsubscribe()
	r.wg.Wait()
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		w := chimw.NewWrapResponseWriter(rw, req.ProtoMajor)
		if err := h(w, req); err != nil {
			// the handler already answered; only the write itself failed
			if w.Status() != 0 {
				r.logger.Warn("writing response", "path", req.URL.Path, "status", w.Status(), "error", err)
				return
			}
			status := http.StatusInternalServerError
			body := map[string]any{"error": err.Error()}

			var bad badRequest
			switch {
			case errors.As(err, &bad), errors.Is(err, lifecycle.ErrPromptRequired):
				status = http.StatusBadRequest
			case errors.Is(err, errNotFound):
				status = http.StatusNotFound
			case errors.Is(err, analysis.ErrQuotaExceeded):
				status = http.StatusTooManyRequests
			case errors.Is(err, analysis.ErrAdvisorDisabled):
				status = http.StatusNotImplemented
			case errors.Is(err, advisor.ErrNotCompleted), errors.Is(err, analysis.ErrCancelled):
				status = http.StatusConflict
			case errors.Is(err, analysis.ErrAnalysisFailed), errors.Is(err, analysis.ErrResultsMissing):
				status = http.StatusUnprocessableEntity
			case errors.Is(err, analysis.ErrAnalysisTimedOut):
				status = http.StatusGatewayTimeout
			default:
				if te, ok := analysis.IsTransport(err); ok {
					status = http.StatusBadGateway
					body["upstream_status"] = te.StatusCode
				}
			}
			if status >= 500 {
				r.logger.Error("request failed", "path", req.URL.Path, "status", status, "error", err)
			}
			writeJSON(w, status, body)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decodeBody(req *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return badRequest{msg: "invalid JSON body: " + err.Error()}
	}
	return nil
}

// pathParam returns the decoded URL parameter. chi reads the raw path when the
// request carried escapes that the decoded path cannot represent.
func pathParam(req *http.Request, name string) (string, error) {
	v := chi.URLParam(req, name)
	if req.URL.RawPath == "" {
		return v, nil
	}
	out, err := url.PathUnescape(v)
	if err != nil {
		return "", badRequest{msg: "invalid path parameter " + name}
	}
	return out, nil
}

func requestIDParam(req *http.Request) (analysis.RequestID, error) {
	id, err := pathParam(req, "id")
	if err != nil {
		return "", err
	}
	if err := middleware.ValidateRequestID(id); err != nil {
		return "", badRequest{msg: err.Error()}
	}
	return analysis.RequestID(id), nil
}

// GET /api/v1/prompts?q=&limit=
func (r *Router) handleListPrompts(w http.ResponseWriter, req *http.Request) error {
	q := middleware.SanitizeString(req.URL.Query().Get("q"))
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.idx.Search(req.Context(), q, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/prompts/{prompt}
func (r *Router) handleLookupPrompt(w http.ResponseWriter, req *http.Request) error {
	prompt, err := pathParam(req, "prompt")
	if err != nil {
		return err
	}
	id, ok, err := r.idx.Lookup(req.Context(), prompt)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound
	}
	return writeJSON(w, http.StatusOK, map[string]any{"prompt": prompt, "request_id": id})
}

// DELETE /api/v1/prompts/{prompt}
func (r *Router) handleRemovePrompt(w http.ResponseWriter, req *http.Request) error {
	prompt, err := pathParam(req, "prompt")
	if err != nil {
		return err
	}
	list, err := r.idx.Remove(req.Context(), prompt)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /api/v1/analyses
// Body: {"prompt": "<text>", "request_id": "<optional id>"}
// Returns as soon as the request id is known; polling continues in the background
// and is reported on /api/v1/events.
func (r *Router) handleStartAnalysis(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Prompt    string `json:"prompt"`
		RequestID string `json:"request_id"`
	}
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	body.Prompt = middleware.SanitizeString(body.Prompt)
	if body.RequestID != "" {
		if err := middleware.ValidateRequestID(body.RequestID); err != nil {
			return badRequest{msg: err.Error()}
		}
	} else if err := middleware.ValidatePrompt(body.Prompt); err != nil {
		return badRequest{msg: err.Error()}
	}

	id, src, err := r.lc.Resolve(req.Context(), lifecycle.Request{
		Prompt:    body.Prompt,
		RequestID: analysis.RequestID(body.RequestID),
	})
	if err != nil {
		return err
	}
	if src == lifecycle.SourceSubmitted {
		middleware.IncrementSubmitted()
	}
	r.startRun(body.Prompt, id)

	return writeJSON(w, http.StatusAccepted, map[string]any{
		"request_id": id,
		"source":     src,
		"prompt":     body.Prompt,
	})
}

// startRun follows id in the background unless this router already does.
func (r *Router) startRun(prompt string, id analysis.RequestID) {
	r.watchMu.Lock()
	if r.watching[id] {
		r.watchMu.Unlock()
		return
	}
	r.watching[id] = true
	r.watchMu.Unlock()

	r.wg.Add(1)
	middleware.IncrementRunning()
	go func() {
		defer r.wg.Done()
		defer middleware.DecrementRunning()
		defer func() {
			r.watchMu.Lock()
			delete(r.watching, id)
			r.watchMu.Unlock()
		}()

		obs := lifecycle.Observer{
			OnStatus: func(st analysis.Status) {
				middleware.IncrementPolls()
				r.hub.Publish(Event{Type: EventStatus, RequestID: id, Status: st})
			},
		}
		_, err := r.lc.Run(r.ctx, lifecycle.Request{Prompt: prompt, RequestID: id}, obs)

		ev := Event{Type: EventFinished, RequestID: id, State: poller.StateOf(err)}
		if err != nil {
			ev.Error = err.Error()
			middleware.IncrementAnalysesFailed()
		} else {
			middleware.IncrementCompleted()
		}
		r.hub.Publish(ev)
	}()
}

// GET /api/v1/analyses
func (r *Router) handleActive(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.lc.Active())
}

// GET /api/v1/analyses/{id}/status
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	id, err := requestIDParam(req)
	if err != nil {
		return err
	}
	st, err := r.api.Status(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, st)
}

// GET /api/v1/analyses/{id}/results
func (r *Router) handleResults(w http.ResponseWriter, req *http.Request) error {
	id, err := requestIDParam(req)
	if err != nil {
		return err
	}
	res, err := r.api.Results(req.Context(), id)
	if err != nil {
		return err
	}
	if raw := res.Raw(); raw != nil {
		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write(raw)
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// DELETE /api/v1/analyses/{id}
func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) error {
	id, err := requestIDParam(req)
	if err != nil {
		return err
	}
	if !r.lc.Cancel(id) {
		return errNotFound
	}
	return writeJSON(w, http.StatusAccepted, map[string]any{"request_id": id, "cancelled": true})
}

// POST /api/v1/analyses/{id}/recommendations
// Body: {"prompt": "<text>"}
func (r *Router) handleRecommendations(w http.ResponseWriter, req *http.Request) error {
	id, err := requestIDParam(req)
	if err != nil {
		return err
	}
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	body.Prompt = middleware.SanitizeString(body.Prompt)
	if err := middleware.ValidatePrompt(body.Prompt); err != nil {
		return badRequest{msg: err.Error()}
	}

	recs, err := r.adv.Recommend(req.Context(), body.Prompt, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"request_id": id, "recommendations": recs})
}
