// Package http provides the HTTP transport client endpoints dispatch through
// and the HTTP API over the manager.
package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/apicore/adapters/metrics"
	"github.com/artpar/apicore/app"
	"github.com/artpar/apicore/domain/call"
	"github.com/artpar/apicore/domain/endpoint"
	"github.com/artpar/apicore/domain/field"
	"github.com/artpar/apicore/domain/variable"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxRequestBody bounds API request bodies.
const maxRequestBody = 10 << 20

// Handler serves the manager over HTTP.
type Handler struct {
	manager *app.Manager
	logger  zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(manager *app.Manager, logger zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Routes returns the /v1 API routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/call/{key}", h.Call)
	r.Post("/batch", h.Batch)
	r.Post("/test/{key}", h.Test)

	r.Route("/endpoints", func(r chi.Router) {
		r.Get("/", h.ListEndpoints)
		r.Get("/{key}", h.GetEndpoint)
		r.Put("/{key}", h.PutEndpoint)
		r.Patch("/{key}", h.PatchEndpoint)
		r.Delete("/{key}", h.DeleteEndpoint)
	})

	r.Route("/fields/{key}", func(r chi.Router) {
		r.Get("/", h.GetFields)
		r.Put("/", h.PutFields)
		r.Delete("/", h.DeleteFields)
		r.Post("/detect", h.DetectFields)
	})

	r.Route("/variables/{scope}", func(r chi.Router) {
		r.Get("/", h.ListVariables)
		r.Delete("/", h.ClearVariables)
		r.Put("/{name}", h.PutVariable)
		r.Delete("/{name}", h.DeleteVariable)
	})

	return r
}

// -----------------------------------------------------------------------------
// Calls
// -----------------------------------------------------------------------------

// Call handles POST /v1/call/{key}.
func (h *Handler) Call(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	env, err := h.manager.Call(r.Context(), chi.URLParam(r, "key"), req.Params, req.Options.Options())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// Batch handles POST /v1/batch.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	items, opts := req.Items()
	results := h.manager.BatchCall(r.Context(), items, opts)
	writeJSON(w, http.StatusOK, call.OK(results))
}

// Test handles POST /v1/test/{key}. The diagnostic is returned with status
// 200 whatever the outcome.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	writeJSON(w, http.StatusOK, h.manager.Test(r.Context(), chi.URLParam(r, "key"), req.Params))
}

// -----------------------------------------------------------------------------
// Endpoints
// -----------------------------------------------------------------------------

// ListEndpoints handles GET /v1/endpoints[?category=].
func (h *Handler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	var list []endpoint.Endpoint
	if category := r.URL.Query().Get("category"); category != "" {
		list = h.manager.Registry.GetByCategory(category)
	} else {
		list = h.manager.Registry.GetAll()
	}
	writeJSON(w, http.StatusOK, call.OK(list))
}

// GetEndpoint handles GET /v1/endpoints/{key}.
func (h *Handler) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	e, ok := h.manager.Registry.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, call.NotFound(key))
		return
	}
	writeJSON(w, http.StatusOK, call.OK(e))
}

// PutEndpoint handles PUT /v1/endpoints/{key}. With ?wait=true the response
// reports whether the change reached the remote store.
func (h *Handler) PutEndpoint(w http.ResponseWriter, r *http.Request) {
	var rec endpoint.Record
	if !h.decode(w, r, &rec, false) {
		return
	}

	key := chi.URLParam(r, "key")
	p, err := h.manager.Registry.Register(r.Context(), key, rec.Endpoint())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.respondPersisted(w, r, key, p)
}

// PatchEndpoint handles PATCH /v1/endpoints/{key}.
func (h *Handler) PatchEndpoint(w http.ResponseWriter, r *http.Request) {
	var rec endpoint.PatchRecord
	if !h.decode(w, r, &rec, false) {
		return
	}

	key := chi.URLParam(r, "key")
	p, err := h.manager.Registry.Update(r.Context(), key, rec.Patch())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.respondPersisted(w, r, key, p)
}

// DeleteEndpoint handles DELETE /v1/endpoints/{key}.
func (h *Handler) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	ok, err := h.manager.Registry.Remove(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, call.OK(map[string]bool{"removed": ok}))
}

func (h *Handler) respondPersisted(w http.ResponseWriter, r *http.Request, key string, p *app.Persistence) {
	e, _ := h.manager.Registry.Get(key)
	env := call.OK(e)
	if r.URL.Query().Get("wait") == "true" {
		env.Meta = map[string]any{"persisted": p.Wait(r.Context())}
	}
	writeJSON(w, http.StatusOK, env)
}

// -----------------------------------------------------------------------------
// Fields
// -----------------------------------------------------------------------------

// GetFields handles GET /v1/fields/{key}.
func (h *Handler) GetFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, call.OK(h.manager.GetFields(chi.URLParam(r, "key"))))
}

// PutFields handles PUT /v1/fields/{key}.
func (h *Handler) PutFields(w http.ResponseWriter, r *http.Request) {
	set := make(field.Set)
	if !h.decode(w, r, &set, false) {
		return
	}

	key := chi.URLParam(r, "key")
	if err := h.manager.Fields.SetFields(r.Context(), key, set); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, call.OK(h.manager.GetFields(key)))
}

// DeleteFields handles DELETE /v1/fields/{key}.
func (h *Handler) DeleteFields(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Fields.ClearFields(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, call.OK(nil))
}

// DetectFields handles POST /v1/fields/{key}/detect. The body is the sample.
func (h *Handler) DetectFields(w http.ResponseWriter, r *http.Request) {
	var sample any
	if !h.decode(w, r, &sample, false) {
		return
	}

	set, err := h.manager.DetectFields(r.Context(), chi.URLParam(r, "key"), sample)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, call.OK(set))
}

// -----------------------------------------------------------------------------
// Variables
// -----------------------------------------------------------------------------

// ListVariables handles GET /v1/variables/{scope}.
func (h *Handler) ListVariables(w http.ResponseWriter, r *http.Request) {
	scope, ok := parseScope(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, call.OK(h.manager.Variables.All(scope)))
}

// PutVariable handles PUT /v1/variables/{scope}/{name}. The body is
// {"value": ...}.
func (h *Handler) PutVariable(w http.ResponseWriter, r *http.Request) {
	scope, ok := parseScope(w, r)
	if !ok {
		return
	}
	var body struct {
		Value any `json:"value"`
	}
	if !h.decode(w, r, &body, false) {
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.manager.Variables.Set(r.Context(), scope, name, body.Value); err != nil {
		writeError(w, variableStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, call.OK(variable.Variable{Name: name, Value: body.Value, Scope: scope}))
}

// DeleteVariable handles DELETE /v1/variables/{scope}/{name}.
func (h *Handler) DeleteVariable(w http.ResponseWriter, r *http.Request) {
	scope, ok := parseScope(w, r)
	if !ok {
		return
	}
	if err := h.manager.Variables.Remove(r.Context(), scope, chi.URLParam(r, "name")); err != nil {
		writeError(w, variableStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, call.OK(nil))
}

// ClearVariables handles DELETE /v1/variables/{scope}.
func (h *Handler) ClearVariables(w http.ResponseWriter, r *http.Request) {
	scope, ok := parseScope(w, r)
	if !ok {
		return
	}
	if err := h.manager.Variables.Clear(r.Context(), scope); err != nil {
		writeError(w, variableStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, call.OK(nil))
}

func parseScope(w http.ResponseWriter, r *http.Request) (variable.Scope, bool) {
	scope, err := variable.ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return "", false
	}
	return scope, true
}

func variableStatus(err error) int {
	if errors.Is(err, app.ErrImmutableScope) {
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// decode reads a JSON body into v. With allowEmpty an empty body leaves v
// untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read request body")
		writeError(w, http.StatusBadRequest, errors.New("failed to read request body"))
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if allowEmpty {
			return true
		}
		writeError(w, http.StatusBadRequest, errors.New("request body is required"))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorBody{
		Success: false,
		Error:   err.Error(),
		Code:    call.CodeOf(err),
	})
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// ReadyChecker reports whether the service can serve calls.
type ReadyChecker interface {
	IsReady() bool
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	ready ReadyChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(ready ReadyChecker) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness reports whether endpoint hydration has finished.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// -----------------------------------------------------------------------------
// Router
// -----------------------------------------------------------------------------

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // defaults to promhttp.Handler() when Metrics is set
	MetricsPath    string
	Version        string
	RequestTimeout time.Duration
}

// NewRouter creates the main HTTP router.
func NewRouter(api *Handler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if cfg.MetricsHandler != nil {
		r.Handle(metricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(metricsPath, promhttp.Handler())
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "apicore"})
	})

	r.Mount("/v1", api.Routes())
	return r
}

// NewMetricsMiddleware creates middleware that records request metrics.
// Routes are labelled by their chi pattern to bound cardinality.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || strings.HasSuffix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := statusLabel(ww.Status())

			m.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// NewLoggingMiddleware logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
