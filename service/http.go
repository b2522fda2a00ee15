package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/diff"
	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/flow"
	"github.com/c360/flowdiff/health"
	"github.com/c360/flowdiff/metric"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured
const DefaultMaxBodyBytes = 4 << 20

// DiffRequest is the body of POST /flows/{id}/diff. Unset options fall back
// to the service defaults.
type DiffRequest struct {
	Operations      []json.RawMessage `json:"operations"`
	ValidateAfter   *bool             `json:"validateAfter,omitempty"`
	ContinueOnError *bool             `json:"continueOnError,omitempty"`
}

// ComponentView is one entry of GET /catalog/components
type ComponentView struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Parameters  []catalog.ParamDef `json:"parameters"`
	OutputPorts []catalog.PortDef  `json:"outputPorts"`
}

// Handler exposes a DiffService over HTTP
type Handler struct {
	svc          *DiffService
	logger       *slog.Logger
	registry     *metric.MetricsRegistry
	metricsPath  string
	maxBodyBytes int64
	health       *health.Checker
	diffLimiter  *rate.Limiter
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithHandlerLogger sets the handler logger
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetricsEndpoint serves registry at path and records request metrics
func WithMetricsEndpoint(registry *metric.MetricsRegistry, path string) HandlerOption {
	return func(h *Handler) {
		h.registry = registry
		h.metricsPath = path
	}
}

// WithMaxBodyBytes limits request body size
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithHealthChecker replaces the default GET /health checker, which only
// probes the component catalog.
func WithHealthChecker(c *health.Checker) HandlerOption {
	return func(h *Handler) {
		if c != nil {
			h.health = c
		}
	}
}

// WithDiffRateLimit caps POST /flows/{id}/diff at limit requests per second
// across all clients. A non-positive limit leaves the endpoint unthrottled.
func WithDiffRateLimit(limit float64, burst int) HandlerOption {
	return func(h *Handler) {
		if limit <= 0 {
			h.diffLimiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.diffLimiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// CatalogProbe reports whether the service can currently load its catalog.
func CatalogProbe(svc *DiffService) health.Probe {
	return func(ctx context.Context) error {
		_, err := svc.Catalog(ctx)
		return err
	}
}

// NewHandler creates the HTTP surface for svc
func NewHandler(svc *DiffService, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:          svc,
		logger:       svc.logger,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.health == nil {
		h.health = health.NewChecker("flowdiffd", 5*time.Second)
		h.health.Add("catalog", CatalogProbe(svc))
	}
	return h
}

// Routes returns a mux with every endpoint registered
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterHTTPHandlers("/", mux)
	return mux
}

// RegisterHTTPHandlers registers the endpoints under prefix
func (h *Handler) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	h.route(mux, "GET", prefix+"flows", h.handleListFlows)
	h.route(mux, "POST", prefix+"flows", h.handleCreateFlow)
	h.route(mux, "GET", prefix+"flows/{id}", h.handleGetFlow)
	h.route(mux, "PUT", prefix+"flows/{id}", h.handleReplaceFlow)
	h.route(mux, "DELETE", prefix+"flows/{id}", h.handleDeleteFlow)
	h.route(mux, "POST", prefix+"flows/{id}/diff", h.handleApplyDiff)
	h.route(mux, "POST", prefix+"flows/{id}/validate", h.handleValidateFlow)
	h.route(mux, "POST", prefix+"validate", h.handleValidateDocument)
	h.route(mux, "GET", prefix+"catalog/components", h.handleListComponents)
	h.route(mux, "GET", prefix+"health", h.handleHealth)

	if h.registry != nil && h.metricsPath != "" {
		mux.Handle("GET "+h.metricsPath, metric.Handler(h.registry))
	}

	h.logger.Info("Flow diff HTTP handlers registered", "prefix", prefix)
}

// route registers fn and records request count and latency under pattern
func (h *Handler) route(mux *http.ServeMux, method, pattern string, fn http.HandlerFunc) {
	route := method + " " + pattern
	if h.registry == nil {
		mux.HandleFunc(route, fn)
		return
	}
	core := h.registry.CoreMetrics()
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		core.RecordRequest(route, strconv.Itoa(rec.status), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// =============================================================================
// HTTP Handlers
// =============================================================================

func (h *Handler) handleListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"flows": flows})
}

func (h *Handler) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var doc flow.Document
	if !h.decode(w, r, &doc) {
		return
	}
	created, err := h.svc.Create(r.Context(), &doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/flows/"+created.ID)
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleReplaceFlow(w http.ResponseWriter, r *http.Request) {
	var doc flow.Document
	if !h.decode(w, r, &doc) {
		return
	}
	updated, err := h.svc.Replace(r.Context(), r.PathValue("id"), &doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleApplyDiff answers 200 with the result when the batch is applied,
// 422 with the result when it is rejected or rolled back and 429 when throttled
func (h *Handler) handleApplyDiff(w http.ResponseWriter, r *http.Request) {
	if h.diffLimiter != nil && !h.diffLimiter.Allow() {
		h.logger.Debug("Diff request throttled", "flow_id", r.PathValue("id"))
		w.Header().Set("Retry-After", "1")
		h.writeJSONError(w, "Too many diff requests", http.StatusTooManyRequests)
		return
	}

	var req DiffRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Operations == nil {
		h.writeError(w, r, errors.WrapInvalid(
			fmt.Errorf("%w: operations array is required", errors.ErrInvalidOperation),
			"Handler", "handleApplyDiff", "decode request"))
		return
	}
	ops, err := diff.DecodeRawOperations(req.Operations)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	opts := h.svc.Defaults()
	if req.ValidateAfter != nil {
		opts.ValidateAfter = *req.ValidateAfter
	}
	if req.ContinueOnError != nil {
		opts.ContinueOnError = *req.ContinueOnError
	}
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dryRun"))

	result, err := h.svc.ApplyDiff(r.Context(), r.PathValue("id"), ops, opts, dryRun)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, result)
}

func (h *Handler) handleValidateFlow(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Validate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleValidateDocument(w http.ResponseWriter, r *http.Request) {
	var doc flow.Document
	if !h.decode(w, r, &doc) {
		return
	}
	result, err := h.svc.ValidateDocument(r.Context(), &doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListComponents(w http.ResponseWriter, r *http.Request) {
	cat, err := h.svc.Catalog(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	names := cat.Names()
	sort.Strings(names)
	views := make([]ComponentView, 0, len(names))
	for _, name := range names {
		schema := cat[name]
		views = append(views, ComponentView{
			Type:        name,
			Description: schema.Description,
			Parameters:  schema.Parameters,
			OutputPorts: schema.OutputPorts,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"components": views})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.health.Run(r.Context())
	if status.IsUnhealthy() {
		h.logger.Warn("Health check failed", "status", status.Status, "message", status.Message)
		h.writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// decode reads a JSON body into v, writing a 400 and returning false on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		msg := "Invalid request body"
		if err != io.EOF {
			msg = fmt.Sprintf("Invalid request body: %v", err)
		}
		h.writeJSONError(w, msg, http.StatusBadRequest)
		return false
	}
	return true
}

// StatusCode maps a classified error to an HTTP status
func StatusCode(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if h.registry != nil {
			h.registry.CoreMetrics().RecordError("service", errors.Classify(err).String())
		}
		h.writeJSONError(w, "Internal server error", status)
		return
	}
	h.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	h.writeJSONError(w, err.Error(), status)
}

// writeJSON writes a JSON response and logs encoding errors
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeJSONError writes an error response in JSON format
func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
