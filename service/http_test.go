package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowdiff/diff"
	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/flow"
	"github.com/c360/flowdiff/health"
	"github.com/c360/flowdiff/metric"
	"github.com/c360/flowdiff/testutil"
	"github.com/c360/flowdiff/validation"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T, opts ...HandlerOption) *testServer {
	t.Helper()
	svc, _ := newTestService(t)
	return &testServer{t: t, handler: NewHandler(svc, opts...).Routes()}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createChat(id string) *flow.Document {
	s.t.Helper()
	doc := testutil.ChatFlow()
	doc.ID = id
	rec := s.do("POST", "/flows", doc)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[flow.Document](s.t, rec)
	return &created
}

func TestHandler_FlowCRUD(t *testing.T) {
	s := newTestServer(t)

	created := s.createChat("chat")
	assert.Equal(t, int64(1), created.Version)

	rec := s.do("GET", "/flows/chat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[flow.Document](t, rec)
	assert.Len(t, got.Nodes, 3)

	rec = s.do("GET", "/flows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Flows []flow.Document `json:"flows"`
	}](t, rec)
	assert.Len(t, list.Flows, 1)

	got.Name = "Renamed"
	rec = s.do("PUT", "/flows/chat", got)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(2), decodeBody[flow.Document](t, rec).Version)

	// stale version
	rec = s.do("PUT", "/flows/chat", got)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do("DELETE", "/flows/chat", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do("GET", "/flows/chat", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody[map[string]string](t, rec)["error"], "flow not found")
}

func TestHandler_CreateGeneratesID(t *testing.T) {
	s := newTestServer(t)
	rec := s.do("POST", "/flows", map[string]any{"name": "Empty", "nodes": []any{}, "edges": []any{}})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[flow.Document](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "/flows/"+created.ID, rec.Header().Get("Location"))
}

func TestHandler_ApplyDiff(t *testing.T) {
	s := newTestServer(t)
	s.createChat("chat")

	body := `{"operations": [{"type": "addNode", "nodeId": "second", "componentType": "ChatInput"}]}`
	rec := s.do("POST", "/flows/chat/diff", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[diff.Result](t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, []int{0}, result.Applied)
	assert.Equal(t, int64(2), result.Flow.Version)

	rec = s.do("GET", "/flows/chat", nil)
	assert.True(t, decodeBody[flow.Document](t, rec).HasNode("second"))
}

func TestHandler_ApplyDiffDryRun(t *testing.T) {
	s := newTestServer(t)
	s.createChat("chat")

	body := `{"operations": [{"type": "addNode", "nodeId": "second", "componentType": "ChatInput"}]}`
	rec := s.do("POST", "/flows/chat/diff?dryRun=true", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[diff.Result](t, rec).Flow.HasNode("second"))

	rec = s.do("GET", "/flows/chat", nil)
	stored := decodeBody[flow.Document](t, rec)
	assert.False(t, stored.HasNode("second"))
	assert.Equal(t, int64(1), stored.Version)
}

func TestHandler_ApplyDiffRejected(t *testing.T) {
	s := newTestServer(t)
	s.createChat("chat")

	body := `{"operations": [{"type": "addNode", "nodeId": "input", "componentType": "ChatInput"}]}`
	rec := s.do("POST", "/flows/chat/diff", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	result := decodeBody[diff.Result](t, rec)
	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, 0, result.Errors[0].Index)
}

func TestHandler_ApplyDiffOptionOverrides(t *testing.T) {
	s := newTestServer(t)
	s.createChat("chat")

	// X without k fails post-validation unless it is disabled
	body := `{"operations": [{"type": "addNode", "nodeId": "x", "componentType": "X"}], "validateAfter": false}`
	rec := s.do("POST", "/flows/chat/diff", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body = `{"operations": [{"type": "addNode", "nodeId": "x2", "componentType": "X"}]}`
	rec = s.do("POST", "/flows/chat/diff", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.True(t, decodeBody[diff.Result](t, rec).RolledBack)
}

func TestHandler_BadRequests(t *testing.T) {
	s := newTestServer(t)
	s.createChat("chat")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed flow", "POST", "/flows", `{"name": `, http.StatusBadRequest},
		{"empty body", "POST", "/flows", ``, http.StatusBadRequest},
		{"flow without nodes", "POST", "/flows", `{"name": "x"}`, http.StatusCreated},
		{"duplicate flow", "POST", "/flows", `{"id": "chat", "name": "x", "nodes": []}`, http.StatusConflict},
		{"id mismatch", "PUT", "/flows/chat", `{"id": "other", "name": "x", "nodes": [], "version": 1}`, http.StatusBadRequest},
		{"missing operations", "POST", "/flows/chat/diff", `{}`, http.StatusBadRequest},
		{"unknown operation", "POST", "/flows/chat/diff", `{"operations": [{"type": "explode"}]}`, http.StatusBadRequest},
		{"diff on missing flow", "POST", "/flows/ghost/diff", `{"operations": []}`, http.StatusNotFound},
		{"validate missing flow", "POST", "/flows/ghost/validate", ``, http.StatusNotFound},
		{"delete missing flow", "DELETE", "/flows/ghost", ``, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_BodyLimit(t *testing.T) {
	s := newTestServer(t, WithMaxBodyBytes(16))
	rec := s.do("POST", "/flows", `{"name": "`+strings.Repeat("a", 64)+`", "nodes": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Validate(t *testing.T) {
	s := newTestServer(t)
	s.createChat("chat")

	rec := s.do("POST", "/flows/chat/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[validation.Result](t, rec).Valid)

	doc := testutil.NewFlow("Needs k").Node("a", "X", nil).Build()
	rec = s.do("POST", "/validate", doc)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[validation.Result](t, rec)
	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.Summary.Errors)

	rec = s.do("POST", "/validate", `{"name": "T", "edges": [], "nodes": [
		{"id": "n", "componentType": "ChatInput", "parameters": {}, "position": {"x": "left", "y": 0}}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result = decodeBody[validation.Result](t, rec)
	assert.True(t, result.Valid)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, validation.CodeInvalidPosition, result.Issues[0].Code)
}

func TestHandler_CatalogComponents(t *testing.T) {
	s := newTestServer(t)
	rec := s.do("GET", "/catalog/components", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Components []ComponentView `json:"components"`
	}](t, rec)
	require.Len(t, body.Components, len(testutil.Catalog()))
	assert.Equal(t, "ChatInput", body.Components[0].Type)
	assert.Equal(t, "X", body.Components[len(body.Components)-1].Type)
}

func TestHandler_Health(t *testing.T) {
	s := newTestServer(t)
	rec := s.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	st := decodeBody[health.Status](t, rec)
	assert.True(t, st.IsHealthy())
	require.Len(t, st.SubStatuses, 1)
	assert.Equal(t, "catalog", st.SubStatuses[0].Component)

	checker := health.NewChecker("flowdiffd", time.Second)
	checker.Add("store", func(context.Context) error { return errors.ErrStorageUnavailable })
	checker.AddOptional("nats", func(context.Context) error { return nil })
	s = newTestServer(t, WithHealthChecker(checker))
	rec = s.do("GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	st = decodeBody[health.Status](t, rec)
	assert.Equal(t, health.StateUnhealthy, st.Status)
	assert.Equal(t, health.StateUnhealthy, st.SubStatuses[0].Status)

	checker = health.NewChecker("flowdiffd", time.Second)
	checker.AddOptional("nats", func(context.Context) error { return errors.ErrStorageUnavailable })
	s = newTestServer(t, WithHealthChecker(checker))
	rec = s.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[health.Status](t, rec).IsDegraded())
}

func TestHandler_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	s := newTestServer(t, WithMetricsEndpoint(registry, "/metrics"))
	s.createChat("chat")
	s.do("GET", "/flows/ghost", nil)

	rec := s.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	requests := scrapeCounter(t, rec, "flowdiff_http_requests_total")
	assert.Equal(t, 1.0, requests["POST /flows|201"])
	assert.Equal(t, 1.0, requests["GET /flows/{id}|404"])
}

func TestHandler_DiffRateLimit(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	s := newTestServer(t, WithDiffRateLimit(0.001, 2), WithMetricsEndpoint(registry, "/metrics"))
	s.createChat("chat")

	body := `{"operations": [{"type": "updateMetadata", "description": "x"}]}`
	for i := 0; i < 2; i++ {
		rec := s.do("POST", "/flows/chat/diff", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do("POST", "/flows/chat/diff", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "Too many diff requests", decodeBody[map[string]string](t, rec)["error"])

	// other endpoints are not throttled
	rec = s.do("GET", "/flows/chat", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), decodeBody[flow.Document](t, rec).Version)

	rec = s.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	requests := scrapeCounter(t, rec, "flowdiff_http_requests_total")
	assert.Equal(t, 2.0, requests["POST /flows/{id}/diff|200"])
	assert.Equal(t, 1.0, requests["POST /flows/{id}/diff|429"])
}

func TestHandler_DiffRateLimitDisabled(t *testing.T) {
	s := newTestServer(t, WithDiffRateLimit(0, 0))
	s.createChat("chat")
	for i := 0; i < 5; i++ {
		rec := s.do("POST", "/flows/chat/diff", `{"operations": []}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

// scrapeCounter parses a Prometheus text exposition and returns the values
// of counter name keyed by "route|code".
func scrapeCounter(t *testing.T, rec *httptest.ResponseRecorder, name string) map[string]float64 {
	t.Helper()
	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err)
	family, ok := families[name]
	require.True(t, ok, "metric %s not exposed", name)

	out := make(map[string]float64)
	for _, m := range family.GetMetric() {
		labels := make(map[string]string)
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		out[labels["route"]+"|"+labels["code"]] = m.GetCounter().GetValue()
	}
	return out
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.WrapInvalid(errors.ErrFlowNotFound, "c", "m", "a"), http.StatusNotFound},
		{errors.WrapInvalid(errors.ErrVersionConflict, "c", "m", "a"), http.StatusConflict},
		{errors.WrapInvalid(errors.ErrFlowExists, "c", "m", "a"), http.StatusConflict},
		{errors.WrapInvalid(errors.ErrMalformedFlow, "c", "m", "a"), http.StatusBadRequest},
		{(&diff.Result{}).Err(), http.StatusBadRequest},
		{errors.WrapTransient(errors.ErrStorageUnavailable, "c", "m", "a"), http.StatusInternalServerError},
		{errors.WrapFatal(errors.ErrInvalidConfig, "c", "m", "a"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}
