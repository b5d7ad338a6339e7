package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	mid "github.com/OFFIS-RIT/proteus/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/proteus/backend/pkg/ai"
	"github.com/OFFIS-RIT/proteus/backend/pkg/reconcile"
	"github.com/OFFIS-RIT/proteus/backend/pkg/store/memory"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	submit   []byte
	statuses []string
	messages []byte
}

func (f *fakeAgent) Submit(context.Context, string, string) ([]byte, error) {
	return f.submit, nil
}

func (f *fakeAgent) RunStatus(context.Context, string) (string, error) {
	if len(f.statuses) == 0 {
		return "running", nil
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s, nil
}

func (f *fakeAgent) RunMessages(context.Context, string) ([]byte, error) {
	return f.messages, nil
}

type fakeRelay struct {
	mu        sync.Mutex
	token     bool
	template  bool
	createID  string
	createErr error
	sendErr   error
	sent      []string
	sentTo    []string
}

func (f *fakeRelay) Configured() bool      { return f.token }
func (f *fakeRelay) CanCreateAgents() bool { return f.token && f.template }

func (f *fakeRelay) CreateFromTemplate(context.Context) (string, error) {
	return f.createID, f.createErr
}

func (f *fakeRelay) SendMessage(_ context.Context, agentID, content string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTo = append(f.sentTo, agentID)
	f.sent = append(f.sent, content)
	return []byte(`{}`), f.sendErr
}

type fakeSink struct {
	data []byte
	err  error
}

func (f *fakeSink) WriteSnapshot(_ context.Context, data []byte) error {
	f.data = append([]byte(nil), data...)
	return f.err
}

func (f *fakeSink) String() string { return "memory" }

func fixture(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile("../../pkg/analysis/testdata/cftr_analysis.json")
	require.NoError(t, err)
	return string(raw)
}

type testServer struct {
	e     *echo.Echo
	app   *mid.App
	relay *fakeRelay
	sink  *fakeSink
}

func newTestServer(t *testing.T, agent reconcile.Agent) *testServer {
	t.Helper()
	relay := &fakeRelay{token: true, template: true, createID: "agent-new"}
	sink := &fakeSink{}
	cfg := reconcile.Config{Poller: reconcile.PollerConfig{
		Interval:    time.Millisecond,
		Deadline:    50 * time.Millisecond,
		CallTimeout: 20 * time.Millisecond,
	}}
	app := &mid.App{
		Engine:    reconcile.NewEngine(agent, memory.NewLatestResultSlot(), cfg),
		Session:   reconcile.NewSession(),
		Relay:     relay,
		Snapshots: sink,
	}
	return &testServer{e: NewEcho(app, []string{"*"}), app: app, relay: relay, sink: sink}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	return s.doContext(context.Background(), method, path, body)
}

func (s *testServer) doContext(ctx context.Context, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequestWithContext(ctx, method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type fakeUsage struct{ metrics ai.ModelMetrics }

func (f fakeUsage) GetMetrics() ai.ModelMetrics { return f.metrics }

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	rec := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.NotZero(t, body["ts"])
	assert.NotContains(t, body, "usage")
}

func TestHealthReportsModelUsage(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	s.app.Usage = fakeUsage{metrics: ai.ModelMetrics{Requests: 2, InputTokens: 30, OutputTokens: 12, TotalTokens: 42, DurationMs: 900}}

	rec := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decode(t, rec)["usage"].(map[string]any)
	assert.EqualValues(t, 2, usage["requests"])
	assert.EqualValues(t, 42, usage["total_tokens"])
	assert.EqualValues(t, 900, usage["duration_ms"])
}

func TestCORSAllowsCredentials(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	origin := "http://notebook.local:3000"

	req := httptest.NewRequest(http.MethodOptions, "/api/analysis/result", nil)
	req.Header.Set(echo.HeaderOrigin, origin)
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	req.Header.Set(echo.HeaderAccessControlRequestHeaders, "authorization,content-type")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, origin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), echo.HeaderAuthorization)
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), echo.HeaderContentType)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, origin)
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, origin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
}

func TestCORSExplicitOrigins(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	e := NewEcho(s.app, []string{"http://notebook.local:3000"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, "http://elsewhere.local")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestAnalysisResultLifecycle(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})

	rec := s.do(http.MethodGet, "/api/analysis/result", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No analysis result available", decode(t, rec)["message"])

	rec = s.do(http.MethodPost, "/api/analysis/result", fixture(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "external-submit", decode(t, rec)["source"])

	rec = s.do(http.MethodGet, "/api/analysis/result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "external-submit", body["source"])
	assert.NotEmpty(t, body["storedAt"])
	result := body["result"].(map[string]any)
	assert.Equal(t, "ABCC7", result["edited_protein"].(map[string]any)["id"])
	summary := result["analysis_summary"].(map[string]any)
	assert.NotEmpty(t, summary["text"])
}

func TestSubmitInvalidResult(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	invalid := strings.Replace(fixture(t), `"target": "P2"`, `"target": "ZZZ"`, 1)

	rec := s.do(http.MethodPost, "/api/analysis/result", invalid)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	issues := body["issues"].([]any)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0].(map[string]any)["reason"], "ZZZ")

	rec = s.do(http.MethodGet, "/api/analysis/result", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunAnalysis(t *testing.T) {
	t.Run("no agent", func(t *testing.T) {
		s := newTestServer(t, &fakeAgent{})
		rec := s.do(http.MethodPost, "/api/analysis/run", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("inline answer", func(t *testing.T) {
		s := newTestServer(t, &fakeAgent{submit: []byte(fixture(t))})
		rec := s.do(http.MethodPost, "/api/analysis/run", `{"agentId": "agent-1"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "agent-sync", decode(t, rec)["source"])
	})

	t.Run("polled with session agent", func(t *testing.T) {
		agent := &fakeAgent{
			submit:   []byte(`{"run_id": "run-1"}`),
			statuses: []string{"running", "completed"},
			messages: []byte(`[{"role": "assistant", "content": ` + mustQuote(fixture(t)) + `}]`),
		}
		s := newTestServer(t, agent)
		s.app.Session.SetAgentID("agent-remembered")
		rec := s.do(http.MethodPost, "/api/analysis/run", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "agent-polled", decode(t, rec)["source"])
	})

	t.Run("failed run", func(t *testing.T) {
		s := newTestServer(t, &fakeAgent{submit: []byte(`{"run_id": "run-1"}`), statuses: []string{"failed"}})
		rec := s.do(http.MethodPost, "/api/analysis/run", `{"agentId": "agent-1"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("timed out", func(t *testing.T) {
		s := newTestServer(t, &fakeAgent{submit: []byte(`{"run_id": "run-1"}`)})
		rec := s.do(http.MethodPost, "/api/analysis/run", `{"agentId": "agent-1"}`)
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("caller deadline", func(t *testing.T) {
		s := newTestServer(t, &fakeAgent{submit: []byte(`{"run_id": "run-1"}`)})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		rec := s.doContext(ctx, http.MethodPost, "/api/analysis/run", `{"agentId": "agent-1"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("caller cancelled", func(t *testing.T) {
		s := newTestServer(t, &fakeAgent{submit: []byte(`{"run_id": "run-1"}`)})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec := s.doContext(ctx, http.MethodPost, "/api/analysis/run", `{"agentId": "agent-1"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("no run id", func(t *testing.T) {
		s := newTestServer(t, &fakeAgent{submit: []byte(`{"status": "ok"}`)})
		rec := s.do(http.MethodPost, "/api/analysis/run", `{"agentId": "agent-1"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestCreateAgent(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	rec := s.do(http.MethodPost, "/api/letta/create", `{"notebookId": "nb-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "letta.create.created", body["event"])
	assert.Equal(t, "agent-new", body["agentId"])
	assert.Equal(t, "nb-1", body["notebookId"])

	id, ok := s.app.Session.AgentID()
	assert.True(t, ok)
	assert.Equal(t, "agent-new", id)
}

func TestCreateAgentFailure(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	s.relay.createErr = errors.New("template not found")
	rec := s.do(http.MethodPost, "/api/letta/create", `{}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Letta error: template not found", decode(t, rec)["message"])
}

func TestCreateAgentUnconfigured(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	s.app.Session.SetAgentID("agent-old")
	s.relay.template = false

	rec := s.do(http.MethodPost, "/api/letta/create", `{"notebookId": "nb-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "letta.create.received", decode(t, rec)["event"])
	_, ok := s.app.Session.AgentID()
	assert.False(t, ok, "unconfigured creation must forget the previous agent")
}

func TestSaveNotebook(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})

	rec := s.do(http.MethodPost, "/api/notebook/save", `{"report": "no timestamp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/notebook/save", `{"savedAt": "2026-01-01T00:00:00Z", "notebookId": "nb-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["forwarded"])
	assert.Empty(t, s.relay.sent)

	s.app.Session.SetAgentID("agent-1")
	rec = s.do(http.MethodPost, "/api/notebook/save", `{"savedAt": "2026-01-01T00:00:00Z", "changes": {"cell": "Δ <b>"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["forwarded"])
	assert.Equal(t, "2026-01-01T00:00:00Z", body["received"].(map[string]any)["savedAt"])

	require.Len(t, s.relay.sent, 1)
	assert.Equal(t, "agent-1", s.relay.sentTo[0])
	assert.True(t, strings.HasPrefix(s.relay.sent[0], "NOTEBOOK:\n{\n  \"savedAt\""))
	assert.Contains(t, s.relay.sent[0], "Δ <b>")
	assert.Equal(t, strings.TrimPrefix(s.relay.sent[0], "NOTEBOOK:\n"), string(s.sink.data))
}

func TestSaveNotebookForwardFailure(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	s.app.Session.SetAgentID("agent-1")
	s.relay.sendErr = errors.New("boom")
	s.sink.err = errors.New("disk full")

	rec := s.do(http.MethodPost, "/api/notebook/save", `{"savedAt": "now"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["forwarded"])
}

func TestAnalysisSchema(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	rec := s.do(http.MethodGet, "/api/analysis/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "edited_protein")
}

func TestAuthRequiredWhenMasterKeySet(t *testing.T) {
	s := newTestServer(t, &fakeAgent{})
	s.app.MasterAPIKey = "secret"

	rec := s.do(http.MethodGet, "/api/analysis/result", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/result", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
