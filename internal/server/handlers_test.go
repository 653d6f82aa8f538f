package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellpilot/agent/config"
	"github.com/shellpilot/agent/internal/agent"
	"github.com/shellpilot/agent/internal/ai"
	"github.com/shellpilot/agent/internal/cache"
	"github.com/shellpilot/agent/internal/system"
	"github.com/shellpilot/agent/internal/tasks"
)

type fakeAgent struct {
	executing bool
	stopped   bool
}

func (f *fakeAgent) Status() agent.Status {
	return agent.Status{Executing: f.executing}
}

func (f *fakeAgent) Stop() bool {
	if !f.executing {
		return false
	}
	f.stopped = true
	return true
}

type fakeChat struct {
	reply string
	err   error

	gotMessage   string
	gotSessionID string
}

func (f *fakeChat) ProcessUserMessage(_ context.Context, message, sessionID string) (string, error) {
	f.gotMessage = message
	f.gotSessionID = sessionID
	return f.reply, f.err
}

func (f *fakeChat) Status() ai.Status {
	return ai.Status{Sessions: 1, Model: "test-model"}
}

type fakeFacts struct{ summary string }

func (f *fakeFacts) Summary() string { return f.summary }

type fakeShellStatus struct{ connected bool }

func (f *fakeShellStatus) Connected() bool { return f.connected }

type fixture struct {
	router *gin.Engine
	store  *tasks.Store
	agent  *fakeAgent
	chat   *fakeChat
	facts  *fakeFacts
	hub    *Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.LoadWithDefaults()
	store := tasks.NewStore("")
	fa := &fakeAgent{}
	fc := &fakeChat{reply: "done"}
	ff := &fakeFacts{}
	hub := NewHub()

	metrics := system.NewCollector(cache.NewMetricsCache())
	handlers := NewHandlers(cfg, metrics, store, fa, fc, ff, &fakeShellStatus{connected: true}, hub)
	srv := New(cfg, handlers)

	return &fixture{router: srv.Router(), store: store, agent: fa, chat: fc, facts: ff, hub: hub}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer test-api-key")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck_NoAuthRequired(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["shell_connected"])
}

func TestAPIRequiresAuth(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/agent/status", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPostMessage(t *testing.T) {
	f := newFixture(t)
	f.chat.reply = "Checking. RUN_COMMAND{df -h}"

	body := strings.NewReader(`{"message":"check the disk","session_id":"s7"}`)
	w := f.do(httptest.NewRequest("POST", "/api/agent/message", body))

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, f.chat.reply, resp["response"])
	assert.Equal(t, "s7", resp["session_id"])
	assert.Equal(t, "check the disk", f.chat.gotMessage)
	assert.Equal(t, "s7", f.chat.gotSessionID)
}

func TestPostMessage_DefaultsSessionID(t *testing.T) {
	f := newFixture(t)

	w := f.do(httptest.NewRequest("POST", "/api/agent/message", strings.NewReader(`{"message":"hi"}`)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "default", f.chat.gotSessionID)
}

func TestPostMessage_RequiresMessage(t *testing.T) {
	f := newFixture(t)

	w := f.do(httptest.NewRequest("POST", "/api/agent/message", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAgentStatus(t *testing.T) {
	f := newFixture(t)
	f.agent.executing = true

	w := f.do(httptest.NewRequest("GET", "/api/agent/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Executor agent.Status `json:"executor"`
		Chat     ai.Status    `json:"chat"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Executor.Executing)
	assert.Equal(t, "test-model", resp.Chat.Model)
}

func TestStopAgent(t *testing.T) {
	f := newFixture(t)

	// Nothing executing yet.
	w := f.do(httptest.NewRequest("POST", "/api/agent/stop", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	f.agent.executing = true
	w = f.do(httptest.NewRequest("POST", "/api/agent/stop", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.agent.stopped)
}

func TestListAndGetTasks(t *testing.T) {
	f := newFixture(t)
	id := f.store.Create("RUN_COMMAND{uptime}", tasks.PriorityMedium, []string{"uptime"})

	w := f.do(httptest.NewRequest("GET", "/api/tasks", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Tasks []tasks.Task `json:"tasks"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = f.do(httptest.NewRequest("GET", "/api/tasks/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(httptest.NewRequest("GET", "/api/tasks/no-such-id", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTasks_StatusFilter(t *testing.T) {
	f := newFixture(t)
	id := f.store.Create("RUN_COMMAND{a}", tasks.PriorityMedium, []string{"a"})
	f.store.Start(id)
	f.store.Create("RUN_COMMAND{b}", tasks.PriorityMedium, []string{"b"})

	w := f.do(httptest.NewRequest("GET", "/api/tasks?status=pending", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = f.do(httptest.NewRequest("GET", "/api/tasks?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelTask(t *testing.T) {
	f := newFixture(t)
	id := f.store.Create("RUN_COMMAND{sleep 100}", tasks.PriorityMedium, []string{"sleep 100"})

	w := f.do(httptest.NewRequest("POST", "/api/tasks/"+id+"/cancel", nil))
	require.Equal(t, http.StatusOK, w.Code)

	task, ok := f.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, tasks.StatusCancelled, task.Status)

	// A finished task cannot be cancelled again.
	w = f.do(httptest.NewRequest("POST", "/api/tasks/"+id+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestClearFinishedTasks(t *testing.T) {
	f := newFixture(t)
	id := f.store.Create("RUN_COMMAND{x}", tasks.PriorityMedium, []string{"x"})
	f.store.Cancel(id)
	f.store.Create("RUN_COMMAND{y}", tasks.PriorityMedium, []string{"y"})

	w := f.do(httptest.NewRequest("DELETE", "/api/tasks", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Removed int `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Removed)
}

func TestGetRemoteFacts(t *testing.T) {
	f := newFixture(t)

	w := f.do(httptest.NewRequest("GET", "/api/system-facts", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	f.facts.summary = "user: root\nhostname: web1"
	w = f.do(httptest.NewRequest("GET", "/api/system-facts", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "web1")
}

func TestGetMemoryMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(httptest.NewRequest("GET", "/api/metrics/memory", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "used_percent")
}
