package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskgate/internal/scheduler"
	"taskgate/internal/statuslog"
	"taskgate/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupServer(t *testing.T, authToken string) (*Server, *task.Registry) {
	t.Helper()
	reg := task.NewRegistry(statuslog.NewMemory(), testLogger())
	sched := scheduler.New(reg, testLogger(), scheduler.Options{})
	return NewServer("127.0.0.1:0", authToken, reg, sched, nil, testLogger()), reg
}

func writeTestScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task.sh")
	require.NoError(t, os.WriteFile(path, []byte("main() {\n  echo ok\n}\n"), 0o755))
	return path
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestCreateTask(t *testing.T) {
	s, _ := setupServer(t, "")
	script := writeTestScript(t)

	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/tasks/", createTaskRequest{
		Name:    "reports",
		Script:  script,
		Cadence: "daily",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp taskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "reports", resp.Name)
	assert.Equal(t, "daily", resp.Execution)
	assert.False(t, resp.Running)
}

func TestCreateTask_Validation(t *testing.T) {
	s, _ := setupServer(t, "")
	script := writeTestScript(t)

	tests := []struct {
		name string
		req  createTaskRequest
		code int
	}{
		{"missing name", createTaskRequest{Script: script}, http.StatusBadRequest},
		{"missing script", createTaskRequest{Name: "a"}, http.StatusBadRequest},
		{"bad cadence", createTaskRequest{Name: "a", Script: script, Cadence: "whenever"}, http.StatusBadRequest},
		{"negative timeout", createTaskRequest{Name: "a", Script: script, TimeoutS: -1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s.Handler(), http.MethodPost, "/v1/tasks/", tt.req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestCreateTask_DuplicateName(t *testing.T) {
	s, _ := setupServer(t, "")
	script := writeTestScript(t)

	req := createTaskRequest{Name: "reports", Script: script}
	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/tasks/", req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s.Handler(), http.MethodPost, "/v1/tasks/", req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListAndGetTask(t *testing.T) {
	s, reg := setupServer(t, "")
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		_, err := task.New(ctx, reg, name, task.Func(func(ctx context.Context, params map[string]any) (any, error) {
			return nil, nil
		}), task.Options{})
		require.NoError(t, err)
	}

	w := doJSON(t, s.Handler(), http.MethodGet, "/v1/tasks/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []taskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)

	w = doJSON(t, s.Handler(), http.MethodGet, "/v1/tasks/beta/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s.Handler(), http.MethodGet, "/v1/tasks/ghost/", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryReflectsExecution(t *testing.T) {
	s, reg := setupServer(t, "")
	ctx := context.Background()

	tk, err := task.New(ctx, reg, "reports", task.Func(func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	}), task.Options{})
	require.NoError(t, err)
	_, err = tk.Execute(ctx, nil)
	require.NoError(t, err)

	w := doJSON(t, s.Handler(), http.MethodGet, "/v1/tasks/reports/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var recs []recordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "run", recs[0].Action)
	assert.Equal(t, "success", recs[1].Action)
}

func TestRunTask(t *testing.T) {
	s, reg := setupServer(t, "")
	ctx := context.Background()

	done := make(chan struct{})
	_, err := task.New(ctx, reg, "manual", task.Func(func(ctx context.Context, params map[string]any) (any, error) {
		close(done)
		return nil, nil
	}), task.Options{})
	require.NoError(t, err)

	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/tasks/manual/run", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not dispatched")
	}

	w = doJSON(t, s.Handler(), http.MethodPost, "/v1/tasks/ghost/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCadencePreview(t *testing.T) {
	s, _ := setupServer(t, "")

	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/cadence/preview", cadencePreviewRequest{
		Expr:  "0 9 * * *",
		Now:   "2024-03-01T10:00:00Z",
		Count: 3,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp cadencePreviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	require.Len(t, resp.NextTimes, 3)
	assert.Equal(t, "2024-03-02T09:00:00Z", resp.NextTimes[0])

	w = doJSON(t, s.Handler(), http.MethodPost, "/v1/cadence/preview", cadencePreviewRequest{Expr: "garbage"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Message)
}

func TestAuthMiddleware(t *testing.T) {
	s, _ := setupServer(t, "secret")

	w := doJSON(t, s.Handler(), http.MethodGet, "/v1/tasks/", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tasks/?token=secret", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
