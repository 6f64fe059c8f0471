package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"taskgate/internal/notify"
	"taskgate/internal/period"
	"taskgate/internal/scheduler"
	"taskgate/internal/statuslog"
	"taskgate/internal/task"
)

type createTaskRequest struct {
	Name     string `json:"name"`
	Script   string `json:"script"`
	Entry    string `json:"entry,omitempty"`
	Cadence  string `json:"cadence,omitempty"`
	TimeoutS int    `json:"timeout_s,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

type taskResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status,omitempty"`
	Running   bool   `json:"running"`
	Execution string `json:"execution,omitempty"`
	Priority  int    `json:"priority"`
	TimeoutS  int    `json:"timeout_s,omitempty"`
	NextStart string `json:"next_start,omitempty"`
}

type recordResponse struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	ExcText string `json:"exc_text,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Script = strings.TrimSpace(req.Script)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "name is required")
		return
	}
	if req.Script == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "script is required")
		return
	}
	if req.Cadence != "" {
		if _, err := period.FromCadence(req.Cadence); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_cadence", err.Error())
			return
		}
	}
	if req.TimeoutS < 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "timeout_s must be non-negative")
		return
	}

	opts := task.Options{
		Execution: req.Cadence,
		Timeout:   time.Duration(req.TimeoutS) * time.Second,
		Priority:  req.Priority,
		OnFailure: notify.FailureHook(s.notifier, req.Name),
	}
	t, err := task.New(r.Context(), s.reg, req.Name, task.Script{Path: req.Script, Entry: req.Entry}, opts)
	if err != nil {
		if errors.Is(err, task.ErrDuplicateName) {
			writeError(w, http.StatusConflict, "duplicate_name", err.Error())
			return
		}
		s.logger.Error("create task", "task", req.Name, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create task")
		return
	}

	resp, err := s.taskToResponse(r, t)
	if err != nil {
		s.logger.Error("derive task state", "task", t.Name(), "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read task state")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.reg.Tasks()
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp, err := s.taskToResponse(r, t)
		if err != nil {
			s.logger.Error("derive task state", "task", t.Name(), "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to read task state")
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}
	resp, err := s.taskToResponse(r, t)
	if err != nil {
		s.logger.Error("derive task state", "task", t.Name(), "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read task state")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}
	recs, err := t.History(r.Context())
	if err != nil {
		s.logger.Error("read history", "task", t.Name(), "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read history")
		return
	}
	out := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordToResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "taskName")
	// The run must not die with the request; it is owned by the scheduler.
	if err := s.sched.RunNow(context.WithoutCancel(r.Context()), name); err != nil {
		switch {
		case errors.Is(err, task.ErrTaskNotFound):
			writeError(w, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, "already_running", err.Error())
		default:
			s.logger.Error("run task", "task", name, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to run task")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task": name, "state": "dispatched"})
}

type cadencePreviewRequest struct {
	Expr  string `json:"expr"`
	Now   string `json:"now,omitempty"`
	Count int    `json:"count,omitempty"`
}

type cadencePreviewResponse struct {
	Valid     bool     `json:"valid"`
	NextTimes []string `json:"next_times,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func (s *Server) handleCadencePreview(w http.ResponseWriter, r *http.Request) {
	var req cadencePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, cadencePreviewResponse{Valid: false, Message: "invalid JSON payload"})
		return
	}
	expr := strings.TrimSpace(req.Expr)
	if expr == "" {
		writeJSON(w, http.StatusBadRequest, cadencePreviewResponse{Valid: false, Message: "cadence expression is required"})
		return
	}
	per, err := period.FromCadence(expr)
	if err != nil {
		writeJSON(w, http.StatusOK, cadencePreviewResponse{Valid: false, Message: err.Error()})
		return
	}

	count := req.Count
	if count <= 0 || count > 10 {
		count = 5
	}
	base := time.Now()
	if req.Now != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Now); err == nil {
			base = parsed
		}
	}

	times := period.NextOccurrences(per, base, count)
	formatted := make([]string, 0, len(times))
	for _, t := range times {
		formatted = append(formatted, t.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, cadencePreviewResponse{Valid: true, NextTimes: formatted})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*task.Task, bool) {
	name := chi.URLParam(r, "taskName")
	t, err := s.reg.Lookup(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return nil, false
	}
	return t, true
}

func (s *Server) taskToResponse(r *http.Request, t *task.Task) (taskResponse, error) {
	ctx := r.Context()
	status, err := t.Status(ctx)
	if err != nil {
		return taskResponse{}, err
	}
	resp := taskResponse{
		Name:      t.Name(),
		Status:    string(status),
		Running:   status == statuslog.ActionRun,
		Execution: t.Execution(),
		Priority:  t.Priority(),
		TimeoutS:  int(t.Timeout() / time.Second),
	}
	next, err := t.NextStart(ctx, time.Now())
	if err != nil {
		return taskResponse{}, err
	}
	if !next.IsZero() {
		resp.NextStart = next.UTC().Format(time.RFC3339)
	}
	return resp, nil
}

func recordToResponse(rec statuslog.Record) recordResponse {
	return recordResponse{
		Time:    rec.Time.UTC().Format(time.RFC3339Nano),
		Level:   string(rec.Level),
		Action:  string(rec.Action),
		Message: rec.Message,
		ExcText: rec.ExcText,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
