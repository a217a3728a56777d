package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"laraops/internal/core"

	"github.com/go-chi/chi/v5"
)

type taskResponse struct {
	ID          string  `json:"id"`
	Command     string  `json:"command"`
	Cron        string  `json:"cron"`
	Description string  `json:"description,omitempty"`
	Enabled     bool    `json:"enabled"`
	WorkingDir  *string `json:"working_dir,omitempty"`
	OutputFile  *string `json:"output_file,omitempty"`
	ErrorFile   *string `json:"error_file,omitempty"`
	NextRunAt   *string `json:"next_run_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type taskNextResponse struct {
	TaskID    string   `json:"task_id"`
	NextTimes []string `json:"next_times"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var enabledFilter *bool
	if v := strings.TrimSpace(r.URL.Query().Get("enabled")); v != "" {
		switch strings.ToLower(v) {
		case "true", "1":
			t := true
			enabledFilter = &t
		case "false", "0":
			f := false
			enabledFilter = &f
		default:
			writeError(w, http.StatusBadRequest, "invalid_input", "enabled must be true or false")
			return
		}
	}

	tasks := s.tasks.All()
	res := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		if enabledFilter != nil && t.Enabled() != *enabledFilter {
			continue
		}
		// Lists skip next_run_at: computing it walks minutes and sparse
		// schedules make that arbitrarily slow across many tasks.
		res = append(res, taskToResponse(t, false))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, ok := s.tasks.Find(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task, true))
}

func (s *Server) handleTaskNext(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, ok := s.tasks.Find(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}

	count := parseIntDefault(r.URL.Query().Get("count"), 5)
	if count <= 0 || count > 10 {
		count = 5
	}

	times, err := task.CronExpression().NextOccurrences(time.Now(), count)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "no_match", err.Error())
		return
	}
	formatted := make([]string, 0, len(times))
	for _, t := range times {
		formatted = append(formatted, t.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, taskNextResponse{TaskID: taskID, NextTimes: formatted})
}

func taskToResponse(task *core.Task, withNext bool) taskResponse {
	var next *string
	if withNext {
		if at, err := task.CronExpression().NextRunDate(time.Now()); err == nil {
			formatted := at.UTC().Format(time.RFC3339)
			next = &formatted
		}
	}
	return taskResponse{
		ID:          task.ID(),
		Command:     task.Command(),
		Cron:        task.CronExpression().String(),
		Description: task.Description(),
		Enabled:     task.Enabled(),
		WorkingDir:  task.WorkingDirectory(),
		OutputFile:  task.OutputFile(),
		ErrorFile:   task.ErrorFile(),
		NextRunAt:   next,
		CreatedAt:   task.CreatedAt().UTC().Format(time.RFC3339),
	}
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
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
