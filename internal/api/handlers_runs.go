package api

import (
	"net/http"
	"strings"
	"time"

	"laraops/internal/core"
)

type runResponse struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	Status    string  `json:"status"`
	StartedAt *string `json:"started_at,omitempty"`
	EndedAt   *string `json:"ended_at,omitempty"`
	ExitCode  *int    `json:"exit_code,omitempty"`
	Error     *string `json:"error,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "run history is not available")
		return
	}

	taskID := strings.TrimSpace(r.URL.Query().Get("task"))
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)

	runs, err := s.runs.ListRuns(r.Context(), taskID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("list runs")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list runs")
		return
	}

	res := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		res = append(res, runToResponse(run))
	}
	writeJSON(w, http.StatusOK, res)
}

func runToResponse(run *core.Run) runResponse {
	var started, ended *string
	if run.StartedAt != nil {
		formatted := run.StartedAt.UTC().Format(time.RFC3339)
		started = &formatted
	}
	if run.EndedAt != nil {
		formatted := run.EndedAt.UTC().Format(time.RFC3339)
		ended = &formatted
	}
	return runResponse{
		ID:        run.ID,
		TaskID:    run.TaskID,
		Status:    string(run.Status),
		StartedAt: started,
		EndedAt:   ended,
		ExitCode:  run.ExitCode,
		Error:     run.Error,
		CreatedAt: run.CreatedAt.UTC().Format(time.RFC3339),
	}
}
