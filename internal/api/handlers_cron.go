package api

import (
	"net/http"
	"strings"
	"time"

	"laraops/internal/core"
)

type cronPreviewResponse struct {
	Valid     bool     `json:"valid"`
	NextTimes []string `json:"next_times,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func (s *Server) handleCronPreview(w http.ResponseWriter, r *http.Request) {
	expr := strings.TrimSpace(r.URL.Query().Get("expr"))
	if expr == "" {
		writeJSON(w, http.StatusBadRequest, cronPreviewResponse{Valid: false, Message: "cron expression is required"})
		return
	}
	schedule, err := core.ParseCron(expr)
	if err != nil {
		writeJSON(w, http.StatusOK, cronPreviewResponse{Valid: false, Message: err.Error()})
		return
	}

	count := parseIntDefault(r.URL.Query().Get("count"), 5)
	if count <= 0 || count > 10 {
		count = 5
	}

	base := time.Now()
	if now := strings.TrimSpace(r.URL.Query().Get("now")); now != "" {
		if parsed, err := time.Parse(time.RFC3339, now); err == nil {
			base = parsed
		}
	}

	times, err := schedule.NextOccurrences(base, count)
	if err != nil {
		// Parseable but unsatisfiable, e.g. Feb 31.
		writeJSON(w, http.StatusOK, cronPreviewResponse{Valid: true, Message: err.Error()})
		return
	}
	formatted := make([]string, 0, len(times))
	for _, t := range times {
		formatted = append(formatted, t.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, cronPreviewResponse{Valid: true, NextTimes: formatted})
}
