package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"laraops/internal/core"
	"laraops/internal/logging"
	"laraops/internal/store"
)

func newTestServer(t *testing.T, token string) (*Server, *store.TaskRepo) {
	t.Helper()
	repo, err := store.OpenTasks(filepath.Join(t.TempDir(), "tasks.json"))
	if err != nil {
		t.Fatalf("open task repo: %v", err)
	}
	return NewServer("127.0.0.1:0", token, repo, nil, logging.NewNop()), repo
}

func mustAddTask(t *testing.T, repo *store.TaskRepo, id, cronExpr string) *core.Task {
	t.Helper()
	task, err := core.NewTask(id, "php artisan schedule:run", cronExpr)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := repo.Save(task); err != nil {
		t.Fatalf("save task: %v", err)
	}
	return task
}

func doRequest(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := doRequest(t, s.Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestListTasks(t *testing.T) {
	s, repo := newTestServer(t, "")
	mustAddTask(t, repo, "backup", "0 3 * * *")
	paused := mustAddTask(t, repo, "cleanup", "0 4 * * *")
	paused.Disable()
	if err := repo.Save(paused); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if _, ok := list[0]["next_run_at"]; ok {
		t.Error("list response includes next_run_at, want it omitted")
	}

	rec = doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks?enabled=true", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0]["id"] != "backup" {
		t.Errorf("enabled filter returned %v, want only backup", list)
	}

	rec = doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks?enabled=sometimes", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad filter", rec.Code)
	}
}

func TestGetTask(t *testing.T) {
	s, repo := newTestServer(t, "")
	mustAddTask(t, repo, "backup", "30 2 * * *")

	rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks/backup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var res taskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ID != "backup" || res.Cron != "30 2 * * *" || !res.Enabled {
		t.Errorf("response = %+v", res)
	}
	if res.NextRunAt == nil {
		t.Error("next_run_at missing on single task response")
	}

	rec = doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTaskNext(t *testing.T) {
	s, repo := newTestServer(t, "")
	mustAddTask(t, repo, "backup", "30 2 * * *")

	rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks/backup/next?count=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var res taskNextResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.NextTimes) != 3 {
		t.Fatalf("next_times len = %d, want 3", len(res.NextTimes))
	}
	for _, raw := range res.NextTimes {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		local := at.In(time.Local)
		if local.Hour() != 2 || local.Minute() != 30 {
			t.Errorf("occurrence %s not at 02:30 local", raw)
		}
	}
}

func TestTaskNextUnsatisfiable(t *testing.T) {
	s, repo := newTestServer(t, "")
	mustAddTask(t, repo, "never", "0 0 31 2 *")

	rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks/never/next", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s, repo := newTestServer(t, "secret")
	mustAddTask(t, repo, "backup", "0 3 * * *")

	if rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks?token=secret", nil); rec.Code != http.StatusOK {
		t.Errorf("query token: status = %d, want 200", rec.Code)
	}
	header := map[string]string{"Authorization": "Bearer secret"}
	if rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks", header); rec.Code != http.StatusOK {
		t.Errorf("bearer token: status = %d, want 200", rec.Code)
	}
	header = map[string]string{"Authorization": "Bearer wrong"}
	if rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/tasks", header); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, s.Handler(), http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d, want 200 without token", rec.Code)
	}
}

func TestCronPreview(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := doRequest(t, s.Handler(), http.MethodGet,
		"/v1/cron/preview?expr=*/15+*+*+*+*&count=2&now=2024-01-01T00:20:00Z", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var res cronPreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Valid {
		t.Fatalf("valid = false, message = %q", res.Message)
	}
	want := []string{"2024-01-01T00:30:00Z", "2024-01-01T00:45:00Z"}
	if len(res.NextTimes) != len(want) {
		t.Fatalf("next_times = %v, want %v", res.NextTimes, want)
	}
	for i := range want {
		if res.NextTimes[i] != want[i] {
			t.Errorf("next_times[%d] = %s, want %s", i, res.NextTimes[i], want[i])
		}
	}

	rec = doRequest(t, s.Handler(), http.MethodGet, "/v1/cron/preview?expr=bogus", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Valid {
		t.Error("valid = true for bogus expression")
	}

	if rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/cron/preview", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing expr", rec.Code)
	}
}

func TestListRunsUnavailable(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/runs", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without run store", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	repo, err := store.OpenTasks(filepath.Join(t.TempDir(), "tasks.json"))
	if err != nil {
		t.Fatalf("open task repo: %v", err)
	}
	ctx := context.Background()
	runs, err := store.OpenRuns(ctx, filepath.Join(t.TempDir(), "laraops.db"), 20)
	if err != nil {
		t.Fatalf("open run store: %v", err)
	}
	t.Cleanup(func() { runs.Close() })
	s := NewServer("127.0.0.1:0", "", repo, runs, logging.NewNop())

	for _, taskID := range []string{"backup", "backup", "cleanup"} {
		run := &core.Run{ID: core.NewRunID(), TaskID: taskID, Status: core.RunStatusQueued}
		if err := runs.InsertRun(ctx, run); err != nil {
			t.Fatalf("insert run: %v", err)
		}
	}

	rec := doRequest(t, s.Handler(), http.MethodGet, "/v1/runs?task=backup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var list []runResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("filtered len = %d, want 2", len(list))
	}

	rec = doRequest(t, s.Handler(), http.MethodGet, "/v1/runs?limit=1", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("limited len = %d, want 1", len(list))
	}
}
