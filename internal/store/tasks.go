package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"laraops/internal/core"
)

var ErrCorruptStore = errors.New("corrupt task store")

// taskTimeLayout is the persisted timestamp format: second resolution, no
// timezone offset. Values are written and parsed in local time.
const taskTimeLayout = "2006-01-02 15:04:05"

// taskRecord is the on-disk JSON shape of a task.
type taskRecord struct {
	ID               string  `json:"id"`
	Command          string  `json:"command"`
	CronExpression   string  `json:"cronExpression"`
	Description      string  `json:"description"`
	Enabled          bool    `json:"enabled"`
	WorkingDirectory *string `json:"workingDirectory"`
	OutputFile       *string `json:"outputFile"`
	ErrorFile        *string `json:"errorFile"`
	CreatedAt        string  `json:"createdAt"`
}

// TaskRepo is the durable task store: a JSON array file loaded eagerly at
// construction and rewritten wholesale after every mutation. There is no
// journal and no write lock; concurrent CLI invocations are
// last-writer-wins, and a crash mid-write can corrupt the file.
type TaskRepo struct {
	path  string
	tasks map[string]*core.Task
}

// OpenTasks loads the repository from path. A missing file starts an empty
// repository; an unreadable or unparseable one fails with ErrCorruptStore.
func OpenTasks(path string) (*TaskRepo, error) {
	repo := &TaskRepo{path: path, tasks: make(map[string]*core.Task)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return repo, nil
		}
		return nil, fmt.Errorf("read task store: %w", err)
	}
	var records []taskRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, path, err)
	}
	for _, rec := range records {
		task, err := recordToTask(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: task %q: %v", ErrCorruptStore, rec.ID, err)
		}
		repo.tasks[task.ID()] = task
	}
	return repo, nil
}

// Path returns the backing file location.
func (r *TaskRepo) Path() string {
	return r.path
}

// All returns every task ordered by id.
func (r *TaskRepo) All() []*core.Task {
	tasks := make([]*core.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID() < tasks[j].ID() })
	return tasks
}

// EnabledTasks returns the enabled subset ordered by id.
func (r *TaskRepo) EnabledTasks() []*core.Task {
	var tasks []*core.Task
	for _, task := range r.All() {
		if task.Enabled() {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// Find returns the task with the given id, if present.
func (r *TaskRepo) Find(id string) (*core.Task, bool) {
	task, ok := r.tasks[id]
	return task, ok
}

// Exists reports whether a task with the given id is stored.
func (r *TaskRepo) Exists(id string) bool {
	_, ok := r.tasks[id]
	return ok
}

// Save upserts the task and rewrites the backing file.
func (r *TaskRepo) Save(task *core.Task) error {
	r.tasks[task.ID()] = task
	return r.flush()
}

// Delete removes the task and rewrites the backing file.
func (r *TaskRepo) Delete(id string) error {
	if _, ok := r.tasks[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrTaskNotFound, id)
	}
	delete(r.tasks, id)
	return r.flush()
}

// Clear drops every task and rewrites the backing file.
func (r *TaskRepo) Clear() error {
	r.tasks = make(map[string]*core.Task)
	return r.flush()
}

func (r *TaskRepo) flush() error {
	records := make([]taskRecord, 0, len(r.tasks))
	for _, task := range r.All() {
		records = append(records, taskToRecord(task))
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("ensure store dir: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write task store: %w", err)
	}
	return nil
}

func taskToRecord(task *core.Task) taskRecord {
	p := task.Params()
	return taskRecord{
		ID:               p.ID,
		Command:          p.Command,
		CronExpression:   p.CronExpression,
		Description:      p.Description,
		Enabled:          p.Enabled,
		WorkingDirectory: p.WorkingDirectory,
		OutputFile:       p.OutputFile,
		ErrorFile:        p.ErrorFile,
		CreatedAt:        p.CreatedAt.Format(taskTimeLayout),
	}
}

func recordToTask(rec taskRecord) (*core.Task, error) {
	createdAt, err := time.ParseInLocation(taskTimeLayout, rec.CreatedAt, time.Local)
	if err != nil {
		return nil, fmt.Errorf("bad createdAt %q: %v", rec.CreatedAt, err)
	}
	return core.RestoreTask(core.TaskParams{
		ID:               rec.ID,
		Command:          rec.Command,
		CronExpression:   rec.CronExpression,
		Description:      rec.Description,
		Enabled:          rec.Enabled,
		WorkingDirectory: rec.WorkingDirectory,
		OutputFile:       rec.OutputFile,
		ErrorFile:        rec.ErrorFile,
		CreatedAt:        createdAt,
	})
}
