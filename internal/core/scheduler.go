package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrDuplicateTask = errors.New("task already exists")
	ErrTaskNotFound  = errors.New("task not found")
)

// RunStatus describes the state of an individual execution.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run captures a single execution attempt of a task.
type Run struct {
	ID        string
	TaskID    string
	Status    RunStatus
	StartedAt *time.Time
	EndedAt   *time.Time
	ExitCode  *int
	Error     *string
	CreatedAt time.Time
}

// TaskStore abstracts the durable task repository used by the scheduler.
type TaskStore interface {
	All() []*Task
	EnabledTasks() []*Task
	Find(id string) (*Task, bool)
	Exists(id string) bool
	Save(task *Task) error
	Delete(id string) error
}

// CrontabWriter installs the rendered managed block into the system crontab.
type CrontabWriter interface {
	InstallBlock(lines []string) error
}

// RunRecorder persists execution history.
type RunRecorder interface {
	InsertRun(ctx context.Context, run *Run) error
	MarkRunStarted(ctx context.Context, id string, startedAt time.Time) error
	MarkRunCompleted(ctx context.Context, id string, status RunStatus, endedAt time.Time, exitCode *int, errMsg *string) error
	PruneRuns(ctx context.Context, taskID string) error
}

// Notifier pushes a human-readable message about a failed run.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// Scheduler orchestrates the task repository, cron evaluation, the system
// crontab and on-demand execution. It keeps no task state of its own; each
// CLI invocation constructs one, acts, and exits. Periodic execution belongs
// to the OS cron daemon, which re-invokes the binary per the synced entries.
type Scheduler struct {
	tasks    TaskStore
	crontab  CrontabWriter
	runs     RunRecorder // optional
	notifier Notifier    // optional
	execPath string
	logger   zerolog.Logger

	// Stdout/Stderr receive the child's output during RunTask. They default
	// to the process streams; crontab-driven runs are redirected by the
	// rendered entry instead.
	Stdout io.Writer
	Stderr io.Writer
}

// NewScheduler constructs a scheduler. runs and notifier may be nil.
func NewScheduler(tasks TaskStore, crontab CrontabWriter, runs RunRecorder, notifier Notifier, execPath string, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		tasks:    tasks,
		crontab:  crontab,
		runs:     runs,
		notifier: notifier,
		execPath: execPath,
		logger:   logger,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

// ValidateTask confirms the task's schedule parses. A missing working
// directory only logs a warning; whether the directory exists at run time is
// the crontab entry's problem.
func (s *Scheduler) ValidateTask(task *Task) error {
	if _, err := ParseCron(task.CronExpression().String()); err != nil {
		return err
	}
	if dir := task.WorkingDirectory(); dir != nil && *dir != "" {
		if _, err := os.Stat(*dir); err != nil {
			s.logger.Warn().Str("task_id", task.ID()).Str("dir", *dir).Msg("working directory not accessible")
		}
	}
	return nil
}

// AddTask persists a new task, refusing ids that already exist.
func (s *Scheduler) AddTask(task *Task) error {
	if s.tasks.Exists(task.ID()) {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID())
	}
	if err := s.ValidateTask(task); err != nil {
		return err
	}
	if err := s.tasks.Save(task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	s.logger.Info().Str("task_id", task.ID()).Str("cron", task.CronExpression().String()).Msg("task added")
	return nil
}

// RemoveTask deletes the task from the repository.
func (s *Scheduler) RemoveTask(id string) error {
	if err := s.tasks.Delete(id); err != nil {
		return err
	}
	s.logger.Info().Str("task_id", id).Msg("task removed")
	return nil
}

// EnableTask marks the task enabled and persists it.
func (s *Scheduler) EnableTask(id string) error {
	return s.setEnabled(id, true)
}

// DisableTask marks the task disabled and persists it.
func (s *Scheduler) DisableTask(id string) error {
	return s.setEnabled(id, false)
}

func (s *Scheduler) setEnabled(id string, enabled bool) error {
	task, ok := s.tasks.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if enabled {
		task.Enable()
	} else {
		task.Disable()
	}
	if err := s.tasks.Save(task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	s.logger.Info().Str("task_id", id).Bool("enabled", enabled).Msg("task updated")
	return nil
}

// GetNextRunTime returns the task's next run after from. The search is
// bounded but can still take a while for sparse schedules.
func (s *Scheduler) GetNextRunTime(id string, from time.Time) (time.Time, error) {
	task, ok := s.tasks.Find(id)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.CronExpression().NextRunDate(from)
}

// RunTask executes the task's command synchronously through the shell and
// returns its exit code. A non-zero exit is the task's own result, not a
// scheduler error; err is non-nil only when the command could not be run at
// all. Redirection files are not applied here: interactive runs show their
// output, crontab-driven runs are redirected by the rendered entry.
func (s *Scheduler) RunTask(ctx context.Context, id string) (int, error) {
	task, ok := s.tasks.Find(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	run := &Run{ID: NewRunID(), TaskID: task.ID(), Status: RunStatusQueued}
	s.recordInsert(ctx, run)

	cmd := commandForTask(ctx, task.Command())
	if dir := task.WorkingDirectory(); dir != nil && *dir != "" {
		cmd.Dir = *dir
	}
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr

	startedAt := time.Now().UTC()
	s.recordStarted(ctx, run.ID, startedAt)
	s.logger.Info().Str("task_id", task.ID()).Str("run_id", run.ID).Msg("running task")

	err := cmd.Run()
	endedAt := time.Now().UTC()

	if err == nil {
		code := 0
		s.recordCompleted(ctx, run.ID, RunStatusSucceeded, endedAt, &code, nil)
		s.pruneRuns(ctx, task.ID())
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		msg := err.Error()
		s.recordCompleted(ctx, run.ID, RunStatusFailed, endedAt, &code, &msg)
		s.pruneRuns(ctx, task.ID())
		s.notifyFailure(ctx, task, fmt.Sprintf("exit code %d", code))
		return code, nil
	}

	msg := err.Error()
	s.recordCompleted(ctx, run.ID, RunStatusFailed, endedAt, nil, &msg)
	s.pruneRuns(ctx, task.ID())
	s.notifyFailure(ctx, task, msg)
	return 0, fmt.Errorf("run task %s: %w", task.ID(), err)
}

// SyncToSystemCrontab rewrites the managed crontab block with one comment
// and one entry line per enabled task. Content outside the block is left
// alone; concurrent external edits are last-writer-wins.
func (s *Scheduler) SyncToSystemCrontab() error {
	var lines []string
	for _, task := range s.tasks.EnabledTasks() {
		comment := "# task " + task.ID()
		if desc := task.Description(); desc != "" {
			comment += ": " + desc
		}
		lines = append(lines, comment, task.ToCrontabEntry(s.execPath))
	}
	if err := s.crontab.InstallBlock(lines); err != nil {
		return err
	}
	s.logger.Info().Int("tasks", len(lines)/2).Msg("crontab synced")
	return nil
}

func (s *Scheduler) recordInsert(ctx context.Context, run *Run) {
	if s.runs == nil {
		return
	}
	if err := s.runs.InsertRun(ctx, run); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("record run")
	}
}

func (s *Scheduler) recordStarted(ctx context.Context, runID string, startedAt time.Time) {
	if s.runs == nil {
		return
	}
	if err := s.runs.MarkRunStarted(ctx, runID, startedAt); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("mark run started")
	}
}

func (s *Scheduler) recordCompleted(ctx context.Context, runID string, status RunStatus, endedAt time.Time, exitCode *int, errMsg *string) {
	if s.runs == nil {
		return
	}
	if err := s.runs.MarkRunCompleted(ctx, runID, status, endedAt, exitCode, errMsg); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("mark run completed")
	}
}

func (s *Scheduler) pruneRuns(ctx context.Context, taskID string) {
	if s.runs == nil {
		return
	}
	if err := s.runs.PruneRuns(ctx, taskID); err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("prune runs")
	}
}

func (s *Scheduler) notifyFailure(ctx context.Context, task *Task, reason string) {
	if s.notifier == nil {
		return
	}
	title := fmt.Sprintf("task %s failed", task.ID())
	body := fmt.Sprintf("command: %s\n%s", task.Command(), reason)
	if err := s.notifier.Send(ctx, title, body); err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID()).Msg("send failure notification")
	}
}

func commandForTask(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command) // #nosec G204
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command) // #nosec G204
}
