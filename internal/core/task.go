package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

var ErrInvalidTaskID = errors.New("invalid task id")

// Task is a schedulable unit pairing a shell command with a cron expression
// and optional I/O redirection for crontab-driven runs. The id and creation
// time are fixed at construction; the schedule is replaced only through a
// validated swap.
type Task struct {
	id          string
	command     string
	cron        *CronExpression
	description string
	enabled     bool
	workingDir  *string
	outputFile  *string
	errorFile   *string
	createdAt   time.Time
}

// TaskParams carries the full persisted state of a task.
type TaskParams struct {
	ID               string
	Command          string
	CronExpression   string
	Description      string
	Enabled          bool
	WorkingDirectory *string
	OutputFile       *string
	ErrorFile        *string
	CreatedAt        time.Time
}

// NewTask builds an enabled task with the given id, command and schedule.
func NewTask(id, command, cronExpr string) (*Task, error) {
	if !IsValidTaskID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTaskID, id)
	}
	parsed, err := ParseCron(cronExpr)
	if err != nil {
		return nil, err
	}
	return &Task{
		id:        id,
		command:   command,
		cron:      parsed,
		enabled:   true,
		createdAt: time.Now().Truncate(time.Second),
	}, nil
}

// RestoreTask rebuilds a task from persisted state, re-validating the id and
// cron expression.
func RestoreTask(p TaskParams) (*Task, error) {
	task, err := NewTask(p.ID, p.Command, p.CronExpression)
	if err != nil {
		return nil, err
	}
	task.description = p.Description
	task.enabled = p.Enabled
	task.workingDir = p.WorkingDirectory
	task.outputFile = p.OutputFile
	task.errorFile = p.ErrorFile
	task.createdAt = p.CreatedAt.Truncate(time.Second)
	return task, nil
}

// Params snapshots the task's full state.
func (t *Task) Params() TaskParams {
	return TaskParams{
		ID:               t.id,
		Command:          t.command,
		CronExpression:   t.cron.String(),
		Description:      t.description,
		Enabled:          t.enabled,
		WorkingDirectory: t.workingDir,
		OutputFile:       t.outputFile,
		ErrorFile:        t.errorFile,
		CreatedAt:        t.createdAt,
	}
}

func (t *Task) ID() string { return t.id }

func (t *Task) Command() string { return t.command }

func (t *Task) CronExpression() *CronExpression { return t.cron }

func (t *Task) Description() string { return t.description }

func (t *Task) Enabled() bool { return t.enabled }

func (t *Task) WorkingDirectory() *string { return t.workingDir }

func (t *Task) OutputFile() *string { return t.outputFile }

func (t *Task) ErrorFile() *string { return t.errorFile }

func (t *Task) CreatedAt() time.Time { return t.createdAt }

// SetCronExpression replaces the schedule after validating the new
// expression. The previous schedule stays in place when validation fails.
func (t *Task) SetCronExpression(expr string) error {
	parsed, err := ParseCron(expr)
	if err != nil {
		return err
	}
	t.cron = parsed
	return nil
}

func (t *Task) SetCommand(command string) { t.command = command }

func (t *Task) SetDescription(description string) { t.description = description }

func (t *Task) SetWorkingDirectory(dir *string) { t.workingDir = dir }

func (t *Task) SetOutputFile(path *string) { t.outputFile = path }

func (t *Task) SetErrorFile(path *string) { t.errorFile = path }

func (t *Task) Enable() { t.enabled = true }

func (t *Task) Disable() { t.enabled = false }

// ToCrontabEntry renders the task as a crontab line that re-invokes the CLI
// binary. Stdout goes to the output file or /dev/null; stderr goes to the
// error file when one is set, and is merged into stdout only when neither
// file is set.
func (t *Task) ToCrontabEntry(executablePath string) string {
	var b strings.Builder
	b.WriteString(strings.Join(t.cron.fields[:], " "))
	b.WriteByte(' ')
	if t.workingDir != nil && *t.workingDir != "" {
		b.WriteString("cd ")
		b.WriteString(shellquote.Join(*t.workingDir))
		b.WriteString(" && ")
	}
	b.WriteString(shellquote.Join(executablePath, "schedule", "run", t.id))
	if t.outputFile != nil && *t.outputFile != "" {
		b.WriteString(" > ")
		b.WriteString(shellquote.Join(*t.outputFile))
	} else {
		b.WriteString(" > /dev/null")
	}
	if t.errorFile != nil && *t.errorFile != "" {
		b.WriteString(" 2> ")
		b.WriteString(shellquote.Join(*t.errorFile))
	} else if t.outputFile == nil || *t.outputFile == "" {
		b.WriteString(" 2>&1")
	}
	// crontab expands a bare % into a newline and passes the rest on stdin.
	return strings.ReplaceAll(b.String(), "%", `\%`)
}
