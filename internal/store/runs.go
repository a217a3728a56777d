package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"laraops/internal/core"
)

var ErrRunNotFound = errors.New("run not found")

func (s *RunStore) InsertRun(ctx context.Context, run *core.Run) error {
	run.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (id, task_id, status, started_at, ended_at, exit_code, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.TaskID, run.Status,
		nullableTime(run.StartedAt), nullableTime(run.EndedAt), nullableInt(run.ExitCode), nullableString(run.Error),
		run.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) MarkRunStarted(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, started_at = ?
		WHERE id = ?
	`, core.RunStatusRunning, startedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark run started: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *RunStore) MarkRunCompleted(ctx context.Context, id string, status core.RunStatus, endedAt time.Time, exitCode *int, errMsg *string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, ended_at = ?, exit_code = ?, error = ?
		WHERE id = ?
	`, status, endedAt.UTC().Format(time.RFC3339Nano), nullableInt(exitCode), nullableString(errMsg), id)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (*core.Run, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, task_id, status, started_at, ended_at, exit_code, error, created_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. An empty taskID lists
// runs across all tasks.
func (s *RunStore) ListRuns(ctx context.Context, taskID string, limit int) ([]*core.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows *sql.Rows
	var err error
	if taskID != "" {
		rows, err = s.DB.QueryContext(ctx, `
			SELECT id, task_id, status, started_at, ended_at, exit_code, error, created_at
			FROM runs
			WHERE task_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		`, taskID, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx, `
			SELECT id, task_id, status, started_at, ended_at, exit_code, error, created_at
			FROM runs
			ORDER BY created_at DESC
			LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// PruneRuns deletes a task's records beyond the newest Keep entries.
func (s *RunStore) PruneRuns(ctx context.Context, taskID string) error {
	if s.Keep <= 0 {
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM runs
		WHERE task_id = ? AND id IN (
			SELECT id FROM runs
			WHERE task_id = ?
			ORDER BY created_at DESC
			LIMIT -1 OFFSET ?
		)
	`, taskID, taskID, s.Keep)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return nil
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*core.Run, error) {
	var (
		id        string
		taskID    string
		status    string
		startedAt sql.NullString
		endedAt   sql.NullString
		exitCode  sql.NullInt64
		errMsg    sql.NullString
		createdAt string
	)
	if err := scanner.Scan(&id, &taskID, &status, &startedAt, &endedAt, &exitCode, &errMsg, &createdAt); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run := &core.Run{
		ID:        id,
		TaskID:    taskID,
		Status:    core.RunStatus(status),
		CreatedAt: mustParseTime(createdAt),
	}
	if startedAt.Valid {
		t := mustParseTime(startedAt.String)
		run.StartedAt = &t
	}
	if endedAt.Valid {
		t := mustParseTime(endedAt.String)
		run.EndedAt = &t
	}
	if exitCode.Valid {
		val := int(exitCode.Int64)
		run.ExitCode = &val
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	return run, nil
}

func mustParseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		panic(fmt.Sprintf("invalid stored time %q: %v", value, err))
	}
	return t
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
