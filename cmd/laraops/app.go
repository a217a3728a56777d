package main

import (
	"context"
	"fmt"
	"os"

	"laraops/internal/config"
	"laraops/internal/core"
	"laraops/internal/crontab"
	"laraops/internal/logging"
	"laraops/internal/notify"
	"laraops/internal/project"
	"laraops/internal/store"

	"github.com/rs/zerolog"
)

// app bundles the collaborators the schedule commands need.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	tasks     *store.TaskRepo
	runs      *store.RunStore
	scheduler *core.Scheduler
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// mustConfig loads the configuration, applies global flag overrides and
// resolves derived paths.
func mustConfig() *config.Config {
	cfg := config.Load()
	if flagProjectRoot != "" {
		cfg.ProjectRoot = flagProjectRoot
	}
	if flagStateDir != "" {
		cfg.StateDir = flagStateDir
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Finalize(); err != nil {
		fail(err)
	}
	return cfg
}

// mustApp opens the task store and run history and wires the scheduler.
// A broken run history DB downgrades to a warning; tasks still work.
func mustApp(ctx context.Context) *app {
	cfg := mustConfig()
	logger := logging.New(cfg.LogLevel)

	tasks, err := store.OpenTasks(cfg.TasksFile())
	if err != nil {
		fail(err)
	}

	var recorder core.RunRecorder
	runs, err := store.OpenRuns(ctx, cfg.DBPath, cfg.RunKeep)
	if err != nil {
		logger.Warn().Err(err).Msg("run history unavailable")
		runs = nil
	} else {
		recorder = runs
	}

	var notifier core.Notifier
	if cfg.Bark.Enabled && cfg.Bark.URL != "" {
		bark, err := notify.NewBarkNotifier(cfg.Bark.URL)
		if err != nil {
			logger.Warn().Err(err).Msg("bark notifier disabled")
		} else {
			notifier = bark
		}
	}

	execPath, err := os.Executable()
	if err != nil {
		execPath = "laraops"
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		tasks:     tasks,
		runs:      runs,
		scheduler: core.NewScheduler(tasks, crontab.New(), recorder, notifier, execPath, logger),
	}
}

func (a *app) close() {
	if a.runs != nil {
		_ = a.runs.Close()
	}
}

// mustProject builds the maintenance script runner for the configured root.
func mustProject() *project.Project {
	cfg := mustConfig()
	return project.New(cfg.ProjectRoot, logging.New(cfg.LogLevel))
}
