// Package project runs the maintenance scripts shipped inside a Laravel
// application checkout (scripts/setup.sh and friends) against a discovered
// project root.
package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	ErrProjectNotFound = errors.New("project root not found")
	ErrScriptNotFound  = errors.New("maintenance script not found")
)

// Project executes maintenance scripts relative to the application root.
type Project struct {
	root   string
	logger zerolog.Logger

	// Stdout and Stderr receive the script output. They default to the
	// process streams.
	Stdout io.Writer
	Stderr io.Writer
}

func New(root string, logger zerolog.Logger) *Project {
	return &Project{
		root:   root,
		logger: logger,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Root returns the application root the project was built with. Empty when
// discovery failed and no override was configured.
func (p *Project) Root() string {
	return p.root
}

// Setup provisions the application: dependencies, env file, key generation,
// migrations. Whatever scripts/setup.sh does.
func (p *Project) Setup(ctx context.Context) error {
	return p.runScript(ctx, "setup.sh")
}

// Clean clears caches and stale build artifacts via scripts/clean.sh.
func (p *Project) Clean(ctx context.Context) error {
	return p.runScript(ctx, "clean.sh")
}

// Services drives scripts/services.sh with one of start, stop, restart or
// status.
func (p *Project) Services(ctx context.Context, action string) error {
	switch action {
	case "start", "stop", "restart", "status":
	default:
		return fmt.Errorf("invalid services action %q (want start, stop, restart or status)", action)
	}
	return p.runScript(ctx, "services.sh", action)
}

func (p *Project) runScript(ctx context.Context, name string, args ...string) error {
	if p.root == "" {
		return fmt.Errorf("%w: no artisan file in this directory or any parent (set LARAOPS_PROJECT_ROOT to override)", ErrProjectNotFound)
	}
	script := filepath.Join(p.root, "scripts", name)
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrScriptNotFound, script)
	}

	p.logger.Debug().Str("script", script).Strs("args", args).Msg("running maintenance script")

	cmd := exec.CommandContext(ctx, "/bin/sh", append([]string{script}, args...)...) // #nosec G204
	cmd.Dir = p.root
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
