package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsEnvironment(t *testing.T) {
	root := t.TempDir()
	t.Setenv("LARAOPS_PROJECT_ROOT", root)
	t.Setenv("LARAOPS_STATE_DIR", filepath.Join(root, "state"))
	t.Setenv("LARAOPS_LOG_LEVEL", "debug")
	t.Setenv("LARAOPS_RUN_KEEP", "50")
	t.Setenv("LARAOPS_SHUTDOWN_GRACE", "10s")
	t.Setenv("LARAOPS_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("LARAOPS_API_TOKEN", "secret")
	t.Setenv("LARAOPS_BARK_URL", "https://bark.example/key")
	t.Setenv("LARAOPS_BARK_ENABLED", "yes")

	cfg := Load()

	if cfg.ProjectRoot != root {
		t.Errorf("ProjectRoot = %q, want %q", cfg.ProjectRoot, root)
	}
	if want := filepath.Join(root, "state"); cfg.StateDir != want {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, want)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.RunKeep != 50 {
		t.Errorf("RunKeep = %d, want 50", cfg.RunKeep)
	}
	if cfg.ShutdownGrace != 10*time.Second {
		t.Errorf("ShutdownGrace = %v, want 10s", cfg.ShutdownGrace)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("Server.Addr = %q, want 127.0.0.1:9999", cfg.Server.Addr)
	}
	if cfg.Server.AuthToken != "secret" {
		t.Errorf("Server.AuthToken = %q, want secret", cfg.Server.AuthToken)
	}
	if cfg.Bark.URL != "https://bark.example/key" {
		t.Errorf("Bark.URL = %q", cfg.Bark.URL)
	}
	if !cfg.Bark.Enabled {
		t.Error("Bark.Enabled = false, want true")
	}
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("LARAOPS_PROJECT_ROOT", t.TempDir())
	t.Setenv("LARAOPS_RUN_KEEP", "lots")
	t.Setenv("LARAOPS_SHUTDOWN_GRACE", "soon")

	cfg := Load()

	if cfg.RunKeep != defaultRunKeep {
		t.Errorf("RunKeep = %d, want default %d", cfg.RunKeep, defaultRunKeep)
	}
	if cfg.ShutdownGrace != defaultShutdownGrace {
		t.Errorf("ShutdownGrace = %v, want default %v", cfg.ShutdownGrace, defaultShutdownGrace)
	}
	if cfg.LogLevel == "" {
		t.Error("LogLevel empty, want default")
	}
}

func TestLoadProjectEnvFile(t *testing.T) {
	// godotenv exports into the process environment; park the key so the
	// testing cleanup restores it afterwards.
	t.Setenv("LARAOPS_API_TOKEN", "")
	os.Unsetenv("LARAOPS_API_TOKEN")

	root := t.TempDir()
	env := "LARAOPS_API_TOKEN=from-project-env\n"
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte(env), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("LARAOPS_PROJECT_ROOT", root)

	cfg := Load()

	if cfg.Server.AuthToken != "from-project-env" {
		t.Errorf("AuthToken = %q, want value from project .env", cfg.Server.AuthToken)
	}
}

func TestFindProjectRoot(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "artisan"), []byte("#!/usr/bin/env php\n"), 0o755); err != nil {
		t.Fatalf("write artisan: %v", err)
	}
	nested := filepath.Join(base, "app", "Http", "Controllers")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, ok := FindProjectRoot(nested)
	if !ok {
		t.Fatal("FindProjectRoot() not found, want found")
	}
	if got != base {
		t.Errorf("FindProjectRoot() = %q, want %q", got, base)
	}

	if _, ok := FindProjectRoot(t.TempDir()); ok {
		t.Error("FindProjectRoot() found a root in an empty tree")
	}
}

func TestFindProjectRootIgnoresDirectory(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "artisan"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, ok := FindProjectRoot(base); ok {
		t.Error("FindProjectRoot() accepted a directory named artisan")
	}
}

func TestFinalizeDerivesStateDir(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{ProjectRoot: root}

	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	want := filepath.Join(root, ".laraops")
	if cfg.StateDir != want {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, want)
	}
	info, err := os.Stat(cfg.StateDir)
	if err != nil || !info.IsDir() {
		t.Errorf("state dir not created: %v", err)
	}
	if wantDB := filepath.Join(want, "laraops.db"); cfg.DBPath != wantDB {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, wantDB)
	}
	if cfg.RunKeep != defaultRunKeep {
		t.Errorf("RunKeep = %d, want default %d", cfg.RunKeep, defaultRunKeep)
	}
}

func TestFinalizeKeepsExplicitSettings(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "custom")
	cfg := &Config{StateDir: dir, DBPath: "/tmp/elsewhere.db", RunKeep: 5}

	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.StateDir != dir {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, dir)
	}
	if cfg.DBPath != "/tmp/elsewhere.db" {
		t.Errorf("DBPath = %q, want explicit path kept", cfg.DBPath)
	}
	if cfg.RunKeep != 5 {
		t.Errorf("RunKeep = %d, want 5", cfg.RunKeep)
	}
	if want := filepath.Join(dir, "tasks.json"); cfg.TasksFile() != want {
		t.Errorf("TasksFile() = %q, want %q", cfg.TasksFile(), want)
	}
}
