package crontab

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestReplaceBlockAppend(t *testing.T) {
	tests := []struct {
		name    string
		current string
		lines   []string
		want    string
	}{
		{
			name:    "empty crontab",
			current: "",
			lines:   []string{"0 3 * * * backup"},
			want:    "# BEGIN laraops managed tasks\n0 3 * * * backup\n# END laraops managed tasks\n",
		},
		{
			name:    "existing entries kept with separating blank line",
			current: "30 1 * * * certbot renew\n",
			lines:   []string{"0 3 * * * backup"},
			want:    "30 1 * * * certbot renew\n\n# BEGIN laraops managed tasks\n0 3 * * * backup\n# END laraops managed tasks\n",
		},
		{
			name:    "missing trailing newline repaired",
			current: "30 1 * * * certbot renew",
			lines:   []string{"0 3 * * * backup"},
			want:    "30 1 * * * certbot renew\n\n# BEGIN laraops managed tasks\n0 3 * * * backup\n# END laraops managed tasks\n",
		},
		{
			name:    "multiple lines",
			current: "",
			lines:   []string{"# task a", "0 3 * * * run a", "# task b", "0 4 * * * run b"},
			want:    "# BEGIN laraops managed tasks\n# task a\n0 3 * * * run a\n# task b\n0 4 * * * run b\n# END laraops managed tasks\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReplaceBlock(tt.current, tt.lines)
			if got != tt.want {
				t.Errorf("ReplaceBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplaceBlockInPlace(t *testing.T) {
	current := "30 1 * * * certbot renew\n\n" +
		"# BEGIN laraops managed tasks\n" +
		"0 3 * * * old entry\n" +
		"# END laraops managed tasks\n" +
		"15 2 * * * logrotate\n"

	got := ReplaceBlock(current, []string{"0 4 * * * new entry"})
	want := "30 1 * * * certbot renew\n\n" +
		"# BEGIN laraops managed tasks\n" +
		"0 4 * * * new entry\n" +
		"# END laraops managed tasks\n" +
		"15 2 * * * logrotate\n"
	if got != want {
		t.Errorf("ReplaceBlock() = %q, want %q", got, want)
	}
}

func TestReplaceBlockIdempotent(t *testing.T) {
	lines := []string{"0 3 * * * backup", "0 4 * * * cleanup"}
	once := ReplaceBlock("30 1 * * * certbot renew\n", lines)
	twice := ReplaceBlock(once, lines)
	if once != twice {
		t.Errorf("second splice changed document:\nfirst:  %q\nsecond: %q", once, twice)
	}
}

func TestReplaceBlockRemove(t *testing.T) {
	tests := []struct {
		name    string
		current string
		want    string
	}{
		{
			name: "block between entries",
			current: "30 1 * * * certbot renew\n\n" +
				"# BEGIN laraops managed tasks\n0 3 * * * backup\n# END laraops managed tasks\n" +
				"15 2 * * * logrotate\n",
			want: "30 1 * * * certbot renew\n15 2 * * * logrotate\n",
		},
		{
			name:    "block is the whole document",
			current: "# BEGIN laraops managed tasks\n0 3 * * * backup\n# END laraops managed tasks\n",
			want:    "",
		},
		{
			name:    "no block to remove",
			current: "30 1 * * * certbot renew\n",
			want:    "30 1 * * * certbot renew\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReplaceBlock(tt.current, nil)
			if got != tt.want {
				t.Errorf("ReplaceBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplaceBlockUnterminated(t *testing.T) {
	current := "30 1 * * * certbot renew\n" +
		"# BEGIN laraops managed tasks\n" +
		"0 3 * * * orphaned\n" +
		"no end marker here"

	got := ReplaceBlock(current, []string{"0 4 * * * repaired"})
	want := "30 1 * * * certbot renew\n" +
		"# BEGIN laraops managed tasks\n" +
		"0 4 * * * repaired\n" +
		"# END laraops managed tasks\n"
	if got != want {
		t.Errorf("ReplaceBlock() = %q, want %q", got, want)
	}

	if got := ReplaceBlock(current, nil); got != "30 1 * * * certbot renew\n" {
		t.Errorf("ReplaceBlock() with no lines = %q, want entries before block", got)
	}
}

// fakeCrontab writes a shell script that mimics the crontab binary against a
// state file and returns a Crontab pointed at it.
func fakeCrontab(t *testing.T) (*Crontab, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("crontab stub requires a POSIX shell")
	}
	dir := t.TempDir()
	state := filepath.Join(dir, "crontab.state")
	script := filepath.Join(dir, "crontab")
	body := fmt.Sprintf(`#!/bin/sh
case "$1" in
-l)
  if [ ! -f %[1]q ]; then
    echo "no crontab for $(whoami)" >&2
    exit 1
  fi
  cat %[1]q
  ;;
-)
  cat > %[1]q
  ;;
*)
  echo "unexpected argument: $1" >&2
  exit 2
  ;;
esac
`, state)
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return &Crontab{command: script}, state
}

func TestReadNoCrontab(t *testing.T) {
	ct, _ := fakeCrontab(t)
	got, err := ct.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "" {
		t.Errorf("Read() = %q, want empty", got)
	}
}

func TestReadUnavailable(t *testing.T) {
	ct := &Crontab{command: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err := ct.Read()
	if !errors.Is(err, ErrCrontabUnavailable) {
		t.Errorf("Read() error = %v, want ErrCrontabUnavailable", err)
	}
}

func TestInstallBlockRoundTrip(t *testing.T) {
	ct, state := fakeCrontab(t)

	if err := ct.Install("30 1 * * * certbot renew\n"); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if err := ct.InstallBlock([]string{"0 3 * * * backup"}); err != nil {
		t.Fatalf("InstallBlock() error = %v", err)
	}

	content, err := os.ReadFile(state)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	want := "30 1 * * * certbot renew\n\n" +
		"# BEGIN laraops managed tasks\n0 3 * * * backup\n# END laraops managed tasks\n"
	if string(content) != want {
		t.Errorf("installed crontab = %q, want %q", string(content), want)
	}

	if err := ct.InstallBlock(nil); err != nil {
		t.Fatalf("InstallBlock(nil) error = %v", err)
	}
	content, err = os.ReadFile(state)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if string(content) != "30 1 * * * certbot renew\n" {
		t.Errorf("crontab after removal = %q, want unmanaged entries only", string(content))
	}
}
