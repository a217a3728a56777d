// Package crontab reads and installs the invoking user's crontab through the
// system crontab command, confining all edits to a delimited managed block.
package crontab

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var ErrCrontabUnavailable = errors.New("crontab unavailable")

const (
	blockBegin = "# BEGIN laraops managed tasks"
	blockEnd   = "# END laraops managed tasks"
)

// Crontab shells out to the crontab binary for reads and installs.
type Crontab struct {
	command string
}

func New() *Crontab {
	return &Crontab{command: "crontab"}
}

// Read returns the current crontab content. A user without a crontab gets an
// empty one, not an error.
func (c *Crontab) Read() (string, error) {
	cmd := exec.Command(c.command, "-l")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "no crontab for") {
			return "", nil
		}
		return "", fmt.Errorf("%w: crontab -l: %v: %s", ErrCrontabUnavailable, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Install replaces the user's entire crontab with content.
func (c *Crontab) Install(content string) error {
	cmd := exec.Command(c.command, "-")
	cmd.Stdin = strings.NewReader(content)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: crontab -: %v: %s", ErrCrontabUnavailable, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// InstallBlock rewrites the managed block with the given lines, leaving
// everything outside the markers untouched. No lines removes the block.
func (c *Crontab) InstallBlock(lines []string) error {
	current, err := c.Read()
	if err != nil {
		return err
	}
	return c.Install(ReplaceBlock(current, lines))
}

// ReplaceBlock splices the managed block into an existing crontab document.
// An existing block is replaced in place; otherwise the block is appended
// after a separating blank line. Empty lines remove the block entirely. An
// unterminated block (begin marker without end) is treated as running to the
// end of the document.
func ReplaceBlock(current string, lines []string) string {
	var block string
	if len(lines) > 0 {
		block = blockBegin + "\n" + strings.Join(lines, "\n") + "\n" + blockEnd + "\n"
	}

	start := strings.Index(current, blockBegin)
	if start >= 0 {
		var after string
		if end := strings.Index(current[start:], blockEnd); end >= 0 {
			after = current[start+end+len(blockEnd):]
			after = strings.TrimPrefix(after, "\n")
		}
		before := current[:start]
		if block == "" {
			trimmed := strings.TrimRight(before, "\n")
			if trimmed == "" {
				return after
			}
			return trimmed + "\n" + after
		}
		return before + block + after
	}

	if block == "" {
		return current
	}
	if strings.TrimSpace(current) == "" {
		return block
	}
	if !strings.HasSuffix(current, "\n") {
		current += "\n"
	}
	return current + "\n" + block
}
