package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	taskIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
	slugPattern   = regexp.MustCompile(`[^a-z0-9]+`)
)

// IsValidTaskID reports whether id consists solely of lowercase
// alphanumerics and hyphens.
func IsValidTaskID(id string) bool {
	return taskIDPattern.MatchString(id)
}

// GenerateTaskID derives a task id from a human-readable name: lowercased,
// runs of other characters collapsed to single hyphens, edge hyphens
// trimmed, with the current epoch seconds appended for uniqueness.
func GenerateTaskID(name string) string {
	slug := strings.ToLower(name)
	slug = slugPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	return fmt.Sprintf("%s-%d", slug, time.Now().Unix())
}

// NewRunID returns a random 128-bit identifier encoded as lowercase hex.
// Falls back to a timestamp string if the random source fails.
func NewRunID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
}
