package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds status API settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// Config holds all runtime settings for the CLI and its long-running modes.
type Config struct {
	ProjectRoot   string
	StateDir      string
	DBPath        string
	LogLevel      string
	RunKeep       int
	ShutdownGrace time.Duration

	Server ServerConfig
	Bark   BarkConfig
}

const (
	defaultAddr          = "127.0.0.1:7180"
	defaultLogLevel      = "info"
	defaultRunKeep       = 20
	defaultShutdownGrace = 5 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Load builds a Config from .env files and environment variables.
// Priority: real environment > working-dir .env > project .env > user config
// .env > defaults. CLI flag overrides are applied by the caller before
// Finalize.
func Load() *Config {
	// The working-dir .env may set LARAOPS_PROJECT_ROOT, so it loads before
	// root discovery.
	_ = godotenv.Load()

	root := getEnvString("LARAOPS_PROJECT_ROOT", "")
	if root == "" {
		if cwd, err := os.Getwd(); err == nil {
			if found, ok := FindProjectRoot(cwd); ok {
				root = found
			}
		}
	}

	var envFiles []string
	if root != "" {
		envFiles = append(envFiles, filepath.Join(root, ".env"))
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "laraops", ".env"))
	}
	if len(envFiles) > 0 {
		_ = godotenv.Load(envFiles...) // both files are optional
	}

	return &Config{
		ProjectRoot:   getEnvString("LARAOPS_PROJECT_ROOT", root),
		StateDir:      getEnvString("LARAOPS_STATE_DIR", ""),
		DBPath:        getEnvString("LARAOPS_DB_PATH", ""),
		LogLevel:      getEnvString("LARAOPS_LOG_LEVEL", defaultLogLevel),
		RunKeep:       getEnvInt("LARAOPS_RUN_KEEP", defaultRunKeep),
		ShutdownGrace: getEnvDuration("LARAOPS_SHUTDOWN_GRACE", defaultShutdownGrace),
		Server: ServerConfig{
			Addr:      getEnvString("LARAOPS_HTTP_ADDR", defaultAddr),
			AuthToken: getEnvString("LARAOPS_API_TOKEN", ""),
		},
		Bark: BarkConfig{
			URL:     getEnvString("LARAOPS_BARK_URL", ""),
			Enabled: getEnvBool("LARAOPS_BARK_ENABLED", false),
		},
	}
}

// Finalize resolves derived paths and creates the state directory. Call it
// after applying flag overrides.
func (c *Config) Finalize() error {
	if c.StateDir == "" {
		if c.ProjectRoot != "" {
			c.StateDir = filepath.Join(c.ProjectRoot, ".laraops")
		} else {
			dir, err := defaultStateDir()
			if err != nil {
				return fmt.Errorf("resolve default state dir: %w", err)
			}
			c.StateDir = dir
		}
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.StateDir, "laraops.db")
	}
	if c.RunKeep < 1 {
		c.RunKeep = defaultRunKeep
	}
	return nil
}

// TasksFile is the path of the JSON task store inside the state directory.
func (c *Config) TasksFile() string {
	return filepath.Join(c.StateDir, "tasks.json")
}

// FindProjectRoot walks up from start looking for a directory that contains
// an artisan entry script, the Laravel application marker.
func FindProjectRoot(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, "artisan")); err == nil && info.Mode().IsRegular() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "laraops"), nil
}
