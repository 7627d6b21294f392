package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Executor      ExecutorConfig      `toml:"executor"`
	Jobs          JobsConfig          `toml:"jobs"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	SessionRoot  string `toml:"session_root"`
	DatabasePath string `toml:"database_path"`
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"`
}

// ExecutorConfig holds settings for the task executor command
type ExecutorConfig struct {
	Binary         string   `toml:"binary"`
	Args           []string `toml:"args"`
	TimeoutMinutes int      `toml:"timeout_minutes"`
	TailLines      int      `toml:"tail_lines"`
}

// JobsConfig holds job defaults and loop tuning
type JobsConfig struct {
	MaxParallelTasks  int `toml:"max_parallel_tasks"`
	CycleDelaySeconds int `toml:"cycle_delay_seconds"`
	// StaleAfterMinutes is how long a job may sit in running state with no
	// active runner before the janitor marks it errored.
	StaleAfterMinutes int `toml:"stale_after_minutes"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds HTTP API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			SessionRoot:  filepath.Join(home, ".orbit", "sessions"),
			DatabasePath: filepath.Join(home, ".orbit", "orbit.db"),
			LogLevel:     "info",
			LogFormat:    "text",
		},
		Executor: ExecutorConfig{
			Binary:         "claude",
			Args:           []string{"--print", "--dangerously-skip-permissions", "-p"},
			TimeoutMinutes: 30,
			TailLines:      20,
		},
		Jobs: JobsConfig{
			MaxParallelTasks:  3,
			CycleDelaySeconds: 2,
			StaleAfterMinutes: 120,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.SessionRoot = ExpandPath(cfg.General.SessionRoot)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, nil
}

// ExecutorTimeout returns the per-task timeout as a duration
func (c *Config) ExecutorTimeout() time.Duration {
	return time.Duration(c.Executor.TimeoutMinutes) * time.Minute
}

// CycleDelay returns the pause between cycles as a duration
func (c *Config) CycleDelay() time.Duration {
	return time.Duration(c.Jobs.CycleDelaySeconds) * time.Second
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "orbit", "config.toml")
}
