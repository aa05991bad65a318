package config

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/qualscan/internal/executor"
)

// DefaultReasoningEffort is used when no valid effort is configured
const DefaultReasoningEffort = "low"

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Review        ReviewConfig        `toml:"review"`
	Notifications NotificationsConfig `toml:"notifications"`
	Schedules     []ScheduleConfig    `toml:"schedule"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	ProjectRoot  string `toml:"project_root"`
	RunsDir      string `toml:"runs_dir"`
	DatabasePath string `toml:"database_path"`
	Verbose      bool   `toml:"verbose"`
}

// ReviewConfig holds the knobs for batch execution. Every field has a safe
// default; ApplyEnv may override them once at startup.
type ReviewConfig struct {
	Runner                 string  `toml:"runner"`
	ReasoningEffort        string  `toml:"reasoning_effort"`
	MaxRetries             int     `toml:"max_retries"`
	RetryBackoffSeconds    float64 `toml:"retry_backoff_seconds"`
	MaxParallelBatches     int     `toml:"max_parallel_batches"`
	BatchTimeoutSeconds    float64 `toml:"batch_timeout_seconds"`
	StallSeconds           float64 `toml:"stall_seconds"`
	LiveLogIntervalSeconds float64 `toml:"live_log_interval_seconds"`
	HeartbeatSeconds       float64 `toml:"heartbeat_seconds"`
	KillGraceSeconds       float64 `toml:"kill_grace_seconds"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// ScheduleConfig describes a recurring review run
type ScheduleConfig struct {
	Name             string `toml:"name"`
	Cron             string `toml:"cron"`
	Packet           string `toml:"packet"`
	OnlyBatches      string `toml:"only_batches"`
	NotifyOnComplete bool   `toml:"notify_on_complete"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			RunsDir:      filepath.Join(home, ".qualscan", "runs"),
			DatabasePath: filepath.Join(home, ".qualscan", "qualscan.db"),
		},
		Review: DefaultReview(),
		Notifications: NotificationsConfig{
			Desktop: false,
		},
	}
}

// DefaultReview returns the review defaults
func DefaultReview() ReviewConfig {
	return ReviewConfig{
		Runner:                 "codex",
		ReasoningEffort:        DefaultReasoningEffort,
		MaxRetries:             1,
		RetryBackoffSeconds:    2,
		MaxParallelBatches:     8,
		BatchTimeoutSeconds:    1200,
		StallSeconds:           120,
		LiveLogIntervalSeconds: 5,
		HeartbeatSeconds:       15,
		KillGraceSeconds:       5,
	}
}

// Load reads configuration from a TOML file, falling back to defaults,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.Review.sanitize()

	// Expand paths
	cfg.General.ProjectRoot = ExpandPath(cfg.General.ProjectRoot)
	cfg.General.RunsDir = ExpandPath(cfg.General.RunsDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	for i := range cfg.Schedules {
		cfg.Schedules[i].Packet = ExpandPath(cfg.Schedules[i].Packet)
	}

	return cfg, nil
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides review settings from QUALSCAN_* variables. Values that
// do not parse, or are out of range, are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	r := &c.Review
	if v := strings.TrimSpace(getenv("QUALSCAN_REASONING_EFFORT")); v != "" {
		r.ReasoningEffort = v
	}
	envInt(getenv, "QUALSCAN_MAX_RETRIES", 0, &r.MaxRetries)
	envInt(getenv, "QUALSCAN_MAX_PARALLEL_BATCHES", 1, &r.MaxParallelBatches)
	envFloat(getenv, "QUALSCAN_RETRY_BACKOFF_SECONDS", 0, &r.RetryBackoffSeconds)
	envFloat(getenv, "QUALSCAN_BATCH_TIMEOUT_SECONDS", 1, &r.BatchTimeoutSeconds)
	envFloat(getenv, "QUALSCAN_STALL_SECONDS", 0, &r.StallSeconds)
	envFloat(getenv, "QUALSCAN_LIVE_LOG_INTERVAL_SECONDS", 0.1, &r.LiveLogIntervalSeconds)
}

func envInt(getenv func(string) string, key string, min int, dst *int) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= min {
		*dst = n
	}
}

func envFloat(getenv func(string) string, key string, min float64, dst *float64) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= min && f <= maxKnobSeconds {
		*dst = f
	}
}

// maxKnobSeconds bounds every seconds setting so it converts to a positive
// time.Duration
const maxKnobSeconds = 7 * 24 * 60 * 60

// sanitize replaces malformed values with defaults
func (r *ReviewConfig) sanitize() {
	def := DefaultReview()
	r.ReasoningEffort = NormalizeEffort(r.ReasoningEffort)
	if strings.TrimSpace(r.Runner) == "" {
		r.Runner = def.Runner
	}
	if r.MaxRetries < 0 {
		r.MaxRetries = def.MaxRetries
	}
	if r.MaxParallelBatches < 1 {
		r.MaxParallelBatches = def.MaxParallelBatches
	}
	// zero disables backoff and stall detection, the rest must be positive
	knobSeconds(&r.RetryBackoffSeconds, true, def.RetryBackoffSeconds)
	knobSeconds(&r.StallSeconds, true, def.StallSeconds)
	knobSeconds(&r.BatchTimeoutSeconds, false, def.BatchTimeoutSeconds)
	knobSeconds(&r.LiveLogIntervalSeconds, false, def.LiveLogIntervalSeconds)
	knobSeconds(&r.HeartbeatSeconds, false, def.HeartbeatSeconds)
	knobSeconds(&r.KillGraceSeconds, false, def.KillGraceSeconds)
}

// knobSeconds resets *v to def unless it is finite, positive (or zero when
// allowed) and at most maxKnobSeconds
func knobSeconds(v *float64, allowZero bool, def float64) {
	switch {
	case math.IsNaN(*v), *v < 0, *v > maxKnobSeconds, *v == 0 && !allowZero:
		*v = def
	}
}

// NormalizeEffort returns effort lower-cased if it is a known level, or the default
func NormalizeEffort(effort string) string {
	return executor.ValidEffort(effort)
}

// RetryBackoff returns the base backoff between retries
func (r ReviewConfig) RetryBackoff() time.Duration { return seconds(r.RetryBackoffSeconds) }

// BatchTimeout returns the hard ceiling for one attempt
func (r ReviewConfig) BatchTimeout() time.Duration { return seconds(r.BatchTimeoutSeconds) }

// StallWindow returns the stall detection window; zero disables it
func (r ReviewConfig) StallWindow() time.Duration { return seconds(r.StallSeconds) }

// LiveLogInterval returns how often the live log snapshot is written
func (r ReviewConfig) LiveLogInterval() time.Duration { return seconds(r.LiveLogIntervalSeconds) }

// HeartbeatInterval returns how often scheduler heartbeats are emitted
func (r ReviewConfig) HeartbeatInterval() time.Duration { return seconds(r.HeartbeatSeconds) }

// KillGrace returns the wait between graceful terminate and forceful kill
func (r ReviewConfig) KillGrace() time.Duration { return seconds(r.KillGraceSeconds) }

// Options converts the review settings into executor options
func (r ReviewConfig) Options() executor.Options {
	return executor.Options{
		Runner:          r.Runner,
		ReasoningEffort: NormalizeEffort(r.ReasoningEffort),
		MaxRetries:      r.MaxRetries,
		RetryBackoff:    r.RetryBackoff(),
		Timeout:         r.BatchTimeout(),
		StallWindow:     r.StallWindow(),
		LiveLogInterval: r.LiveLogInterval(),
		KillGrace:       r.KillGrace(),
		PollInterval:    executor.DefaultPollInterval,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
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
	return filepath.Join(home, ".config", "qualscan", "config.toml")
}
