package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	WorkDir  string `toml:"work_dir"`
	APIBind  string `toml:"api_bind"`
}

// LLM contains connection settings for the OpenRouter-compatible chat endpoint
// used for song identification and commentary.
type LLM struct {
	APIKey           string `toml:"api_key"`
	BaseURL          string `toml:"base_url"`
	Model            string `toml:"model"`
	IdentifyModel    string `toml:"identify_model"`
	CommentaryModel  string `toml:"commentary_model"`
	Referer          string `toml:"referer"`
	Title            string `toml:"title"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	RetryMaxAttempts int    `toml:"retry_max_attempts"`
}

// Transcription contains WhisperX settings for the speech-to-text stage.
type Transcription struct {
	Model       string `toml:"model"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	VADMethod   string `toml:"vad_method"`
	HFToken     string `toml:"hf_token"`
	Language    string `toml:"language"`
}

// Pipeline contains caller-side polling settings and run retention.
type Pipeline struct {
	AwaitPollInterval   int `toml:"await_poll_interval"`
	AwaitMaxPolls       int `toml:"await_max_polls"`
	RunRetentionHours   int `toml:"run_retention_hours"`
	StageTimeoutSeconds int `toml:"stage_timeout_seconds"`
}

// Session contains history and streak settings for per-user sessions.
type Session struct {
	HistoryLimit        int `toml:"history_limit"`
	RecentRoasts        int `toml:"recent_roasts"`
	EscalationWindow    int `toml:"escalation_window"`
	StreakWindowMinutes int `toml:"streak_window_minutes"`
}

// Ingress contains upload validation rules applied before a run is queued.
type Ingress struct {
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
	AllowedTypes   []string `toml:"allowed_types"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunErrors      bool   `toml:"run_errors"`
	RunCompleted   bool   `toml:"run_completed"`
}

// Workflow contains configuration for daemon timing and worker counts.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for the roast machine.
//
// Configuration sections by subsystem:
//   - Paths: state, log and scratch directories plus the API bind address
//   - LLM: chat completion endpoint for identification and commentary
//   - Transcription: WhisperX speech-to-text
//   - Pipeline: await polling cadence and run retention
//   - Session: history cap and streak window
//   - Ingress: upload size and MIME restrictions
//   - Notifications: ntfy push notification settings
//   - Workflow: worker pool size, polling intervals and heartbeats
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	Transcription Transcription `toml:"transcription"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Session       Session       `toml:"session"`
	Ingress       Ingress       `toml:"ingress"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.WorkDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the SQLite file holding pipeline runs and checkpoints.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// SessionDBPath returns the SQLite file holding per-user sessions.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.Paths.StateDir, "sessions.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "roast.lock")
}

// FFmpegBinary returns the ffmpeg executable name used to normalize uploads.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// UVXBinary returns the uv tool runner used to launch WhisperX.
func (c *Config) UVXBinary() string {
	return "uvx"
}

// AwaitPollInterval converts the configured poll interval into a duration.
func (c *Config) AwaitPollInterval() time.Duration {
	return time.Duration(c.Pipeline.AwaitPollInterval) * time.Second
}

// StreakWindow converts the configured streak window into a duration.
func (c *Config) StreakWindow() time.Duration {
	return time.Duration(c.Session.StreakWindowMinutes) * time.Minute
}

// RunRetention converts the configured run retention into a duration.
func (c *Config) RunRetention() time.Duration {
	return time.Duration(c.Pipeline.RunRetentionHours) * time.Hour
}

// IdentifyModel returns the model used for song identification.
func (c *Config) IdentifyModel() string {
	if strings.TrimSpace(c.LLM.IdentifyModel) != "" {
		return c.LLM.IdentifyModel
	}
	return c.LLM.Model
}

// CommentaryModel returns the model used for commentary generation.
func (c *Config) CommentaryModel() string {
	if strings.TrimSpace(c.LLM.CommentaryModel) != "" {
		return c.LLM.CommentaryModel
	}
	return c.LLM.Model
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
