package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
//
// An empty llm.api_key is accepted: identification and commentary then fall
// back to their sentinel results, and preflight reports the missing key.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateIngress(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateLLM() error {
	if !strings.HasPrefix(c.LLM.BaseURL, "http://") && !strings.HasPrefix(c.LLM.BaseURL, "https://") {
		return errors.New("llm.base_url must be an http(s) URL")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.LLM.RetryMaxAttempts < 1 {
		return errors.New("llm.retry_max_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.VADMethod {
	case "silero", "pyannote":
	default:
		return fmt.Errorf("transcription.vad_method must be silero or pyannote, got %q", c.Transcription.VADMethod)
	}
	if c.Transcription.VADMethod == "pyannote" && c.Transcription.HFToken == "" {
		return errors.New("transcription.hf_token must be set when transcription.vad_method is pyannote")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.AwaitPollInterval <= 0 {
		return errors.New("pipeline.await_poll_interval must be positive")
	}
	if c.Pipeline.AwaitMaxPolls <= 0 {
		return errors.New("pipeline.await_max_polls must be positive")
	}
	if c.Pipeline.RunRetentionHours < 0 {
		return errors.New("pipeline.run_retention_hours must be >= 0")
	}
	if c.Pipeline.StageTimeoutSeconds <= 0 {
		return errors.New("pipeline.stage_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.HistoryLimit <= 0 {
		return errors.New("session.history_limit must be positive")
	}
	if c.Session.RecentRoasts <= 0 {
		return errors.New("session.recent_roasts must be positive")
	}
	if c.Session.EscalationWindow <= 0 {
		return errors.New("session.escalation_window must be positive")
	}
	if c.Session.StreakWindowMinutes <= 0 {
		return errors.New("session.streak_window_minutes must be positive")
	}
	return nil
}

func (c *Config) validateIngress() error {
	if c.Ingress.MaxUploadBytes <= 0 {
		return errors.New("ingress.max_upload_bytes must be positive")
	}
	if len(c.Ingress.AllowedTypes) == 0 {
		return errors.New("ingress.allowed_types must include at least one MIME type")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers <= 0 {
		return errors.New("workflow.workers must be positive")
	}
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}
