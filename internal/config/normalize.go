package config

import (
	"fmt"
	"mime"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeTranscription()
	c.normalizeIngress()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeLLM() {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		for _, key := range []string{"ROAST_LLM_API_KEY", "OPENROUTER_API_KEY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.IdentifyModel = strings.TrimSpace(c.LLM.IdentifyModel)
	c.LLM.CommentaryModel = strings.TrimSpace(c.LLM.CommentaryModel)
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperXModel
	}
	c.Transcription.VADMethod = strings.ToLower(strings.TrimSpace(c.Transcription.VADMethod))
	if c.Transcription.VADMethod == "" {
		c.Transcription.VADMethod = defaultWhisperXVADMethod
	}
	if strings.TrimSpace(c.Transcription.HFToken) == "" {
		if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Transcription.HFToken = strings.TrimSpace(value)
		}
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
}

func (c *Config) normalizeIngress() {
	if len(c.Ingress.AllowedTypes) == 0 {
		c.Ingress.AllowedTypes = append([]string(nil), defaultAllowedTypes...)
		return
	}
	seen := make(map[string]struct{}, len(c.Ingress.AllowedTypes))
	normalized := make([]string, 0, len(c.Ingress.AllowedTypes))
	for _, value := range c.Ingress.AllowedTypes {
		mediaType := NormalizeMediaType(value)
		if mediaType == "" {
			continue
		}
		if _, ok := seen[mediaType]; ok {
			continue
		}
		seen[mediaType] = struct{}{}
		normalized = append(normalized, mediaType)
	}
	c.Ingress.AllowedTypes = normalized
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// NormalizeMediaType lowercases a MIME type and drops any parameters, so
// "audio/webm;codecs=opus" and "AUDIO/WEBM" both become "audio/webm".
func NormalizeMediaType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(value); err == nil {
		return strings.ToLower(mediaType)
	}
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = value[:idx]
	}
	return strings.ToLower(strings.TrimSpace(value))
}
