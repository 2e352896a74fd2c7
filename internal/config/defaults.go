package config

const (
	defaultConfigPath                = "~/.config/roastmachine/config.toml"
	projectConfigName                = "roastmachine.toml"
	defaultStateDir                  = "~/.local/share/roastmachine"
	defaultLogDir                    = "~/.local/share/roastmachine/logs"
	defaultWorkDir                   = "~/.cache/roastmachine/work"
	defaultAPIBind                   = "127.0.0.1:8787"
	defaultLLMBaseURL                = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                  = "meta-llama/llama-3.1-8b-instruct"
	defaultLLMReferer                = "https://github.com/roastmachine/roastmachine"
	defaultLLMTitle                  = "Karaoke Roast Machine"
	defaultLLMTimeoutSeconds         = 30
	defaultLLMRetryMaxAttempts       = 3
	defaultWhisperXModel             = "large-v3-turbo"
	defaultWhisperXVADMethod         = "silero"
	defaultTranscriptionLanguage     = "en"
	defaultAwaitPollInterval         = 1
	defaultAwaitMaxPolls             = 60
	defaultRunRetentionHours         = 24
	defaultStageTimeoutSeconds       = 120
	defaultHistoryLimit              = 50
	defaultRecentRoasts              = 5
	defaultEscalationWindow          = 3
	defaultStreakWindowMinutes       = 60
	defaultMaxUploadBytes            = 10 * 1024 * 1024
	defaultNotifyRequestTimeout      = 10
	defaultWorkflowWorkers           = 4
	defaultQueuePollInterval         = 5
	defaultErrorRetryInterval        = 10
	defaultWorkflowHeartbeatInterval = 5
	defaultWorkflowHeartbeatTimeout  = 60
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultLogRetentionDays          = 30
)

var defaultAllowedTypes = []string{"audio/webm", "audio/wav", "audio/mp3", "audio/ogg"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			WorkDir:  defaultWorkDir,
			APIBind:  defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:          defaultLLMBaseURL,
			Model:            defaultLLMModel,
			Referer:          defaultLLMReferer,
			Title:            defaultLLMTitle,
			TimeoutSeconds:   defaultLLMTimeoutSeconds,
			RetryMaxAttempts: defaultLLMRetryMaxAttempts,
		},
		Transcription: Transcription{
			Model:     defaultWhisperXModel,
			VADMethod: defaultWhisperXVADMethod,
			Language:  defaultTranscriptionLanguage,
		},
		Pipeline: Pipeline{
			AwaitPollInterval:   defaultAwaitPollInterval,
			AwaitMaxPolls:       defaultAwaitMaxPolls,
			RunRetentionHours:   defaultRunRetentionHours,
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
		},
		Session: Session{
			HistoryLimit:        defaultHistoryLimit,
			RecentRoasts:        defaultRecentRoasts,
			EscalationWindow:    defaultEscalationWindow,
			StreakWindowMinutes: defaultStreakWindowMinutes,
		},
		Ingress: Ingress{
			MaxUploadBytes: defaultMaxUploadBytes,
			AllowedTypes:   append([]string(nil), defaultAllowedTypes...),
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RunErrors:      true,
		},
		Workflow: Workflow{
			Workers:            defaultWorkflowWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
