package inference

import (
	"roastmachine/internal/config"
	"roastmachine/internal/services/llm"
	"roastmachine/internal/services/whisperx"
)

const (
	commentaryTemperature = 0.9
	commentaryMaxTokens   = 160
)

// NewAdapters builds the production adapters from configuration.
// Identification and commentary may use different models.
func NewAdapters(cfg *config.Config, opts ...llm.Option) Adapters {
	identifyClient := llm.NewClient(llmConfig(cfg, cfg.IdentifyModel()), retryOptions(cfg, opts)...)

	commentaryCfg := llmConfig(cfg, cfg.CommentaryModel())
	commentaryCfg.Temperature = commentaryTemperature
	commentaryCfg.MaxTokens = commentaryMaxTokens
	commentaryClient := llm.NewClient(commentaryCfg, retryOptions(cfg, opts)...)

	whisper := whisperx.NewService(whisperx.Config{
		Model:       cfg.Transcription.Model,
		CUDAEnabled: cfg.Transcription.CUDAEnabled,
		VADMethod:   cfg.Transcription.VADMethod,
		HFToken:     cfg.Transcription.HFToken,
		Language:    cfg.Transcription.Language,
	}, cfg.FFmpegBinary(), cfg.UVXBinary())

	return Adapters{
		Transcriber: NewWhisperTranscriber(whisper, cfg.Paths.WorkDir),
		Identifier:  NewLLMSongIdentifier(identifyClient),
		Commentator: NewLLMCommentator(commentaryClient),
	}
}

func llmConfig(cfg *config.Config, model string) llm.Config {
	return llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}
}

func retryOptions(cfg *config.Config, extra []llm.Option) []llm.Option {
	opts := make([]llm.Option, 0, len(extra)+1)
	if cfg.LLM.RetryMaxAttempts > 0 {
		opts = append(opts, llm.WithRetryMaxAttempts(cfg.LLM.RetryMaxAttempts))
	}
	return append(opts, extra...)
}
