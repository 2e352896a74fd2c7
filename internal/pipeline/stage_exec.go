package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"roastmachine/internal/inference"
	"roastmachine/internal/logging"
	"roastmachine/internal/services"
	"roastmachine/internal/session"
)

func (e *execution) initSession(ctx context.Context) (InitResult, bool, error) {
	sess, err := e.runner.sessions.Initialize(ctx, e.run.UserID)
	if err != nil {
		return InitResult{}, false, services.Wrap(services.ErrState, StageInitSession, "initialize session", "", err)
	}
	return InitResult{UserID: sess.UserID, Intensity: sess.Intensity, CreatedAt: sess.CreatedAt}, true, nil
}

func (e *execution) transcribe(ctx context.Context) (TranscriptionResult, bool, error) {
	logger := logging.WithContext(ctx, e.runner.logger)
	audio, err := e.runner.runs.LoadAudio(ctx, e.run.ID)
	if err != nil {
		return TranscriptionResult{}, false, services.Wrap(services.ErrState, StageTranscribe, "load audio", "", err)
	}
	if e.runner.adapters.Transcriber == nil {
		err := services.Wrap(services.ErrUpstream, StageTranscribe, "transcribe", "no transcriber configured", nil)
		logFallback(logger, "transcription", "empty_text", err)
		return TranscriptionResult{Error: err.Error()}, false, nil
	}

	callCtx, cancel := e.adapterContext(ctx)
	defer cancel()
	text, err := e.runner.adapters.Transcriber.Transcribe(callCtx, inference.Audio{Data: audio, ContentType: e.run.ContentType})
	if err != nil {
		logFallback(logger, "transcription", "empty_text", err)
		return TranscriptionResult{Error: err.Error()}, false, nil
	}
	logger.Debug("transcription received", logging.Int("transcript_chars", len(text)))
	return TranscriptionResult{Text: text, Success: true}, true, nil
}

func (e *execution) identify(ctx context.Context, transcription TranscriptionResult) (AnalysisResult, bool, error) {
	logger := logging.WithContext(ctx, e.runner.logger)
	if !transcription.Success || strings.TrimSpace(transcription.Text) == "" {
		logger.Info(
			"song identification skipped",
			logging.Args(logging.DecisionAttrs("song_identification", SilentSong, "no transcription available")...)...,
		)
		return silentAnalysis(), false, nil
	}
	if e.runner.adapters.Identifier == nil {
		err := services.Wrap(services.ErrUpstream, StageIdentifySong, "identify", "no identifier configured", nil)
		logFallback(logger, "song_identification", MysterySong, err)
		return mysteryAnalysis(err), false, nil
	}

	callCtx, cancel := e.adapterContext(ctx)
	defer cancel()
	match, err := e.runner.adapters.Identifier.IdentifySong(callCtx, transcription.Text)
	if err == nil && strings.TrimSpace(match.DetectedSong) == "" {
		err = services.Wrap(services.ErrUpstream, StageIdentifySong, "identify", "adapter returned a blank song", nil)
	}
	if err != nil {
		logFallback(logger, "song_identification", MysterySong, err)
		return mysteryAnalysis(err), false, nil
	}
	return AnalysisResult{
		DetectedSong: inference.NormalizeSongTitle(match.DetectedSong),
		Confidence:   inference.Clamp01(match.Confidence),
		Accuracy:     inference.Clamp01(match.Accuracy),
		Success:      true,
	}, true, nil
}

func (e *execution) commentary(ctx context.Context, analysis AnalysisResult) (CommentaryResult, bool, error) {
	logger := logging.WithContext(ctx, e.runner.logger)
	intensity, intensityErr := session.ParseIntensity(e.run.Intensity)

	escalation, err := e.runner.sessions.EscalationContext(ctx, e.run.UserID, analysis.DetectedSong)
	if err != nil {
		if intensityErr != nil {
			intensity = session.DefaultIntensity
		}
		return e.fallbackCommentary(logger, intensity, err), false, nil
	}
	if intensityErr != nil {
		intensity = escalation.Intensity
	}
	if e.runner.adapters.Commentator == nil {
		err := services.Wrap(services.ErrUpstream, StageGenerateCommentary, "generate", "no commentator configured", nil)
		return e.fallbackCommentary(logger, intensity, err), false, nil
	}

	callCtx, cancel := e.adapterContext(ctx)
	defer cancel()
	text, err := e.runner.adapters.Commentator.GenerateCommentary(callCtx, inference.CommentaryRequest{
		Song:      analysis.DetectedSong,
		Accuracy:  analysis.Accuracy,
		Intensity: string(intensity),
		Escalation: inference.Escalation{
			SongAttempts:  escalation.SongAttempts,
			TotalAttempts: escalation.TotalAttempts,
			RecentRoasts:  escalation.RecentRoasts,
		},
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = services.Wrap(services.ErrUpstream, StageGenerateCommentary, "generate", "adapter returned empty text", nil)
	}
	if err != nil {
		return e.fallbackCommentary(logger, intensity, err), false, nil
	}
	return CommentaryResult{
		Text:      strings.TrimSpace(text),
		Style:     StyleAIGenerated,
		Intensity: intensity,
		Success:   true,
	}, true, nil
}

func (e *execution) fallbackCommentary(logger *slog.Logger, intensity session.Intensity, cause error) CommentaryResult {
	text := pickFallback(e.runner.pick)
	logFallback(logger, "commentary", StyleFallback, cause)
	return CommentaryResult{
		Text:      text,
		Style:     StyleFallback,
		Intensity: intensity,
		Error:     errorText(cause),
	}
}

func (e *execution) recordAttempt(ctx context.Context, transcription TranscriptionResult, analysis AnalysisResult, roast CommentaryResult) (*session.Session, bool, error) {
	sess, _, err := e.runner.sessions.RecordAttempt(ctx, e.run.UserID, session.Attempt{
		Song:          analysis.DetectedSong,
		Accuracy:      analysis.Accuracy,
		Confidence:    analysis.Confidence,
		Commentary:    roast.Text,
		Style:         roast.Style,
		Intensity:     roast.Intensity,
		Transcription: transcription.Text,
	})
	if err != nil {
		return nil, false, services.Wrap(services.ErrState, StageRecordAttempt, "record attempt", "", err)
	}
	return sess, true, nil
}

// logFallback records a stage substituting a sentinel or fallback value for a
// failed adapter call.
func logFallback(logger *slog.Logger, decision, result string, cause error) {
	details := services.Details(cause)
	attrs := logging.DecisionAttrs(decision, result, details.Message)
	attrs = append(attrs,
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String(logging.FieldImpact, "run continues with a degraded result"),
		logging.Error(cause),
	)
	logging.WarnWithContext(logger, "stage fell back", "stage_fallback", attrs...)
}
