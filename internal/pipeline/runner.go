package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"roastmachine/internal/inference"
	"roastmachine/internal/logging"
	"roastmachine/internal/queue"
	"roastmachine/internal/services"
	"roastmachine/internal/session"
)

// ErrInterrupted is returned when a run stops being runnable between stages
// (paused, terminated, or removed). The run keeps its checkpoints.
var ErrInterrupted = errors.New("pipeline: run interrupted")

// RunStore is the run persistence the runner needs. *queue.Store satisfies it.
type RunStore interface {
	GetByID(ctx context.Context, id string) (*queue.Run, error)
	LoadAudio(ctx context.Context, id string) ([]byte, error)
	Checkpoints(ctx context.Context, runID string) ([]queue.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, runID, stage string, seq int, ok bool, result []byte) (bool, error)
	Complete(ctx context.Context, id string, output []byte) error
	Fail(ctx context.Context, id, message string, output []byte) error
}

// SessionStore is the session access the runner needs. *session.Store satisfies it.
type SessionStore interface {
	Initialize(ctx context.Context, userID string) (*session.Session, error)
	EscalationContext(ctx context.Context, userID, song string) (session.EscalationContext, error)
	RecordAttempt(ctx context.Context, userID string, attempt session.Attempt) (*session.Session, session.RoastEntry, error)
}

// Runner executes pipeline runs.
type Runner struct {
	runs         RunStore
	sessions     SessionStore
	adapters     inference.Adapters
	logger       *slog.Logger
	stageTimeout time.Duration
	now          func() time.Time
	pick         func(int) int
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStageTimeout bounds each adapter call. Zero disables the bound.
func WithStageTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.stageTimeout = d
	}
}

// WithClock overrides the time source used for processing time.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithFallbackPicker overrides how a fallback roast is chosen; pick receives
// the pool size and returns an index.
func WithFallbackPicker(pick func(int) int) Option {
	return func(r *Runner) {
		if pick != nil {
			r.pick = pick
		}
	}
}

// NewRunner constructs a runner.
func NewRunner(runs RunStore, sessions SessionStore, adapters inference.Adapters, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		runs:     runs,
		sessions: sessions,
		adapters: adapters,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		now:      time.Now,
		pick:     randomPick,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// execution is the per-run state threaded through the stages.
type execution struct {
	runner      *Runner
	run         *queue.Run
	logger      *slog.Logger
	checkpoints map[string]queue.Checkpoint
}

// Execute runs every stage of run that has no checkpoint yet and stores the
// joined output. run must already be claimed (status running).
//
// A fatal stage failure marks the run errored and is returned. Context
// cancellation and ErrInterrupted leave the run as is so it can be resumed.
func (r *Runner) Execute(ctx context.Context, run *queue.Run) (Output, error) {
	if run == nil {
		return Output{}, errors.New("pipeline: run is required")
	}
	ctx = services.WithRunID(ctx, run.ID)
	ctx = services.WithUserID(ctx, run.UserID)
	logger := logging.WithContext(ctx, r.logger)

	exec := &execution{runner: r, run: run, logger: logger}
	if err := exec.loadCheckpoints(ctx); err != nil {
		return Output{}, err
	}

	output, err := exec.stages(ctx)
	if err != nil {
		return Output{}, exec.finishWithError(ctx, err)
	}

	payload, err := json.Marshal(output)
	if err != nil {
		return Output{}, exec.finishWithError(ctx, fmt.Errorf("encode output: %w", err))
	}
	if err := r.runs.Complete(ctx, run.ID, payload); err != nil {
		if errors.Is(err, queue.ErrInvalidTransition) {
			return Output{}, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		return Output{}, fmt.Errorf("complete run: %w", err)
	}
	logger.Info(
		"run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Bool("success", output.Success),
		logging.String("detected_song", output.Analysis.DetectedSong),
		logging.Int64("processing_time_ms", output.ProcessingTimeMs),
	)
	return output, nil
}

func (e *execution) stages(ctx context.Context) (Output, error) {
	r := e.runner

	if _, err := step(ctx, e, StageInitSession, e.initSession); err != nil {
		return Output{}, err
	}
	transcription, err := step(ctx, e, StageTranscribe, e.transcribe)
	if err != nil {
		return Output{}, err
	}
	analysis, err := step(ctx, e, StageIdentifySong, func(ctx context.Context) (AnalysisResult, bool, error) {
		return e.identify(ctx, transcription)
	})
	if err != nil {
		return Output{}, err
	}
	roast, err := step(ctx, e, StageGenerateCommentary, func(ctx context.Context) (CommentaryResult, bool, error) {
		return e.commentary(ctx, analysis)
	})
	if err != nil {
		return Output{}, err
	}
	stats, err := step(ctx, e, StageRecordAttempt, func(ctx context.Context) (*session.Session, bool, error) {
		return e.recordAttempt(ctx, transcription, analysis, roast)
	})
	if err != nil {
		return Output{}, err
	}

	started := e.run.CreatedAt
	if e.run.StartedAt != nil {
		started = *e.run.StartedAt
	}
	elapsed := r.now().Sub(started)
	if elapsed < 0 {
		elapsed = 0
	}
	return Output{
		RunID:            e.run.ID,
		SessionID:        e.run.SessionID,
		Transcription:    transcription,
		Analysis:         analysis,
		Roast:            roast,
		UserStats:        stats,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Success:          transcription.Success && analysis.Success && roast.Success,
	}, nil
}

// step executes one stage unless it already has a checkpoint. fn reports the
// stage result, its success flag, and a fatal error.
func step[T any](ctx context.Context, e *execution, stage string, fn func(context.Context) (T, bool, error)) (T, error) {
	var result T
	stageCtx := services.WithStage(ctx, stage)
	logger := logging.WithContext(stageCtx, e.runner.logger)

	if cp, ok := e.checkpoints[stage]; ok {
		if err := json.Unmarshal([]byte(cp.ResultJSON), &result); err != nil {
			return result, services.Wrap(services.ErrState, stage, "decode checkpoint", "", err)
		}
		logger.Info(
			"stage skipped",
			logging.String(logging.FieldEventType, "stage_skipped"),
			logging.String("reason", "checkpoint present"),
			logging.Bool("stage_ok", cp.OK),
		)
		return result, nil
	}

	if err := e.ensureRunnable(ctx); err != nil {
		return result, err
	}

	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	started := time.Now()

	result, ok, err := fn(stageCtx)
	if err != nil {
		return result, err
	}
	// Fallbacks caused by cancellation are discarded. Successful stages are
	// checkpointed regardless, since their side effects may have committed.
	ctxErr := ctx.Err()
	if ctxErr != nil && !ok {
		return result, ctxErr
	}
	saveCtx := context.WithoutCancel(ctx)

	payload, err := json.Marshal(result)
	if err != nil {
		return result, fmt.Errorf("%s: encode checkpoint: %w", stage, err)
	}
	inserted, err := e.runner.runs.SaveCheckpoint(saveCtx, e.run.ID, stage, stageSeq(stage), ok, payload)
	if err != nil {
		return result, err
	}
	if !inserted {
		// Another worker recorded this stage first; its result wins.
		if err := e.loadCheckpoints(saveCtx); err != nil {
			return result, err
		}
		if cp, found := e.checkpoints[stage]; found {
			var stored T
			if err := json.Unmarshal([]byte(cp.ResultJSON), &stored); err != nil {
				return result, services.Wrap(services.ErrState, stage, "decode checkpoint", "", err)
			}
			result = stored
		}
	}

	logger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Bool("stage_ok", ok),
		logging.Duration("stage_duration", time.Since(started)),
	)
	if ctxErr != nil {
		return result, ctxErr
	}
	return result, nil
}

func (e *execution) loadCheckpoints(ctx context.Context) error {
	checkpoints, err := e.runner.runs.Checkpoints(ctx, e.run.ID)
	if err != nil {
		return fmt.Errorf("load checkpoints: %w", err)
	}
	e.checkpoints = make(map[string]queue.Checkpoint, len(checkpoints))
	for _, cp := range checkpoints {
		e.checkpoints[cp.Stage] = cp
	}
	return nil
}

func (e *execution) ensureRunnable(ctx context.Context) error {
	current, err := e.runner.runs.GetByID(ctx, e.run.ID)
	if err != nil {
		return fmt.Errorf("reload run: %w", err)
	}
	if current == nil {
		return fmt.Errorf("%w: run %s removed", ErrInterrupted, e.run.ID)
	}
	if current.Status != queue.StatusRunning {
		return fmt.Errorf("%w: run %s is %s", ErrInterrupted, e.run.ID, current.Status)
	}
	return nil
}

// finishWithError marks the run errored for fatal failures and passes
// interruptions and cancellations through untouched.
func (e *execution) finishWithError(ctx context.Context, err error) error {
	if errors.Is(err, ErrInterrupted) || errors.Is(err, queue.ErrRunNotFound) {
		e.logger.Info(
			"run interrupted",
			logging.String(logging.FieldEventType, "run_interrupted"),
			logging.String("reason", err.Error()),
		)
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return err
	}

	details := services.Details(err)
	message := strings.TrimSpace(details.Message)
	logging.ErrorWithContext(e.logger, "stage failed", "stage_failure",
		logging.String("resolved_status", string(queue.StatusErrored)),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Error(err),
	)
	if failErr := e.runner.runs.Fail(ctx, e.run.ID, message, nil); failErr != nil {
		e.logger.Error("failed to persist run failure", logging.Error(failErr))
	}
	return err
}

func (e *execution) adapterContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.runner.stageTimeout > 0 {
		return context.WithTimeout(ctx, e.runner.stageTimeout)
	}
	return context.WithCancel(ctx)
}
