// Package daemonrun assembles the roast daemon process: logging, stores,
// adapters, the pipeline runner, the workflow manager and the HTTP daemon.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"roastmachine/internal/config"
	"roastmachine/internal/daemon"
	"roastmachine/internal/inference"
	"roastmachine/internal/logging"
	"roastmachine/internal/notifications"
	"roastmachine/internal/pipeline"
	"roastmachine/internal/queue"
	"roastmachine/internal/session"
	"roastmachine/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the roast daemon and blocks until SIGINT, SIGTERM or cmdCtx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("roast-%s.log", stamp))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    logPath,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update roast.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "roast-*.log", Exclude: []string{logPath}},
	)
	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "roast.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	runs, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	sessions, err := session.Open(cfg)
	if err != nil {
		runs.Close()
		logger.Error("open session store", logging.Error(err))
		return err
	}

	runner := pipeline.NewRunner(runs, sessions, inference.NewAdapters(cfg), logger,
		pipeline.WithStageTimeout(time.Duration(cfg.Pipeline.StageTimeoutSeconds)*time.Second))
	manager := workflow.NewManagerWithNotifier(cfg, runs, runner, logger, notifications.NewService(cfg))

	d, err := daemon.New(cfg, runs, sessions, manager, logger)
	if err != nil {
		runs.Close()
		sessions.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that no other roast daemon holds the lock and the API bind address is free"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("roast daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "roast.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := cfg.FFmpegBinary()
	uvx := cfg.UVXBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("identify_model", cfg.IdentifyModel()),
		logging.String("commentary_model", cfg.CommentaryModel()),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("uvx_available", binaryAvailable(uvx)),
		logging.String("uvx_binary", uvx),
		logging.Bool("whisperx_cuda", cfg.Transcription.CUDAEnabled),
		logging.String("whisperx_model", cfg.Transcription.Model),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
