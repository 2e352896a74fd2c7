package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrEmptyTranscript is returned when WhisperX ran but produced no text.
var ErrEmptyTranscript = errors.New("whisperx: empty transcript")

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Service provides WhisperX transcription capabilities.
type Service struct {
	cfg           Config
	ffmpegBinary  string
	uvxBinary     string
	commandRunner CommandRunner
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config, ffmpegBinary, uvxBinary string) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = FFmpegCommand
	}
	if uvxBinary == "" {
		uvxBinary = UVXCommand
	}
	return &Service{
		cfg:          cfg,
		ffmpegBinary: ffmpegBinary,
		uvxBinary:    uvxBinary,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// CUDAEnabled returns whether CUDA is enabled.
func (s *Service) CUDAEnabled() bool {
	return s.cfg.CUDAEnabled
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// TranscribeResult contains the result of a transcription.
type TranscribeResult struct {
	Text     string
	Segments []Segment
}

// TranscribeClip writes data to a scratch directory under workDir, converts
// it to WAV, runs WhisperX, and returns the joined segment text. ext is the
// clip's file extension without the dot. The scratch directory is removed
// before returning.
func (s *Service) TranscribeClip(ctx context.Context, data []byte, ext, workDir string) (TranscribeResult, error) {
	var result TranscribeResult
	if len(data) == 0 {
		return result, errors.New("transcribe: empty audio")
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return result, fmt.Errorf("transcribe: ensure workDir: %w", err)
	}
	scratch, err := os.MkdirTemp(workDir, "clip-")
	if err != nil {
		return result, fmt.Errorf("transcribe: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "bin"
	}
	source := filepath.Join(scratch, "clip."+ext)
	if err := os.WriteFile(source, data, 0o644); err != nil {
		return result, fmt.Errorf("transcribe: write clip: %w", err)
	}

	wavPath := filepath.Join(scratch, "clip_16k.wav")
	if err := s.run(ctx, s.ffmpegBinary, buildFFmpegArgs(source, wavPath)...); err != nil {
		return result, fmt.Errorf("transcribe: extract: %w", err)
	}
	return s.TranscribeFile(ctx, wavPath, scratch)
}

// TranscribeFile transcribes a WAV file and returns its text.
// outputDir is where WhisperX will write its output files.
func (s *Service) TranscribeFile(ctx context.Context, source, outputDir string) (TranscribeResult, error) {
	var result TranscribeResult

	if source == "" {
		return result, fmt.Errorf("transcribe: source path required")
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return result, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	if err := s.run(ctx, s.uvxBinary, s.buildArgs(source, outputDir)...); err != nil {
		return result, fmt.Errorf("whisperx: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	segments, err := LoadSegments(filepath.Join(outputDir, baseName+".json"))
	if err != nil {
		return result, fmt.Errorf("whisperx: load output: %w", err)
	}
	result.Segments = segments
	result.Text = joinSegments(segments)
	if result.Text == "" {
		return result, ErrEmptyTranscript
	}
	return result, nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 40)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
		"--best_of", BestOf,
		"--temperature", Temperature,
		"--patience", Patience,
	)

	vadMethod := s.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}

	if lang := isoLanguage(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}

	return args
}

func isoLanguage(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if i := strings.IndexAny(value, "-_"); i > 0 {
		value = value[:i]
	}
	if len(value) != 2 {
		return ""
	}
	return value
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperXPayload struct {
	Segments []Segment `json:"segments"`
}

// LoadSegments loads segments from a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, nil
}

func joinSegments(segments []Segment) string {
	var parts []string
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
