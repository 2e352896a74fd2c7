package inference

import (
	"context"
	"errors"
	"mime"
	"strings"

	"roastmachine/internal/services/whisperx"
)

var extensionsByType = map[string]string{
	"audio/webm":  "webm",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
	"audio/mp3":   "mp3",
	"audio/mpeg":  "mp3",
	"audio/ogg":   "ogg",
}

// ClipTranscriber is the WhisperX operation the transcriber depends on.
type ClipTranscriber interface {
	TranscribeClip(ctx context.Context, data []byte, ext, workDir string) (whisperx.TranscribeResult, error)
}

// WhisperTranscriber transcribes clips with WhisperX in a scratch directory
// under workDir.
type WhisperTranscriber struct {
	service ClipTranscriber
	workDir string
}

// NewWhisperTranscriber wraps service.
func NewWhisperTranscriber(service ClipTranscriber, workDir string) *WhisperTranscriber {
	return &WhisperTranscriber{service: service, workDir: workDir}
}

// Transcribe returns the recognized text. Silence is not an error: WhisperX
// running cleanly without recognizing speech yields "".
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if w == nil || w.service == nil {
		return "", upstream("transcribe", "transcriber not configured", nil)
	}
	if len(audio.Data) == 0 {
		return "", upstream("transcribe", "audio is empty", nil)
	}
	result, err := w.service.TranscribeClip(ctx, audio.Data, ExtensionFor(audio.ContentType), w.workDir)
	if err != nil {
		if errors.Is(err, whisperx.ErrEmptyTranscript) {
			return "", nil
		}
		return "", upstream("transcribe", "whisperx failed", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// ExtensionFor maps an upload content type to the file extension ffmpeg sees.
// Unknown types map to "bin" and let ffmpeg probe the container.
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if ext, ok := extensionsByType[mediaType]; ok {
		return ext
	}
	return "bin"
}
