package whisperx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExtractClip converts a submitted clip (webm, ogg, mp3, wav) into a mono
// 16kHz WAV file suitable for WhisperX.
func ExtractClip(ctx context.Context, ffmpegBinary, source, dest string) error {
	cmd := exec.CommandContext(ctx, ffmpegBinary, buildFFmpegArgs(source, dest)...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func buildFFmpegArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}
