// Package whisperx runs WhisperX through uvx to transcribe sung audio clips.
//
// TranscribeClip stages the uploaded bytes in a scratch directory, converts
// them to 16kHz mono WAV with ffmpeg, invokes WhisperX with JSON output, and
// joins the segment text. Model, CUDA, VAD method, and language come from
// Config.
package whisperx
