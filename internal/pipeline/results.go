package pipeline

import (
	"time"

	"roastmachine/internal/session"
)

// Sentinel values used when identification cannot run or fails.
const (
	SilentSong         = "Silent Treatment"
	SilentConfidence   = 0.1
	SilentAccuracy     = 0.0
	MysterySong        = "Mysterious Melody"
	MysteryConfidence  = 0.1
	MysteryAccuracy    = 0.1
	StyleAIGenerated   = "ai-generated"
	StyleFallback      = "fallback"
	noTranscriptionMsg = "No transcription available"
)

// InitResult is the checkpoint of the init-session stage.
type InitResult struct {
	UserID    string            `json:"userId"`
	Intensity session.Intensity `json:"intensity"`
	CreatedAt time.Time         `json:"createdAt"`
}

// TranscriptionResult is the checkpoint of the transcribe stage.
type TranscriptionResult struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AnalysisResult is the checkpoint of the identify-song stage.
type AnalysisResult struct {
	DetectedSong string  `json:"detectedSong"`
	Confidence   float64 `json:"confidence"`
	Accuracy     float64 `json:"accuracy"`
	Success      bool    `json:"success"`
	Error        string  `json:"error,omitempty"`
}

// CommentaryResult is the checkpoint of the generate-commentary stage.
type CommentaryResult struct {
	Text      string            `json:"text"`
	Style     string            `json:"style"`
	Intensity session.Intensity `json:"intensity"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
}

// Output is the joined result stored on a complete run. It is serialized once
// and every poll returns the stored bytes.
type Output struct {
	RunID            string              `json:"runId"`
	SessionID        string              `json:"sessionId,omitempty"`
	Transcription    TranscriptionResult `json:"transcription"`
	Analysis         AnalysisResult      `json:"analysis"`
	Roast            CommentaryResult    `json:"roast"`
	UserStats        *session.Session    `json:"userStats"`
	ProcessingTimeMs int64               `json:"processingTimeMs"`
	Success          bool                `json:"success"`
}

func silentAnalysis() AnalysisResult {
	return AnalysisResult{
		DetectedSong: SilentSong,
		Confidence:   SilentConfidence,
		Accuracy:     SilentAccuracy,
		Error:        noTranscriptionMsg,
	}
}

func mysteryAnalysis(err error) AnalysisResult {
	return AnalysisResult{
		DetectedSong: MysterySong,
		Confidence:   MysteryConfidence,
		Accuracy:     MysteryAccuracy,
		Error:        errorText(err),
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
