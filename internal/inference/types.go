package inference

import "context"

// Audio is one uploaded clip.
type Audio struct {
	Data        []byte
	ContentType string
}

// SongMatch is the structured result of song identification. Confidence and
// Accuracy are always within [0,1].
type SongMatch struct {
	DetectedSong string
	Confidence   float64
	Accuracy     float64
}

// Escalation summarizes the singer's history for the commentary prompt.
type Escalation struct {
	SongAttempts  int
	TotalAttempts int
	RecentRoasts  []string
}

// CommentaryRequest carries everything the commentary prompt needs.
type CommentaryRequest struct {
	Song       string
	Accuracy   float64
	Intensity  string
	Escalation Escalation
}

// Transcriber converts audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// SongIdentifier guesses the song behind a transcription.
type SongIdentifier interface {
	IdentifySong(ctx context.Context, text string) (SongMatch, error)
}

// CommentaryGenerator writes the roast.
type CommentaryGenerator interface {
	GenerateCommentary(ctx context.Context, req CommentaryRequest) (string, error)
}

// Adapters bundles one implementation of each capability.
type Adapters struct {
	Transcriber Transcriber
	Identifier  SongIdentifier
	Commentator CommentaryGenerator
}
