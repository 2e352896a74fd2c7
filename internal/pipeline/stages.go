package pipeline

// Stage names in execution order. They double as checkpoint keys.
const (
	StageInitSession        = "init-session"
	StageTranscribe         = "transcribe"
	StageIdentifySong       = "identify-song"
	StageGenerateCommentary = "generate-commentary"
	StageRecordAttempt      = "record-attempt"
)

var stageOrder = []string{
	StageInitSession,
	StageTranscribe,
	StageIdentifySong,
	StageGenerateCommentary,
	StageRecordAttempt,
}

// Stages returns the stage names in execution order.
func Stages() []string {
	return append([]string(nil), stageOrder...)
}

func stageSeq(stage string) int {
	for i, name := range stageOrder {
		if name == stage {
			return i + 1
		}
	}
	return 0
}
