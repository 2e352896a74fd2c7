package inference

import (
	"fmt"
	"math"
	"strings"
)

const (
	identifySystemPrompt   = "You are a song identification expert. Respond only with valid JSON."
	commentarySystemPrompt = "You are a hilarious karaoke roast master. Be savage but fun."
)

var intensityTone = map[string]string{
	"friendly":      "Keep it playful and warm; tease gently and end on encouragement.",
	"medium":        "Be cheeky and sharp without being mean.",
	"savage":        "Hold nothing back on the performance itself, but never attack the person.",
	"gordon-ramsay": "Channel Gordon Ramsay reviewing a disastrous dish: loud, exasperated, theatrical.",
}

func identifyPrompt(text string) string {
	return fmt.Sprintf("Identify this song from lyrics: %q.\n"+
		`Respond with valid JSON: {"detectedSong": "Title by Artist", "confidence": 0.85, "accuracy": 0.72}`,
		strings.TrimSpace(text))
}

func commentaryPrompt(req CommentaryRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a funny, savage but good-natured roast for someone who sang %q with %d%% accuracy.\n",
		req.Song, int(math.Round(Clamp01(req.Accuracy)*100)))
	b.WriteString("Make it witty and entertaining, maximum 2 sentences. Be creative and reference current internet culture.")

	if tone, ok := intensityTone[strings.ToLower(strings.TrimSpace(req.Intensity))]; ok {
		b.WriteString("\nTone: ")
		b.WriteString(tone)
	}

	esc := req.Escalation
	if esc.SongAttempts > 0 {
		fmt.Fprintf(&b, "\nThey have already attempted this song %d time(s) before; call out their persistence.", esc.SongAttempts)
	}
	if esc.TotalAttempts >= 5 {
		fmt.Fprintf(&b, "\nThis is performance number %d this session, so treat them as a regular.", esc.TotalAttempts+1)
	}
	if len(esc.RecentRoasts) > 0 {
		b.WriteString("\nDo not repeat these earlier roasts:")
		for _, roast := range esc.RecentRoasts {
			roast = strings.TrimSpace(roast)
			if roast == "" {
				continue
			}
			b.WriteString("\n- ")
			b.WriteString(roast)
		}
	}
	return b.String()
}
