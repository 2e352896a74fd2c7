package inference

import (
	"context"
	"strings"
)

// ChatCompleter is the subset of the LLM client used by the adapters.
// *llm.Client satisfies it.
type ChatCompleter interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMSongIdentifier identifies songs with a JSON-mode chat completion.
type LLMSongIdentifier struct {
	client ChatCompleter
}

// NewLLMSongIdentifier wraps client.
func NewLLMSongIdentifier(client ChatCompleter) *LLMSongIdentifier {
	return &LLMSongIdentifier{client: client}
}

// IdentifySong asks the model for a song match and parses its response.
func (i *LLMSongIdentifier) IdentifySong(ctx context.Context, text string) (SongMatch, error) {
	if i == nil || i.client == nil {
		return SongMatch{}, upstream("identify song", "identifier not configured", nil)
	}
	if strings.TrimSpace(text) == "" {
		return SongMatch{}, upstream("identify song", "transcription is blank", nil)
	}
	raw, err := i.client.CompleteJSON(ctx, identifySystemPrompt, identifyPrompt(text))
	if err != nil {
		return SongMatch{}, upstream("identify song", "completion failed", err)
	}
	return ParseSongMatch(raw)
}

// LLMCommentator writes roasts with a free-text chat completion.
type LLMCommentator struct {
	client ChatCompleter
}

// NewLLMCommentator wraps client.
func NewLLMCommentator(client ChatCompleter) *LLMCommentator {
	return &LLMCommentator{client: client}
}

// GenerateCommentary returns the trimmed roast text.
func (c *LLMCommentator) GenerateCommentary(ctx context.Context, req CommentaryRequest) (string, error) {
	if c == nil || c.client == nil {
		return "", upstream("generate commentary", "commentator not configured", nil)
	}
	if strings.TrimSpace(req.Song) == "" {
		return "", upstream("generate commentary", "song is required", nil)
	}
	text, err := c.client.CompleteText(ctx, commentarySystemPrompt, commentaryPrompt(req))
	if err != nil {
		return "", upstream("generate commentary", "completion failed", err)
	}
	text = strings.Trim(strings.TrimSpace(text), `"`)
	if text == "" {
		return "", upstream("generate commentary", "empty commentary", nil)
	}
	return text, nil
}
