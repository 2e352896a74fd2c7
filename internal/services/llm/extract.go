package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// JSONPayload returns the JSON object carried by a model reply. Replies are
// accepted bare, inside a Markdown code fence, or embedded in prose; the
// first balanced object wins when the reply itself is not valid JSON.
func JSONPayload(content string) (string, error) {
	body := stripCodeFence(content)
	if body == "" {
		return "", errors.New("no json object in reply")
	}
	if strings.HasPrefix(body, "{") && json.Valid([]byte(body)) {
		return body, nil
	}
	fragment, ok := extractJSONObject(body)
	if !ok || !json.Valid([]byte(fragment)) {
		return "", errors.New("no json object in reply: " + snippet([]byte(body)))
	}
	return fragment, nil
}

func stripCodeFence(content string) string {
	body := strings.TrimSpace(content)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimLeft(body[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// extractJSONObject returns the first balanced {...} fragment in content.
// Braces inside JSON string literals are ignored, so prose such as
// `Sure! {"detectedSong": "A {live} take"} hope that helps` yields the object.
func extractJSONObject(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	for start >= 0 {
		if end, ok := matchBrace(content, start); ok {
			return content[start : end+1], true
		}
		next := strings.IndexByte(content[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(content string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
