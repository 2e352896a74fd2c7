package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// reply is the first usable choice of a completion.
type reply struct {
	Content      string
	FinishReason string
	Refusal      string
	Raw          []byte
}

// StatusError is a non-2xx answer from the completion endpoint.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// Unauthorized reports whether the endpoint rejected the API key.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

// EmptyReplyError is a successful response that carried no content, usually a
// refusal or a length cutoff.
type EmptyReplyError struct {
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *EmptyReplyError) Error() string {
	return fmt.Sprintf("empty reply (finish_reason=%q, refusal=%q): %s", e.FinishReason, e.Refusal, e.Snippet)
}

type malformedReplyError struct {
	err error
}

func (e *malformedReplyError) Error() string { return "malformed reply: " + e.err.Error() }
func (e *malformedReplyError) Unwrap() error { return e.err }

// send performs one HTTP round trip.
func (c *Client) send(ctx context.Context, payload chatRequest) (reply, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return reply{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return reply{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return reply{}, fmt.Errorf("post (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return reply{}, &StatusError{
			Code:       resp.StatusCode,
			Body:       snippet(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return reply{}, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return reply{}, fmt.Errorf("api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	rep := reply{Raw: body}
	for _, choice := range decoded.Choices {
		if rep.FinishReason == "" {
			rep.FinishReason = choice.FinishReason
		}
		if rep.Refusal == "" {
			rep.Refusal = strings.TrimSpace(choice.Message.Refusal)
		}
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			rep.Content = content
			break
		}
	}
	return rep, nil
}

// snippet flattens body to one line of at most 160 runes for error messages.
func snippet(body []byte) string {
	clean := strings.Join(strings.Fields(string(body)), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
