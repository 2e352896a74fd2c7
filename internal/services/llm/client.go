package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint    = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 15 * time.Second
)

// ErrMissingAPIKey is returned before any request when no key is configured.
var ErrMissingAPIKey = errors.New("llm: api key required")

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	// Temperature and MaxTokens apply to CompleteText; JSON requests always
	// use temperature 0.
	Temperature float64
	MaxTokens   int
}

// Client wraps an OpenRouter-compatible chat completion API. One client
// serves one model.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      backoff
}

// Option customizes the client.
type Option func(*Client)

// WithRetryMaxAttempts overrides the attempt budget (defaults to 5).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retry.attempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.base = baseDelay
		c.retry.max = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.retry.sleep = sleeper
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoint
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		retry:      defaultBackoff(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

// CompleteJSON asks for a JSON object and returns it with code fences and
// surrounding prose removed. A reply without a usable object is retried.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req, err := c.newRequest("llm json", systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	req.Temperature = 0
	req.ResponseFormat = &responseFormat{Type: "json_object"}
	return c.complete(ctx, "llm json", req, JSONPayload)
}

// CompleteText asks for free-form text and returns it trimmed. Temperature
// and the token limit come from the client configuration.
func (c *Client) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req, err := c.newRequest("llm text", systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	req.Temperature = c.cfg.Temperature
	req.MaxTokens = c.cfg.MaxTokens
	return c.complete(ctx, "llm text", req, func(content string) (string, error) {
		return content, nil
	})
}

// HealthCheck issues a fast JSON ping to verify the API key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.CompleteJSON(ctx, "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return fmt.Errorf("llm health: %w", err)
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

func (c *Client) newRequest(op, systemPrompt, userPrompt string) (chatRequest, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case c.cfg.APIKey == "":
		return chatRequest{}, fmt.Errorf("%s: %w", op, ErrMissingAPIKey)
	case systemPrompt == "":
		return chatRequest{}, fmt.Errorf("%s: system prompt required", op)
	case userPrompt == "":
		return chatRequest{}, fmt.Errorf("%s: user prompt required", op)
	}
	return chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}, nil
}

// complete sends req until accept takes the reply or the retry budget runs
// out. accept turns non-empty reply content into the returned value.
func (c *Client) complete(ctx context.Context, op string, req chatRequest, accept func(string) (string, error)) (string, error) {
	var lastErr error
	attempt := 1
	for ; ; attempt++ {
		out, err := c.attempt(ctx, req, accept)
		if err == nil {
			return out, nil
		}
		lastErr = err
		delay, again := c.retry.next(ctx, err, attempt)
		if !again {
			break
		}
		if err := c.retry.wait(ctx, delay); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}
	if attempt > 1 {
		return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempt, lastErr)
	}
	return "", fmt.Errorf("%s: %w", op, lastErr)
}

func (c *Client) attempt(ctx context.Context, req chatRequest, accept func(string) (string, error)) (string, error) {
	rep, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	if rep.Content == "" {
		return "", &EmptyReplyError{FinishReason: rep.FinishReason, Refusal: rep.Refusal, Snippet: snippet(rep.Raw)}
	}
	out, err := accept(rep.Content)
	if err != nil {
		return "", &malformedReplyError{err: err}
	}
	return out, nil
}
