package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func respondWith(t *testing.T, w http.ResponseWriter, choice map[string]any) {
	t.Helper()
	payload := map[string]any{"choices": []any{choice}}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		respondWith(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWith(t, w, map[string]any{"message": map[string]any{"content": "```json\n{\"ok\":true}\n```"}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail")
	}
}

func TestCompleteJSONSendsHeadersAndFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "Roast Machine" {
			t.Errorf("unexpected title header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "demo-model" || req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" || req.Temperature != 0 {
			t.Errorf("unexpected request %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		respondWith(t, w, map[string]any{"message": map[string]any{"content": "Here it is:\n```json\n{\"detectedSong\":\"Toxic by Britney Spears\"}\n```"}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model", Title: "Roast Machine", Temperature: 0.9})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if content != `{"detectedSong":"Toxic by Britney Spears"}` {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestCompleteTextUsesConfiguredTemperature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Temperature != 0.9 || req.MaxTokens != 150 || req.ResponseFormat != nil {
			t.Errorf("unexpected request %+v", req)
		}
		respondWith(t, w, map[string]any{"message": map[string]any{"content": "  That was bold.  "}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo", Temperature: 0.9, MaxTokens: 150})
	text, err := client.CompleteText(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteText returned error: %v", err)
	}
	if text != "That was bold." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestCompleteRequiresKeyAndPrompts(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	if _, err := client.CompleteText(context.Background(), "system", "user"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	keyed := NewClient(Config{APIKey: "k"})
	if _, err := keyed.CompleteJSON(context.Background(), "", "user"); err == nil {
		t.Fatal("expected system prompt error")
	}
	if keyed.Model() != "" {
		t.Fatalf("unexpected model %q", keyed.Model())
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWith(t, w, map[string]any{"finish_reason": "stop", "message": map[string]any{"content": ""}})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	var empty *EmptyReplyError
	if !errors.As(err, &empty) || empty.FinishReason != "stop" || !strings.Contains(empty.Snippet, "choices") {
		t.Fatalf("expected EmptyReplyError with snippet, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed after 5 attempts") {
		t.Fatalf("expected retry budget in error, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		respondWith(t, w, map[string]any{"message": map[string]any{"content": "ok"}})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.CompleteText(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteText returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.CompleteText(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = `{"detectedSong":"Hello by Adele"}`
		}
		respondWith(t, w, map[string]any{"finish_reason": "stop", "message": map[string]any{"content": content}})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestExtractJSONObjectSkipsStringBraces(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"prose", `Sure! {"detectedSong": "A {live} take", "n": {"x": 1}} hope that helps {"b":2}`, `{"detectedSong": "A {live} take", "n": {"x": 1}}`, true},
		{"escaped quote", `x {"s":"say \"}\" now"} y`, `{"s":"say \"}\" now"}`, true},
		{"unbalanced then valid", `{ oops { "a": 1 }`, `{ "a": 1 }`, true},
		{"none", `no json here`, "", false},
		{"open only", `{"a": 1`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractJSONObject(tc.input)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("extractJSONObject(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
			}
		})
	}
}


func TestCompleteJSONRetriesMalformedReply(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := "I think it was Toxic?"
		if calls == 2 {
			content = `{"detectedSong":"Toxic by Britney Spears"}`
		}
		respondWith(t, w, map[string]any{"message": map[string]any{"content": content}})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(time.Duration) {}),
	)
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if calls != 2 || !strings.Contains(content, "Toxic") {
		t.Fatalf("calls=%d content=%q", calls, content)
	}
}

func TestUnauthorizedIsFinal(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL}, WithSleeper(func(time.Duration) {}))
	_, err := client.CompleteText(context.Background(), "system", "user")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || !statusErr.Unauthorized() {
		t.Fatalf("expected unauthorized StatusError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := backoff{attempts: 6, base: time.Second, max: 5 * time.Second}
	ctx := context.Background()
	retry := &StatusError{Code: http.StatusBadGateway}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, expected := range want {
		delay, again := b.next(ctx, retry, i+1)
		if !again || delay != expected {
			t.Fatalf("attempt %d: got %v %v, want %v", i+1, delay, again, expected)
		}
	}
	if _, again := b.next(ctx, retry, 6); again {
		t.Fatal("expected budget to be exhausted")
	}
	if delay, _ := b.next(ctx, &StatusError{Code: http.StatusTooManyRequests, RetryAfter: time.Minute}, 1); delay != 5*time.Second {
		t.Fatalf("Retry-After should be capped, got %v", delay)
	}
	if _, again := b.next(ctx, &StatusError{Code: http.StatusBadRequest}, 1); again {
		t.Fatal("client errors should not retry")
	}
}

func TestJSONPayload(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"bare", `{"ok":true}`, `{"ok":true}`},
		{"fenced", "```json\n{\"ok\":true}\n```", `{"ok":true}`},
		{"fence without tag", "```\n{\"ok\":true}\n```", `{"ok":true}`},
		{"prose", `Result: {"ok":true} cheers`, `{"ok":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := JSONPayload(tc.input)
			if err != nil || got != tc.want {
				t.Fatalf("JSONPayload(%q) = %q, %v", tc.input, got, err)
			}
		})
	}
	for _, bad := range []string{"", "   ", "no braces", "```json\n```", "{ not json }"} {
		if _, err := JSONPayload(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
