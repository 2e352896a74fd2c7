package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"roastmachine/internal/config"
)

const userAgent = "RoastMachine-Go/0.1.0"

// Event names a notification trigger.
type Event string

const (
	EventRunErrored   Event = "run_errored"
	EventRunCompleted Event = "run_completed"
	EventTest         Event = "test"
)

// Payload carries event fields. Values are formatted with %v.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventRunErrored:   cfg.Notifications.RunErrors,
			EventRunCompleted: cfg.Notifications.RunCompleted,
			EventTest:         true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunErrored:
		var b strings.Builder
		b.WriteString("❌ Run failed")
		if user := payload.text("userId"); user != "" {
			b.WriteString(" for ")
			b.WriteString(user)
		}
		if stage := payload.text("stage"); stage != "" {
			b.WriteString(" at ")
			b.WriteString(stage)
		}
		b.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "Roast Machine - Error",
			body:     b.String(),
			tags:     []string{"roastmachine", "error", "alert"},
			priority: "high",
		}, true
	case EventRunCompleted:
		song := payload.text("song")
		if song == "" {
			song = "an unknown song"
		}
		body := fmt.Sprintf("🎤 %s roasted for %s", fallbackText(payload.text("userId"), "Someone"), song)
		if roast := payload.text("roast"); roast != "" {
			body += "\n" + roast
		}
		return message{
			title: "Roast Machine - Roast Served",
			body:  body,
			tags:  []string{"roastmachine", "run", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "Roast Machine - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"roastmachine", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	if err, ok := value.(error); ok {
		return strings.TrimSpace(err.Error())
	}
	return strings.TrimSpace(fmt.Sprintf("%v", value))
}

func fallbackText(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
