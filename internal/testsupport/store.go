package testsupport

import (
	"context"
	"testing"

	"roastmachine/internal/config"
	"roastmachine/internal/queue"
	"roastmachine/internal/session"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenSessions opens a session.Store for tests and registers cleanup.
func MustOpenSessions(t testing.TB, cfg *config.Config, opts ...session.Option) *session.Store {
	t.Helper()

	store, err := session.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue creates a queued run for tests using the provided store.
func Enqueue(t testing.TB, store *queue.Store, userID string, audio []byte) *queue.Run {
	t.Helper()

	run, err := store.Enqueue(context.Background(), queue.Input{
		UserID:      userID,
		Intensity:   "medium",
		ContentType: "audio/webm",
		Audio:       audio,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return run
}
