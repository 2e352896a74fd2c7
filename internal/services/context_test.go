package services_test

import (
	"context"
	"testing"

	"roastmachine/internal/services"
)

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithUserID(ctx, "user-1")
	ctx = services.WithStage(ctx, "transcribe")
	ctx = services.WithRequestID(ctx, "req-1")

	if got, ok := services.RunIDFromContext(ctx); !ok || got != "run-1" {
		t.Fatalf("unexpected run id %q ok=%v", got, ok)
	}
	if got, ok := services.UserIDFromContext(ctx); !ok || got != "user-1" {
		t.Fatalf("unexpected user id %q ok=%v", got, ok)
	}
	if got, ok := services.StageFromContext(ctx); !ok || got != "transcribe" {
		t.Fatalf("unexpected stage %q ok=%v", got, ok)
	}
	if got, ok := services.RequestIDFromContext(ctx); !ok || got != "req-1" {
		t.Fatalf("unexpected request id %q ok=%v", got, ok)
	}
}

func TestContextHelpersIgnoreBlankValues(t *testing.T) {
	ctx := services.WithRunID(context.Background(), "  ")
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected blank run id to be ignored")
	}
	if _, ok := services.StageFromContext(context.Background()); ok {
		t.Fatal("expected no stage on empty context")
	}
}
