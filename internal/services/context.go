package services

import (
	"context"
	"strings"
)

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	userIDKey    contextKey = "user_id"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithRunID stamps a pipeline run identifier on the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// RunIDFromContext returns the run identifier, if any.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runIDKey)
}

// WithUserID stamps the session key on the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return withString(ctx, userIDKey, id)
}

// UserIDFromContext returns the session key, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, userIDKey)
}

// WithStage stamps the pipeline stage name on the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name, if any.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithRequestID stamps a correlation identifier on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the correlation identifier, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(key).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
