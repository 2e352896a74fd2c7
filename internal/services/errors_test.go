package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"roastmachine/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrUpstream, "identify-song", "complete", "llm call failed", base)
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"identify-song", "complete", "llm call failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want services.ErrorKind
	}{
		{nil, ""},
		{errors.New("plain"), services.KindInternal},
		{services.Wrap(services.ErrValidation, "ingress", "upload", "too large", nil), services.KindValidation},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrState, "record-attempt", "", "", errors.New("disk"))), services.KindState},
		{services.Wrap(services.ErrTimeout, "await", "", "", nil), services.KindTimeout},
	}
	for _, tc := range cases {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestDetailsCarriesHint(t *testing.T) {
	details := services.Details(services.Wrap(services.ErrState, "init-session", "", "store unavailable", nil))
	if details.Kind != services.KindState {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Hint == "" || details.Message == "" {
		t.Fatalf("expected hint and message, got %+v", details)
	}
	if (services.Details(nil) != services.ErrorDetails{}) {
		t.Fatal("expected zero details for nil error")
	}
}
