package api_test

import (
	"errors"
	"testing"

	"roastmachine/internal/api"
	"roastmachine/internal/config"
	"roastmachine/internal/services"
)

func TestUploadPolicy(t *testing.T) {
	policy := api.NewUploadPolicy(config.Default().Ingress)

	accepted := map[string]string{
		"audio/webm":             "audio/webm",
		"audio/webm;codecs=opus": "audio/webm",
		"audio/mpeg":             "audio/mp3",
		"AUDIO/OGG":              "audio/ogg",
		"audio/wav":              "audio/wav",
	}
	for input, want := range accepted {
		got, err := policy.Validate(input, 1024)
		if err != nil {
			t.Fatalf("Validate(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("Validate(%q) = %q, want %q", input, got, want)
		}
	}

	rejected := []struct {
		name        string
		contentType string
		size        int64
	}{
		{"empty", "audio/webm", 0},
		{"oversize", "audio/webm", 10*1024*1024 + 1},
		{"video", "video/mp4", 1024},
		{"text", "text/plain", 1024},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := policy.Validate(tc.contentType, tc.size); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := policy.Validate("audio/webm", 10*1024*1024); err != nil {
		t.Fatalf("exactly the limit should pass: %v", err)
	}
}
