package inference_test

import (
	"errors"
	"testing"

	"roastmachine/internal/inference"
	"roastmachine/internal/services"
)

func TestParseSongMatch(t *testing.T) {
	cases := []struct {
		name       string
		raw        string
		song       string
		confidence float64
		accuracy   float64
	}{
		{
			name:       "plain json",
			raw:        `{"detectedSong": "Bohemian Rhapsody by Queen", "confidence": 0.9, "accuracy": 0.8}`,
			song:       "Bohemian Rhapsody by Queen",
			confidence: 0.9,
			accuracy:   0.8,
		},
		{
			name:       "numbers as strings",
			raw:        `{"detectedSong": "Toxic by Britney Spears", "confidence": "0.75", "accuracy": "0.5"}`,
			song:       "Toxic by Britney Spears",
			confidence: 0.75,
			accuracy:   0.5,
		},
		{
			name:       "wrapped in prose",
			raw:        "Sure! Here you go: {\"detectedSong\": \"Hello by Adele\", \"confidence\": 0.6, \"accuracy\": 0.4} Enjoy.",
			song:       "Hello by Adele",
			confidence: 0.6,
			accuracy:   0.4,
		},
		{
			name:       "code fence",
			raw:        "```json\n{\"detectedSong\": \"Africa by Toto\", \"confidence\": 0.7, \"accuracy\": 0.3}\n```",
			song:       "Africa by Toto",
			confidence: 0.7,
			accuracy:   0.3,
		},
		{
			name:       "bare fence around prose",
			raw:        "```\nMy guess: {\"detectedSong\": \"Yellow by Coldplay\", \"confidence\": 0.55, \"accuracy\": 0.2}\n```",
			song:       "Yellow by Coldplay",
			confidence: 0.55,
			accuracy:   0.2,
		},
		{
			name:       "clamped",
			raw:        `{"detectedSong": "  Wonderwall   by Oasis ", "confidence": 1.7, "accuracy": -0.2}`,
			song:       "Wonderwall by Oasis",
			confidence: 1,
			accuracy:   0,
		},
		{
			name:       "nfc normalized",
			raw:        `{"detectedSong": "Cafe\u0301 Song", "confidence": 0.5, "accuracy": 0.5}`,
			song:       "Caf\u00e9 Song",
			confidence: 0.5,
			accuracy:   0.5,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			match, err := inference.ParseSongMatch(tc.raw)
			if err != nil {
				t.Fatalf("ParseSongMatch returned error: %v", err)
			}
			if match.DetectedSong != tc.song {
				t.Fatalf("song = %q, want %q", match.DetectedSong, tc.song)
			}
			if match.Confidence != tc.confidence || match.Accuracy != tc.accuracy {
				t.Fatalf("got confidence=%v accuracy=%v, want %v %v", match.Confidence, match.Accuracy, tc.confidence, tc.accuracy)
			}
		})
	}
}

func TestParseSongMatchRejects(t *testing.T) {
	cases := map[string]string{
		"empty":           "   ",
		"no json":         "I have no idea what that was.",
		"missing field":   `{"detectedSong": "Hello by Adele", "confidence": 0.6}`,
		"blank song":      `{"detectedSong": "   ", "confidence": 0.6, "accuracy": 0.4}`,
		"non numeric":     `{"detectedSong": "Hello by Adele", "confidence": "high", "accuracy": 0.4}`,
		"wrong type":      `{"detectedSong": 42, "confidence": 0.6, "accuracy": 0.4}`,
		"unbalanced":      `{"detectedSong": "Hello by Adele", "confidence": 0.6`,
		"embedded broken": `Answer: {"detectedSong": true} done`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := inference.ParseSongMatch(raw)
			if err == nil {
				t.Fatalf("expected error for %q", raw)
			}
			if !errors.Is(err, services.ErrUpstream) {
				t.Fatalf("expected upstream error, got %v", err)
			}
		})
	}
}

func TestClamp01(t *testing.T) {
	if inference.Clamp01(-1) != 0 || inference.Clamp01(2) != 1 || inference.Clamp01(0.25) != 0.25 {
		t.Fatal("unexpected clamp result")
	}
}
