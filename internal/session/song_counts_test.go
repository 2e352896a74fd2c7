package session_test

import (
	"encoding/json"
	"testing"

	"roastmachine/internal/session"
)

func TestSongCountsJSONKeepsFirstAttemptOrder(t *testing.T) {
	var counts session.SongCounts
	counts.Add("Zebra")
	counts.Add("Apple")
	counts.Add("Mango")
	counts.Add("Apple")

	data, err := json.Marshal(counts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"Zebra":1,"Apple":2,"Mango":1}` {
		t.Fatalf("unexpected json %s", data)
	}

	var decoded session.SongCounts
	if err := json.Unmarshal([]byte(`{"Mango":3,"Zebra":3,"Apple":1}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Favorite() != "Mango" {
		t.Fatalf("expected tie to go to first key, got %q", decoded.Favorite())
	}
	if decoded.Total() != 7 || decoded.Len() != 3 {
		t.Fatalf("unexpected decoded counts %v", decoded.Map())
	}
}

func TestSongCountsEmpty(t *testing.T) {
	var counts session.SongCounts
	if counts.Favorite() != "" {
		t.Fatalf("expected no favorite, got %q", counts.Favorite())
	}
	data, err := json.Marshal(counts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("expected empty object, got %s", data)
	}
	if err := json.Unmarshal([]byte("[1]"), &counts); err == nil {
		t.Fatal("expected error for non-object json")
	}
}

func TestParseIntensity(t *testing.T) {
	got, err := session.ParseIntensity("  Gordon-Ramsay ")
	if err != nil || got != session.IntensityGordonRamsay {
		t.Fatalf("ParseIntensity = %q, %v", got, err)
	}
	if _, err := session.ParseIntensity("mild"); err == nil {
		t.Fatal("expected error for unknown intensity")
	}
}
