package session

import (
	"fmt"
	"strings"
	"time"

	"roastmachine/internal/services"
)

// Intensity is the commentary harshness preference stored per session.
type Intensity string

const (
	IntensityFriendly     Intensity = "friendly"
	IntensityMedium       Intensity = "medium"
	IntensitySavage       Intensity = "savage"
	IntensityGordonRamsay Intensity = "gordon-ramsay"
)

// DefaultIntensity applies to new sessions and to stats for unknown users.
const DefaultIntensity = IntensityMedium

var intensities = []Intensity{IntensityFriendly, IntensityMedium, IntensitySavage, IntensityGordonRamsay}

// Intensities lists the accepted values in increasing harshness.
func Intensities() []Intensity {
	return append([]Intensity(nil), intensities...)
}

// Valid reports whether i is one of the four accepted values.
func (i Intensity) Valid() bool {
	for _, candidate := range intensities {
		if i == candidate {
			return true
		}
	}
	return false
}

// ParseIntensity normalizes case and whitespace and rejects unknown values.
func ParseIntensity(value string) (Intensity, error) {
	candidate := Intensity(strings.ToLower(strings.TrimSpace(value)))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", services.Wrap(services.ErrValidation, "session", "parse intensity",
		fmt.Sprintf("intensity %q must be one of friendly, medium, savage, gordon-ramsay", value), nil)
}

// ErrSessionNotInitialized is returned by mutations on a key that has no session.
var ErrSessionNotInitialized = fmt.Errorf("%w: session not initialized", services.ErrState)

// RoastEntry is one recorded attempt. Entries are never modified after creation.
type RoastEntry struct {
	ID            string    `json:"id"`
	Song          string    `json:"song"`
	Accuracy      float64   `json:"accuracy"`
	Confidence    float64   `json:"confidence"`
	Commentary    string    `json:"roast"`
	Style         string    `json:"style"`
	Timestamp     time.Time `json:"timestamp"`
	Intensity     Intensity `json:"intensity"`
	Transcription string    `json:"transcription"`
}

// Session is the durable per-user record.
type Session struct {
	UserID             string       `json:"userId"`
	TotalAttempts      int          `json:"totalAttempts"`
	SongAttempts       SongCounts   `json:"songAttempts"`
	RoastHistory       []RoastEntry `json:"roastHistory"`
	CurrentStreak      int          `json:"currentStreak"`
	Intensity          Intensity    `json:"intensity"`
	LastAttemptTime    time.Time    `json:"lastAttemptTime,omitzero"`
	CreatedAt          time.Time    `json:"createdAt"`
	FavoriteVictimSong string       `json:"favoriteVictimSong"`
}

// Clone returns a deep copy so callers never share slices or maps with the store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.SongAttempts = s.SongAttempts.clone()
	out.RoastHistory = append([]RoastEntry{}, s.RoastHistory...)
	return &out
}

// Attempt carries the fields recorded for one completed pipeline run.
type Attempt struct {
	Song          string
	Accuracy      float64
	Confidence    float64
	Commentary    string
	Style         string
	Intensity     Intensity
	Transcription string
}

// Summary is the listing view of a session used by the admin CLI.
type Summary struct {
	UserID             string
	Intensity          Intensity
	TotalAttempts      int
	CurrentStreak      int
	FavoriteVictimSong string
	LastAttemptTime    *time.Time
	CreatedAt          time.Time
}
