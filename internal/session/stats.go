package session

import (
	"math"
	"time"
)

// NoFavoriteYet is reported as the favorite song before any attempt exists.
const NoFavoriteYet = "None yet"

// Stats is the read projection served to callers.
type Stats struct {
	TotalAttempts      int          `json:"totalAttempts"`
	CurrentStreak      int          `json:"currentStreak"`
	FavoriteVictimSong string       `json:"favoriteVictimSong"`
	Intensity          Intensity    `json:"intensity"`
	RecentRoasts       []RoastEntry `json:"recentRoasts"`
	SongBreakdown      SongCounts   `json:"songBreakdown"`
	AverageAccuracy    int          `json:"averageAccuracy"`
	MemberSince        time.Time    `json:"memberSince,omitzero"`
}

// DefaultStats is the projection for a user without a session.
func DefaultStats() Stats {
	return Stats{
		FavoriteVictimSong: NoFavoriteYet,
		Intensity:          DefaultIntensity,
		RecentRoasts:       []RoastEntry{},
	}
}

// ProjectStats derives stats from s, keeping the last recent entries newest last.
func ProjectStats(s *Session, recent int) Stats {
	if s == nil {
		return DefaultStats()
	}
	stats := Stats{
		TotalAttempts:      s.TotalAttempts,
		CurrentStreak:      s.CurrentStreak,
		FavoriteVictimSong: s.FavoriteVictimSong,
		Intensity:          s.Intensity,
		RecentRoasts:       tail(s.RoastHistory, recent),
		SongBreakdown:      s.SongAttempts.clone(),
		AverageAccuracy:    averageAccuracy(s.RoastHistory),
		MemberSince:        s.CreatedAt,
	}
	if stats.FavoriteVictimSong == "" {
		stats.FavoriteVictimSong = NoFavoriteYet
	}
	if stats.Intensity == "" {
		stats.Intensity = DefaultIntensity
	}
	return stats
}

// EscalationContext is the history view used to tailor commentary.
type EscalationContext struct {
	SongAttempts  int       `json:"songAttempts"`
	TotalAttempts int       `json:"totalAttempts"`
	RecentRoasts  []string  `json:"recentRoasts"`
	Intensity     Intensity `json:"intensity"`
}

// ProjectEscalation derives the escalation context for song from s.
func ProjectEscalation(s *Session, song string, window int) EscalationContext {
	if s == nil {
		return EscalationContext{RecentRoasts: []string{}, Intensity: DefaultIntensity}
	}
	entries := tail(s.RoastHistory, window)
	texts := make([]string, 0, len(entries))
	for _, entry := range entries {
		texts = append(texts, entry.Commentary)
	}
	intensity := s.Intensity
	if intensity == "" {
		intensity = DefaultIntensity
	}
	return EscalationContext{
		SongAttempts:  s.SongAttempts.Count(song),
		TotalAttempts: s.TotalAttempts,
		RecentRoasts:  texts,
		Intensity:     intensity,
	}
}

func tail(entries []RoastEntry, n int) []RoastEntry {
	if n <= 0 || len(entries) == 0 {
		return []RoastEntry{}
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return append([]RoastEntry(nil), entries...)
}

func averageAccuracy(entries []RoastEntry) int {
	if len(entries) == 0 {
		return 0
	}
	sum := 0.0
	for _, entry := range entries {
		sum += entry.Accuracy
	}
	return int(math.Round(sum / float64(len(entries)) * 100))
}
