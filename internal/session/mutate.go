package session

import (
	"math"
	"time"
)

// Policy bounds history size and defines the streak window.
type Policy struct {
	HistoryLimit int
	StreakWindow time.Duration
}

// DefaultPolicy keeps 50 entries and counts attempts within an hour as a streak.
func DefaultPolicy() Policy {
	return Policy{HistoryLimit: 50, StreakWindow: time.Hour}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = def.HistoryLimit
	}
	if p.StreakWindow <= 0 {
		p.StreakWindow = def.StreakWindow
	}
	return p
}

func newSession(userID string, now time.Time) *Session {
	return &Session{
		UserID:       userID,
		Intensity:    DefaultIntensity,
		RoastHistory: []RoastEntry{},
		CreatedAt:    now,
	}
}

// applyAttempt folds entry into s. The streak compares against the
// lastAttemptTime recorded before this attempt; the first attempt starts at 1.
func applyAttempt(s *Session, entry RoastEntry, p Policy) {
	previous := s.LastAttemptTime

	s.TotalAttempts++
	s.SongAttempts.Add(entry.Song)

	s.RoastHistory = append(s.RoastHistory, entry)
	if over := len(s.RoastHistory) - p.HistoryLimit; over > 0 {
		s.RoastHistory = append([]RoastEntry(nil), s.RoastHistory[over:]...)
	}

	if !previous.IsZero() && entry.Timestamp.Sub(previous) < p.StreakWindow {
		s.CurrentStreak++
	} else {
		s.CurrentStreak = 1
	}
	s.LastAttemptTime = entry.Timestamp
	s.FavoriteVictimSong = s.SongAttempts.Favorite()
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
