package session_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"roastmachine/internal/services"
	"roastmachine/internal/session"
	"roastmachine/internal/sqlitedb"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openStore(t *testing.T, opts ...session.Option) *session.Store {
	t.Helper()
	store, err := session.OpenPath(filepath.Join(t.TempDir(), "sessions.db"), opts...)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func attempt(song string, accuracy float64) session.Attempt {
	return session.Attempt{
		Song:       song,
		Accuracy:   accuracy,
		Confidence: 0.8,
		Commentary: "roast for " + song,
		Style:      "ai-generated",
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	store := openStore(t, session.WithClock(clock.Now))
	ctx := context.Background()

	first, err := store.Initialize(ctx, "user-1")
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if first.Intensity != session.IntensityMedium || first.TotalAttempts != 0 || len(first.RoastHistory) != 0 {
		t.Fatalf("unexpected fresh session: %+v", first)
	}

	if _, _, err := store.RecordAttempt(ctx, "user-1", attempt("Song A", 0.5)); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	clock.Advance(time.Minute)
	again, err := store.Initialize(ctx, "user-1")
	if err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if again.TotalAttempts != 1 {
		t.Fatalf("Initialize must not reset an existing session, got %d attempts", again.TotalAttempts)
	}
	if !again.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("createdAt changed: %s vs %s", again.CreatedAt, first.CreatedAt)
	}
}

func TestRecordAttemptRequiresSession(t *testing.T) {
	store := openStore(t)
	_, _, err := store.RecordAttempt(context.Background(), "ghost", attempt("Song A", 0.5))
	if !errors.Is(err, session.ErrSessionNotInitialized) {
		t.Fatalf("expected ErrSessionNotInitialized, got %v", err)
	}
	if !errors.Is(err, services.ErrState) {
		t.Fatalf("expected state error marker, got %v", err)
	}
	if got, _ := store.GetSession(context.Background(), "ghost"); got != nil {
		t.Fatalf("failed attempt must not create a session: %+v", got)
	}
}

func TestRecordAttemptValidatesInput(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.Initialize(ctx, "   "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank user, got %v", err)
	}
	if _, err := store.Initialize(ctx, "u"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, _, err := store.RecordAttempt(ctx, "u", attempt("  ", 0.5)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank song, got %v", err)
	}
}

func TestRecordAttemptMaintainsCounts(t *testing.T) {
	clock := newFakeClock()
	store := openStore(t, session.WithClock(clock.Now))
	ctx := context.Background()
	if _, err := store.Initialize(ctx, "u"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	songs := []string{"Song A", "Song B", "Song A", "Song C", "Song A"}
	var last *session.Session
	for _, song := range songs {
		clock.Advance(time.Minute)
		s, entry, err := store.RecordAttempt(ctx, "u", attempt(song, 1.7))
		if err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
		if entry.Accuracy != 1 {
			t.Fatalf("accuracy should be clamped to 1, got %v", entry.Accuracy)
		}
		if entry.ID == "" {
			t.Fatal("expected entry id")
		}
		last = s
	}
	if last.TotalAttempts != len(songs) {
		t.Fatalf("total attempts %d, want %d", last.TotalAttempts, len(songs))
	}
	if last.SongAttempts.Total() != last.TotalAttempts {
		t.Fatalf("song counts sum %d != total %d", last.SongAttempts.Total(), last.TotalAttempts)
	}
	if last.SongAttempts.Count("Song A") != 3 {
		t.Fatalf("expected 3 attempts of Song A, got %d", last.SongAttempts.Count("Song A"))
	}
	if last.FavoriteVictimSong != "Song A" {
		t.Fatalf("unexpected favorite %q", last.FavoriteVictimSong)
	}
	if last.CurrentStreak != len(songs) {
		t.Fatalf("expected streak %d, got %d", len(songs), last.CurrentStreak)
	}
	if !last.LastAttemptTime.Equal(clock.Now()) {
		t.Fatalf("lastAttemptTime %s, want %s", last.LastAttemptTime, clock.Now())
	}

	stored, err := store.GetSession(ctx, "u")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got := stored.SongAttempts.Songs(); fmt.Sprint(got) != "[Song A Song B Song C]" {
		t.Fatalf("song order not preserved: %v", got)
	}
}

func TestHistoryEvictsOldestBeyondLimit(t *testing.T) {
	clock := newFakeClock()
	store := openStore(t, session.WithClock(clock.Now))
	ctx := context.Background()
	if _, err := store.Initialize(ctx, "u"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	var last *session.Session
	for i := 1; i <= 51; i++ {
		clock.Advance(time.Second)
		s, _, err := store.RecordAttempt(ctx, "u", attempt(fmt.Sprintf("Song %02d", i), 0.5))
		if err != nil {
			t.Fatalf("RecordAttempt %d failed: %v", i, err)
		}
		last = s
	}
	if len(last.RoastHistory) != 50 {
		t.Fatalf("expected 50 history entries, got %d", len(last.RoastHistory))
	}
	if last.RoastHistory[0].Song != "Song 02" {
		t.Fatalf("expected oldest remaining entry to be attempt #2, got %q", last.RoastHistory[0].Song)
	}
	if last.RoastHistory[49].Song != "Song 51" {
		t.Fatalf("expected newest entry last, got %q", last.RoastHistory[49].Song)
	}
	if last.TotalAttempts != 51 || last.SongAttempts.Total() != 51 {
		t.Fatalf("counts must include evicted attempts: total=%d sum=%d", last.TotalAttempts, last.SongAttempts.Total())
	}
}

func TestFavoriteTieGoesToFirstAttemptedSong(t *testing.T) {
	clock := newFakeClock()
	store := openStore(t, session.WithClock(clock.Now))
	ctx := context.Background()
	if _, err := store.Initialize(ctx, "u"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	for _, song := range []string{"Zebra", "Apple", "Apple", "Zebra"} {
		clock.Advance(time.Second)
		if _, _, err := store.RecordAttempt(ctx, "u", attempt(song, 0.5)); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
	}
	stored, err := store.GetSession(ctx, "u")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if stored.FavoriteVictimSong != "Zebra" {
		t.Fatalf("expected tie to go to Zebra, got %q", stored.FavoriteVictimSong)
	}
}

func TestStreakResetsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	store := openStore(t, session.WithClock(clock.Now))
	ctx := context.Background()
	if _, err := store.Initialize(ctx, "u"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	record := func() int {
		t.Helper()
		s, _, err := store.RecordAttempt(ctx, "u", attempt("Song", 0.5))
		if err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
		return s.CurrentStreak
	}

	if got := record(); got != 1 {
		t.Fatalf("first attempt streak %d, want 1", got)
	}
	clock.Advance(59 * time.Minute)
	if got := record(); got != 2 {
		t.Fatalf("attempt within window streak %d, want 2", got)
	}
	clock.Advance(time.Hour)
	if got := record(); got != 1 {
		t.Fatalf("attempt after exactly one hour streak %d, want 1", got)
	}
	clock.Advance(time.Minute)
	if got := record(); got != 2 {
		t.Fatalf("streak after reset %d, want 2", got)
	}
}

func TestUpdatePreference(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.UpdatePreference(ctx, "u", session.IntensitySavage); !errors.Is(err, session.ErrSessionNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if _, err := store.Initialize(ctx, "u"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, err := store.UpdatePreference(ctx, "u", session.Intensity("nuclear")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	s, err := store.UpdatePreference(ctx, "u", session.IntensityGordonRamsay)
	if err != nil {
		t.Fatalf("UpdatePreference failed: %v", err)
	}
	if s.Intensity != session.IntensityGordonRamsay {
		t.Fatalf("unexpected intensity %q", s.Intensity)
	}
	stats, err := store.GetStats(ctx, "u")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Intensity != session.IntensityGordonRamsay {
		t.Fatalf("stats intensity %q", stats.Intensity)
	}
}

func TestStatsAndEscalationDefaultsForUnknownUser(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	stats, err := store.GetStats(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalAttempts != 0 || stats.CurrentStreak != 0 || stats.FavoriteVictimSong != session.NoFavoriteYet {
		t.Fatalf("unexpected default stats: %+v", stats)
	}
	if stats.Intensity != session.IntensityMedium || len(stats.RecentRoasts) != 0 {
		t.Fatalf("unexpected default stats: %+v", stats)
	}

	esc, err := store.EscalationContext(ctx, "nobody", "Song")
	if err != nil {
		t.Fatalf("EscalationContext failed: %v", err)
	}
	if esc.SongAttempts != 0 || esc.TotalAttempts != 0 || len(esc.RecentRoasts) != 0 || esc.Intensity != session.IntensityMedium {
		t.Fatalf("unexpected default escalation: %+v", esc)
	}
}

func TestStatsProjection(t *testing.T) {
	clock := newFakeClock()
	store := openStore(t, session.WithClock(clock.Now))
	ctx := context.Background()
	if _, err := store.Initialize(ctx, "u"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	accuracies := []float64{0.2, 0.4, 0.6, 0.8, 1.0, 0.5, 0.5}
	for i, acc := range accuracies {
		clock.Advance(time.Minute)
		if _, _, err := store.RecordAttempt(ctx, "u", attempt(fmt.Sprintf("Song %d", i%2), acc)); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
	}

	stats, err := store.GetStats(ctx, "u")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if len(stats.RecentRoasts) != 5 {
		t.Fatalf("expected 5 recent roasts, got %d", len(stats.RecentRoasts))
	}
	if stats.RecentRoasts[4].Accuracy != 0.5 || stats.RecentRoasts[0].Accuracy != 0.6 {
		t.Fatalf("recent roasts out of order: %+v", stats.RecentRoasts)
	}
	if stats.AverageAccuracy != 57 {
		t.Fatalf("expected average accuracy 57, got %d", stats.AverageAccuracy)
	}
	if stats.SongBreakdown.Count("Song 0") != 4 || stats.SongBreakdown.Count("Song 1") != 3 {
		t.Fatalf("unexpected breakdown %v", stats.SongBreakdown.Map())
	}

	esc, err := store.EscalationContext(ctx, "u", "Song 1")
	if err != nil {
		t.Fatalf("EscalationContext failed: %v", err)
	}
	if esc.SongAttempts != 3 || esc.TotalAttempts != 7 {
		t.Fatalf("unexpected escalation counts: %+v", esc)
	}
	if len(esc.RecentRoasts) != 3 || esc.RecentRoasts[2] != "roast for Song 0" {
		t.Fatalf("unexpected escalation roasts: %v", esc.RecentRoasts)
	}
}

func TestResetDeletesSession(t *testing.T) {
	clock := newFakeClock()
	store := openStore(t, session.WithClock(clock.Now))
	ctx := context.Background()
	first, err := store.Initialize(ctx, "u")
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, _, err := store.RecordAttempt(ctx, "u", attempt("Song", 0.5)); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	deleted, err := store.Reset(ctx, "u")
	if err != nil || !deleted {
		t.Fatalf("Reset = %v, %v; want true, nil", deleted, err)
	}
	if deleted, err := store.Reset(ctx, "u"); err != nil || deleted {
		t.Fatalf("second Reset = %v, %v; want false, nil", deleted, err)
	}
	stats, err := store.GetStats(ctx, "u")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalAttempts != 0 {
		t.Fatalf("expected default stats after reset, got %+v", stats)
	}

	clock.Advance(time.Hour)
	again, err := store.Initialize(ctx, "u")
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !again.CreatedAt.After(first.CreatedAt) {
		t.Fatalf("expected new createdAt after reset, got %s (was %s)", again.CreatedAt, first.CreatedAt)
	}
}

func TestConcurrentAttemptsAreSerializedPerUser(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	users := []string{"alice", "bob"}
	for _, user := range users {
		if _, err := store.Initialize(ctx, user); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
	}

	const perUser = 20
	var wg sync.WaitGroup
	errs := make(chan error, perUser*len(users))
	for _, user := range users {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(user string, i int) {
				defer wg.Done()
				if _, _, err := store.RecordAttempt(ctx, user, attempt(fmt.Sprintf("Song %d", i%3), 0.5)); err != nil {
					errs <- err
				}
			}(user, i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	for _, user := range users {
		s, err := store.GetSession(ctx, user)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if s.TotalAttempts != perUser || s.SongAttempts.Total() != perUser || len(s.RoastHistory) != perUser {
			t.Fatalf("%s: lost updates: total=%d sum=%d history=%d", user, s.TotalAttempts, s.SongAttempts.Total(), len(s.RoastHistory))
		}
	}
	if active := store.ActiveKeys(); active != 0 {
		t.Fatalf("expected idle actors to be released, %d remain", active)
	}
}

func TestListSessionsAndCount(t *testing.T) {
	clock := newFakeClock()
	store := openStore(t, session.WithClock(clock.Now))
	ctx := context.Background()
	for _, user := range []string{"a", "b", "c"} {
		clock.Advance(time.Minute)
		if _, err := store.Initialize(ctx, user); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
	}
	clock.Advance(time.Minute)
	if _, _, err := store.RecordAttempt(ctx, "a", attempt("Song", 0.5)); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3", n, err)
	}
	summaries, err := store.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].UserID != "a" || summaries[0].TotalAttempts != 1 || summaries[0].LastAttemptTime == nil {
		t.Fatalf("unexpected first summary %+v", summaries[0])
	}
	if summaries[1].UserID != "c" || summaries[1].LastAttemptTime != nil {
		t.Fatalf("unexpected second summary %+v", summaries[1])
	}
}

func TestSessionSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()
	store, err := session.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	if _, err := store.Initialize(ctx, "u"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	for _, song := range []string{"B", "A", "A", "B"} {
		if _, _, err := store.RecordAttempt(ctx, "u", attempt(song, 0.5)); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
	}
	_ = store.Close()

	reopened, err := session.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	s, err := reopened.GetSession(ctx, "u")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.TotalAttempts != 4 || s.FavoriteVictimSong != "B" {
		t.Fatalf("unexpected reopened session %+v", s)
	}
	if got := fmt.Sprint(s.SongAttempts.Songs()); got != "[B A]" {
		t.Fatalf("song order lost across reopen: %s", got)
	}
}

func TestInitializeStampsCreatedAndUpdatedTogether(t *testing.T) {
	var ticks int
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	ticking := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Millisecond)
	}
	store := openStore(t, session.WithClock(ticking))
	ctx := context.Background()

	sess, err := store.Initialize(ctx, "mona")
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	db, err := sqlitedb.Open(store.Path())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	var created, updated string
	if err := db.QueryRowContext(ctx, `SELECT created_at, updated_at FROM sessions WHERE user_id = ?`, "mona").Scan(&created, &updated); err != nil {
		t.Fatalf("query timestamps: %v", err)
	}
	if created != updated {
		t.Fatalf("created_at %s != updated_at %s", created, updated)
	}
	if created != sqlitedb.FormatTime(sess.CreatedAt) {
		t.Fatalf("created_at %s does not match session CreatedAt %s", created, sqlitedb.FormatTime(sess.CreatedAt))
	}
}
