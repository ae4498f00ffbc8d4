package usermemory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*Store, *time.Time, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(client)
	s.now = func() time.Time { return now }
	return s, &now, mr
}

func TestStore_UpdateStampsAndScores(t *testing.T) {
	store, now, mr := setupMiniredis(t)
	ctx := context.Background()

	r, err := store.BumpSession(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, r.SessionCount)
	assert.Equal(t, *now, r.FirstSeen)
	assert.Equal(t, *now, r.LastSeen)
	assert.Equal(t, 4, r.LeadScore)
	assert.Equal(t, "cold", r.Temperature)

	// No TTL on the memory record.
	assert.Equal(t, time.Duration(0), mr.TTL("u1:memory"))
}

func TestStore_ListsAreDedupedAndCapped(t *testing.T) {
	store, _, _ := setupMiniredis(t)
	ctx := context.Background()

	r, err := store.RecordViews(ctx, "u1", "p0", "p0", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p1"}, r.PropertiesViewed)

	for i := 2; i < 60; i++ {
		_, err := store.RecordViews(ctx, "u1", fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}
	r, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, r.PropertiesViewed, maxViewed)
	assert.Equal(t, "p10", r.PropertiesViewed[0])
	assert.Equal(t, "p59", r.PropertiesViewed[maxViewed-1])
}

func TestStore_DealBreakersCaseInsensitiveCap(t *testing.T) {
	store, _, _ := setupMiniredis(t)
	ctx := context.Background()

	_, err := store.AddDealBreakers(ctx, "u1", "No AC", "no ac", "shared bathroom")
	require.NoError(t, err)
	r, err := store.AddDealBreakers(ctx, "u1", "NO AC", "a", "b", "c", "d", "e", "f", "g", "h", "i", "j")
	require.NoError(t, err)
	assert.Len(t, r.DealBreakers, maxDealBreakers)
	assert.Equal(t, []string{"No AC", "shared bathroom"}, r.DealBreakers[:2])
}

func TestStore_FunnelIsMonotonic(t *testing.T) {
	store, _, mr := setupMiniredis(t)
	ctx := context.Background()

	r, err := store.RecordVisit(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, FunnelVisit, r.FunnelMax)

	// Drop the visit; the funnel must not regress.
	_, err = store.Update(ctx, "u1", func(rec *Record) { rec.VisitsScheduled = nil })
	require.NoError(t, err)
	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, FunnelVisit, got.FunnelMax)
	assert.True(t, mr.Exists("u1:memory"))
}

func TestStore_PersonaIsSticky(t *testing.T) {
	store, _, _ := setupMiniredis(t)
	ctx := context.Background()

	p, err := store.UpdatePersona(ctx, "u1", "need a flat near my office, I work in an IT park")
	require.NoError(t, err)
	assert.Equal(t, "professional", p)

	p, err = store.UpdatePersona(ctx, "u1", "my kids and wife will join, family of four")
	require.NoError(t, err)
	assert.Equal(t, "professional", p)

	p, err = store.UpdatePersona(ctx, "u2", "hello there")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestStore_DecayAppliedOnReturn(t *testing.T) {
	store, now, _ := setupMiniredis(t)
	ctx := context.Background()

	_, err := store.Update(ctx, "u1", func(r *Record) {
		r.SessionCount = 5
		r.PhoneCollected = true
	})
	require.NoError(t, err)

	*now = now.Add(15 * 24 * time.Hour)
	r, err := store.Update(ctx, "u1", func(*Record) {})
	require.NoError(t, err)
	// 20 + 10 - 2 full weeks * 5.
	assert.Equal(t, 20, r.LeadScore)
}

func TestStore_DecaySurvivesLaterUpdatesInSession(t *testing.T) {
	store, now, _ := setupMiniredis(t)
	ctx := context.Background()

	r, err := store.Update(ctx, "u1", func(r *Record) { r.SessionCount = 3 })
	require.NoError(t, err)
	require.Equal(t, 12, r.LeadScore)

	*now = now.Add(21 * 24 * time.Hour)
	r, err = store.BumpSession(ctx, "u1")
	require.NoError(t, err)
	// 16 - 3 full weeks * 5.
	assert.Equal(t, 1, r.LeadScore)

	r, err = store.SetPhoneCollected(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 11, r.LeadScore)

	r, err = store.RecordViews(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 14, r.LeadScore)
	assert.Contains(t, ReturningContext(r, *now), "last active 21 days ago")

	// A session after a short break clears the old penalty.
	*now = now.Add(24 * time.Hour)
	r, err = store.BumpSession(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, r.Decay)
	assert.Equal(t, 20+10+3, r.LeadScore)
	assert.Contains(t, ReturningContext(r, *now), "last active 1 days ago")
}

func TestLeadScore(t *testing.T) {
	now := time.Now()
	full := Record{
		SessionCount:          10,
		PropertiesViewed:      make([]string, 10),
		PropertiesShortlisted: make([]string, 5),
		VisitsScheduled:       make([]string, 3),
		PhoneCollected:        true,
		PreferencesComplete:   1,
	}
	assert.Equal(t, 90, LeadScore(full, now, now))
	assert.Equal(t, 0, LeadScore(Record{}, now, now))
	assert.Equal(t, 75, LeadScore(full, now.Add(-21*24*time.Hour), now))

	partial := Record{SessionCount: 2, PreferencesComplete: 0.4}
	assert.Equal(t, 12, LeadScore(partial, now, now))
}

func TestLeadScore_MonotonicInSignals(t *testing.T) {
	now := time.Now()
	r := Record{}
	prev := LeadScore(r, now, now)
	steps := []func(*Record){
		func(r *Record) { r.SessionCount++ },
		func(r *Record) { r.PropertiesViewed = append(r.PropertiesViewed, "x") },
		func(r *Record) { r.PropertiesShortlisted = append(r.PropertiesShortlisted, "x") },
		func(r *Record) { r.VisitsScheduled = append(r.VisitsScheduled, "x") },
		func(r *Record) { r.PhoneCollected = true },
		func(r *Record) { r.PreferencesComplete = 0.6 },
	}
	for _, step := range steps {
		step(&r)
		next := LeadScore(r, now, now)
		assert.GreaterOrEqual(t, next, prev)
		prev = next
	}
}

func TestTemperature(t *testing.T) {
	assert.Equal(t, "hot", Temperature(70))
	assert.Equal(t, "warm", Temperature(69))
	assert.Equal(t, "warm", Temperature(40))
	assert.Equal(t, "cold", Temperature(39))
}

func TestDetectPersona(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"I am a student at Mumbai University", "student"},
		{"moving with my wife and kids", "family"},
		{"close to my office please", "professional"},
		{"flat in andheri", ""},
		// One hit each: ties go to the earlier bucket.
		{"job near college", "professional"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPersona(tt.text))
		})
	}
}

func TestReturningContext(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, ReturningContext(Record{SessionCount: 1}, now))

	r := Record{
		SessionCount:          3,
		Persona:               "student",
		LeadScore:             45,
		PropertiesViewed:      []string{"a", "b"},
		PropertiesShortlisted: []string{"a"},
		DealBreakers:          []string{"no wifi"},
		LastSeen:              now.Add(-72 * time.Hour),
	}
	got := ReturningContext(r, now)
	assert.Contains(t, got, "session 3")
	assert.Contains(t, got, "last active 3 days ago")
	assert.Contains(t, got, "Persona: student")
	assert.Contains(t, got, "warm (45/100)")
	assert.Contains(t, got, "Viewed 2 properties, shortlisted 1")
	assert.Contains(t, got, "Deal-breakers: no wifi")
}
