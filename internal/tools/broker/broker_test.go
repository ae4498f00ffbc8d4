package broker

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/bookingbot/internal/analytics"
	"github.com/aiox-platform/bookingbot/internal/followup"
	"github.com/aiox-platform/bookingbot/internal/rentok/rentoktest"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/usermemory"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const user = "web-user-1"

type fixture struct {
	svc       *Service
	api       *rentoktest.Server
	state     *userstate.Store
	memory    *usermemory.Store
	followups *followup.Scheduler
	funnel    *analytics.Tracker
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		api:       rentoktest.New(t),
		state:     userstate.NewStore(rdb),
		memory:    usermemory.NewStore(rdb),
		followups: followup.NewScheduler(rdb),
		funnel:    analytics.NewTracker(rdb),
	}
	f.svc = NewService(f.api.Client(), f.state, f.memory, f.followups, f.funnel)
	require.NoError(t, f.state.SetPGIDs(context.Background(), user, []string{"pg-a"}))
	return f
}

func call(t *testing.T, fn tools.HandlerFunc, args tools.Args) string {
	t.Helper()
	out, err := fn(context.Background(), tools.Invocation{UserID: user, Args: args})
	require.NoError(t, err)
	return out
}

func listings(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = rentoktest.Listing(fmt.Sprintf("p%d", i+1), fmt.Sprintf("Sunrise Residency %d", i+1), 7000+i*500, float64(800+i*400))
	}
	return out
}

func TestSavePreferences_MergesAndTracksCompleteness(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	out := call(t, f.svc.SavePreferences, tools.Args{"location": "Andheri", "max_budget": 8000.0})
	assert.Contains(t, out, "location=Andheri")
	assert.Contains(t, out, "max_budget=8000")

	call(t, f.svc.SavePreferences, tools.Args{"amenities": "wifi, ac", "deal_breakers": "no wifi"})

	prefs, err := f.state.Preferences(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "Andheri", prefs.Location)
	assert.Equal(t, 8000.0, prefs.MaxBudget)
	assert.Equal(t, []string{"wifi", "ac"}, prefs.Amenities)

	rec, err := f.memory.Get(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, rec.PreferencesComplete, 1e-9)
	assert.Equal(t, []string{"no wifi"}, rec.DealBreakers)
}

func TestSearch_NoLocation(t *testing.T) {
	f := setup(t)
	out := call(t, f.svc.Search, tools.Args{})
	assert.Equal(t, "No location set. Please save preferences with a location first.", out)
}

func TestSearch_UnknownLocation(t *testing.T) {
	f := setup(t)
	f.api.Set(func(s *rentoktest.Server) { s.Unknown["Atlantis"] = true })
	call(t, f.svc.SavePreferences, tools.Args{"location": "Atlantis"})

	out := call(t, f.svc.Search, tools.Args{})
	assert.Contains(t, out, "Could not find coordinates for 'Atlantis'")
}

func TestSearch_RanksCachesAndHidesIdentifiers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.api.Set(func(s *rentoktest.Server) {
		s.Listings = listings(6)
		s.Images = []string{"https://img.example.com/1.jpg"}
	})
	call(t, f.svc.SavePreferences, tools.Args{"location": "Andheri", "max_budget": 8000.0})

	out := call(t, f.svc.Search, tools.Args{})

	assert.Contains(t, out, "Found 6 properties")
	assert.Contains(t, out, "Rent starts from: ₹7000")
	assert.NotContains(t, out, "pg-p1")
	assert.NotContains(t, out, "ez-p1")
	assert.NotContains(t, out, "9876543210")
	assert.NotContains(t, out, "RELAXED")
	// Six results, so no relaxation round ran.
	assert.Equal(t, 1, f.api.Calls("/property/getPropertyDetailsAroundLatLong"))

	body := f.api.Bodies("/property/getPropertyDetailsAroundLatLong")[0]
	assert.EqualValues(t, 20000, body["radius"])
	assert.EqualValues(t, 8000, body["rent_ends_to"])

	props, err := f.state.Properties(ctx, user)
	require.NoError(t, err)
	require.Len(t, props, 6)
	assert.Equal(t, "ez-p1", props[0].EazyPGID)
	assert.Equal(t, "https://img.example.com/1.jpg", props[0].Image)
	for i := 1; i < len(props); i++ {
		assert.GreaterOrEqual(t, props[i-1].MatchScore, props[i].MatchScore)
	}

	rec, err := f.memory.Get(ctx, user)
	require.NoError(t, err)
	assert.Len(t, rec.PropertiesViewed, 6)
	assert.Equal(t, usermemory.FunnelSearch, rec.FunnelMax)
}

func TestSearch_RelaxesWhenFewResults(t *testing.T) {
	f := setup(t)
	f.api.Set(func(s *rentoktest.Server) { s.Listings = listings(2) })
	call(t, f.svc.SavePreferences, tools.Args{"location": "Andheri", "max_budget": 8000.0})

	out := call(t, f.svc.Search, tools.Args{})

	// The fake returns the same two listings each round, so nothing merges.
	assert.NotContains(t, out, "RELAXED")
	bodies := f.api.Bodies("/property/getPropertyDetailsAroundLatLong")
	require.Len(t, bodies, 3)
	assert.EqualValues(t, 35000, bodies[1]["radius"])
	assert.EqualValues(t, 300000, bodies[1]["rent_ends_to"])
	assert.EqualValues(t, 50000, bodies[2]["radius"])
	assert.EqualValues(t, 10000000, bodies[2]["rent_ends_to"])
}

func TestSearch_RadiusFlagWidensAndPersists(t *testing.T) {
	f := setup(t)
	f.api.Set(func(s *rentoktest.Server) { s.Listings = listings(5) })
	call(t, f.svc.SavePreferences, tools.Args{"location": "Andheri"})

	call(t, f.svc.Search, tools.Args{"radius_flag": true})

	body := f.api.Bodies("/property/getPropertyDetailsAroundLatLong")[0]
	assert.EqualValues(t, 25000, body["radius"])
	prefs, err := f.state.Preferences(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 25000.0, prefs.Radius)
}

func TestSearch_NothingFound(t *testing.T) {
	f := setup(t)
	call(t, f.svc.SavePreferences, tools.Args{"location": "Andheri"})
	out := call(t, f.svc.Search, tools.Args{})
	assert.Equal(t, "No properties are currently available in this region.", out)
}

func searched(t *testing.T, f *fixture, n int) {
	t.Helper()
	f.api.Set(func(s *rentoktest.Server) { s.Listings = listings(n) })
	call(t, f.svc.SavePreferences, tools.Args{"location": "Andheri"})
	call(t, f.svc.Search, tools.Args{})
}

func TestPropertyDetails(t *testing.T) {
	f := setup(t)
	searched(t, f, 5)
	f.api.Set(func(s *rentoktest.Server) {
		s.Details = map[string]any{"property_name": "Sunrise Residency 1", "location": "Andheri East", "notice_period": "30 days"}
		s.Rooms = []map[string]any{{"room_name": "R101", "sharing_type": "2", "rent": 7500}}
	})

	out := call(t, f.svc.PropertyDetails, tools.Args{"property_name": "sunrise residency 1"})
	assert.Contains(t, out, "PROPERTY DETAILS: Sunrise Residency 1")
	assert.Contains(t, out, "Notice Period: 30 days")
	assert.Contains(t, out, "R101: 2 sharing, Rent: 7500")

	out = call(t, f.svc.PropertyDetails, tools.Args{"property_name": "Moonlight Towers"})
	assert.Contains(t, out, "not found")
}

func TestPropertyDetails_BackendErrorIsReturned(t *testing.T) {
	f := setup(t)
	searched(t, f, 5)
	f.api.Set(func(s *rentoktest.Server) { s.Fail["/property/property-details-bots"] = true })

	_, err := f.svc.PropertyDetails(context.Background(), tools.Invocation{UserID: user, Args: tools.Args{"property_name": "Sunrise Residency 2"}})
	assert.Error(t, err)
}

func TestRoomDetails(t *testing.T) {
	f := setup(t)
	searched(t, f, 5)
	f.api.Set(func(s *rentoktest.Server) {
		s.Rooms = []map[string]any{{"room_name": "R1", "sharing_type": "3", "beds_available": 2, "amenities": "balcony"}}
	})
	out := call(t, f.svc.RoomDetails, tools.Args{"property_name": "Sunrise Residency 3"})
	assert.Contains(t, out, "Available rooms at 'Sunrise Residency 3'")
	assert.Contains(t, out, "Available beds: 2, Amenities: balcony")
}

func TestLandmarksAndNearby(t *testing.T) {
	f := setup(t)
	searched(t, f, 5)

	out := call(t, f.svc.Landmarks, tools.Args{"landmark_name": "Andheri Station", "property_name": "Sunrise Residency 1"})
	assert.Contains(t, out, "Distance from 'Sunrise Residency 1' to 'Andheri Station': 0.2 km")

	out = call(t, f.svc.NearbyPlaces, tools.Args{"property_name": "Sunrise Residency 1", "amenity": "hospital"})
	assert.Contains(t, out, "City Hospital (hospital)")
}

func TestCompare(t *testing.T) {
	f := setup(t)
	searched(t, f, 5)

	out := call(t, f.svc.Compare, tools.Args{"property_names": "Sunrise Residency 1"})
	assert.Contains(t, out, "at least 2")

	out = call(t, f.svc.Compare, tools.Args{"property_names": []any{"Sunrise Residency 1", "Sunrise Residency 2"}})
	assert.Contains(t, out, "PROPERTY COMPARISON")
	assert.Contains(t, out, "📍 Sunrise Residency 2")
	assert.Contains(t, out, "RECOMMENDATION:")
}

func TestShortlist_SchedulesNudge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	searched(t, f, 5)

	out := call(t, f.svc.Shortlist, tools.Args{"property_name": "Sunrise Residency 4"})
	assert.Equal(t, "Property 'Sunrise Residency 4' has been shortlisted successfully.", out)

	body := f.api.Bodies("/bookingBot/shortlist-booking-bot-property")[0]
	assert.Equal(t, "p4", body["property_id"])

	rec, err := f.memory.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"p4"}, rec.PropertiesShortlisted)

	pending, err := f.followups.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	funnel, err := f.funnel.FunnelTotals(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), funnel["shortlist"])
}

func TestPropertiesByQuery(t *testing.T) {
	f := setup(t)
	f.api.Set(func(s *rentoktest.Server) {
		s.Catalogue = []map[string]any{
			{"property_name": "Green Nest Powai", "location": "Powai", "rent": 9000},
			{"property_name": "Blue Haven", "location": "Bandra", "rent": 12000},
		}
	})
	out := call(t, f.svc.PropertiesByQuery, tools.Args{"query": "green nest"})
	assert.Contains(t, out, "Green Nest Powai | Powai | Rent: ₹9000")
	assert.NotContains(t, out, "Blue Haven")

	out = call(t, f.svc.PropertiesByQuery, tools.Args{"query": "zzz"})
	assert.Equal(t, "No properties matching 'zzz' found.", out)
}
