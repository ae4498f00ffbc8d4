package general

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/bookingbot/internal/rentok/rentoktest"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

func TestBrandInfo_CachedPerOperator(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	ctx := context.Background()

	api := rentoktest.New(t)
	api.Set(func(s *rentoktest.Server) {
		s.Brand = map[string]any{"rent": "6000-15000", "common_amenities": []string{"wifi", "gym"}, "address": "Andheri West"}
	})
	state := userstate.NewStore(rdb)
	svc := NewService(api.Client(), state, rdb)

	out, err := svc.BrandInfo(ctx, tools.Invocation{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Brand information not available.", out)

	for _, u := range []string{"u1", "u2"} {
		require.NoError(t, state.SetPGIDs(ctx, u, []string{"pg-1", "pg-2"}))
	}
	out, err = svc.BrandInfo(ctx, tools.Invocation{UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, out, "- Rent Range: 6000-15000")
	assert.Contains(t, out, "- Common Amenities: wifi, gym")

	again, err := svc.BrandInfo(ctx, tools.Invocation{UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, out, again)
	assert.Equal(t, 1, api.Calls("/bookingBot/property-info"))
	assert.True(t, mr.TTL(brandKey([]string{"pg-1", "pg-2"})) > 0)
}

func TestBrandInfo_Empty(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	ctx := context.Background()

	state := userstate.NewStore(rdb)
	require.NoError(t, state.SetPGIDs(ctx, "u1", []string{"pg-1"}))
	svc := NewService(rentoktest.New(t).Client(), state, rdb)

	out, err := svc.BrandInfo(ctx, tools.Invocation{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "No brand information found.", out)
}
