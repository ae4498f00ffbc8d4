package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/bookingbot/internal/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setupLimiter(t *testing.T, cfg config.RateLimitConfig) (*Limiter, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	clock := &fakeClock{t: time.Unix(1_760_000_000, 0)}
	l := NewLimiter(rdb, cfg)
	l.now = clock.now
	return l, clock, mr
}

func TestLimiter_AllowsUpToCapThenRejects(t *testing.T) {
	l, clock, _ := setupLimiter(t, config.RateLimitConfig{UserPerMinute: 3, UserPerHour: 100, GlobalPerMinute: 100})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check(ctx, "u1"), "request %d should be allowed", i+1)
		clock.advance(time.Second)
	}

	err := l.Check(ctx, "u1")
	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, "user_minute", exceeded.Tier)
	assert.Equal(t, 3, exceeded.Limit)
	// Oldest entry is 3s old, so it leaves the 60s window in 57s.
	assert.Equal(t, 58, exceeded.RetryAfter)
}

func TestLimiter_RejectedRequestsDoNotCount(t *testing.T) {
	l, clock, mr := setupLimiter(t, config.RateLimitConfig{UserPerMinute: 2, UserPerHour: 100, GlobalPerMinute: 100})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "u1"))
	require.NoError(t, l.Check(ctx, "u1"))
	for i := 0; i < 5; i++ {
		require.Error(t, l.Check(ctx, "u1"))
	}

	members, err := mr.ZMembers("rl:u1:min")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	// Hour tier never saw the rejected requests either.
	members, err = mr.ZMembers("rl:u1:hr")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	clock.advance(61 * time.Second)
	assert.NoError(t, l.Check(ctx, "u1"))
}

func TestLimiter_HourTier(t *testing.T) {
	l, clock, _ := setupLimiter(t, config.RateLimitConfig{UserPerMinute: 100, UserPerHour: 2, GlobalPerMinute: 100})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "u1"))
	clock.advance(10 * time.Minute)
	require.NoError(t, l.Check(ctx, "u1"))
	clock.advance(10 * time.Minute)

	var exceeded *ExceededError
	require.ErrorAs(t, l.Check(ctx, "u1"), &exceeded)
	assert.Equal(t, "user_hour", exceeded.Tier)
	assert.Equal(t, 40*60+1, exceeded.RetryAfter)
}

func TestLimiter_GlobalTierAcrossUsers(t *testing.T) {
	l, _, _ := setupLimiter(t, config.RateLimitConfig{UserPerMinute: 10, UserPerHour: 100, GlobalPerMinute: 3})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "a"))
	require.NoError(t, l.Check(ctx, "b"))
	require.NoError(t, l.Check(ctx, "c"))

	var exceeded *ExceededError
	require.ErrorAs(t, l.Check(ctx, "d"), &exceeded)
	assert.Equal(t, "global_minute", exceeded.Tier)
	assert.GreaterOrEqual(t, exceeded.RetryAfter, 1)
}

func TestLimiter_DifferentUsersIsolated(t *testing.T) {
	l, _, _ := setupLimiter(t, config.RateLimitConfig{UserPerMinute: 1, UserPerHour: 100, GlobalPerMinute: 100})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "u1"))
	require.Error(t, l.Check(ctx, "u1"))
	assert.NoError(t, l.Check(ctx, "u2"))
}

func TestLimiter_FailsOpen(t *testing.T) {
	l, _, mr := setupLimiter(t, config.RateLimitConfig{UserPerMinute: 1, UserPerHour: 1, GlobalPerMinute: 1})
	mr.Close()

	ctx := context.Background()
	assert.NoError(t, l.Check(ctx, "u1"))
	assert.NoError(t, l.Check(ctx, "u1"))
}

func TestLimiter_Status(t *testing.T) {
	l, clock, _ := setupLimiter(t, config.RateLimitConfig{UserPerMinute: 6, UserPerHour: 30, GlobalPerMinute: 100})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "u1"))
	require.NoError(t, l.Check(ctx, "u1"))
	clock.advance(2 * time.Minute)
	require.NoError(t, l.Check(ctx, "u1"))

	usage, err := l.Status(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, usage, 3)
	assert.Equal(t, TierUsage{Tier: "user_minute", Used: 1, Limit: 6, Window: 60}, usage[0])
	assert.Equal(t, TierUsage{Tier: "user_hour", Used: 3, Limit: 30, Window: 3600}, usage[1])
	// The global tier shares the one-minute window, so the earlier hits expired.
	assert.Equal(t, TierUsage{Tier: "global_minute", Used: 1, Limit: 100, Window: 60}, usage[2])
}

func TestLimiter_GlobalStatus(t *testing.T) {
	l, _, _ := setupLimiter(t, config.RateLimitConfig{UserPerMinute: 6, UserPerHour: 30, GlobalPerMinute: 100})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "u1"))
	require.NoError(t, l.Check(ctx, "u2"))

	usage, err := l.GlobalStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TierUsage{{Tier: "global_minute", Used: 2, Limit: 100, Window: 60}}, usage)
}
