package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aiox-platform/bookingbot/internal/config"
	"github.com/aiox-platform/bookingbot/internal/metrics"
)

const (
	globalKey = "rl:__global__:min"
	keyGrace  = 10 * time.Second
)

// Tier is one sliding window with its own cap.
type Tier struct {
	Name   string
	Limit  int
	Window time.Duration
	Global bool
	key    func(userID string) string
}

// ExceededError reports which tier rejected a request and when to retry.
type ExceededError struct {
	Tier       string
	Limit      int
	RetryAfter int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s). Try again in %ds.", e.Tier, e.RetryAfter)
}

// TierUsage is the current occupancy of one window.
type TierUsage struct {
	Tier   string `json:"tier"`
	Used   int    `json:"used"`
	Limit  int    `json:"limit"`
	Window int    `json:"window_seconds"`
}

// Limiter implements per-user and global sliding windows on Redis sorted
// sets. Redis failures fail open.
type Limiter struct {
	rdb   redis.Cmdable
	tiers []Tier
	now   func() time.Time
}

func NewLimiter(rdb redis.Cmdable, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		rdb: rdb,
		now: time.Now,
		tiers: []Tier{
			{Name: "user_minute", Limit: cfg.UserPerMinute, Window: time.Minute, key: func(u string) string { return "rl:" + u + ":min" }},
			{Name: "user_hour", Limit: cfg.UserPerHour, Window: time.Hour, key: func(u string) string { return "rl:" + u + ":hr" }},
			{Name: "global_minute", Limit: cfg.GlobalPerMinute, Window: time.Minute, Global: true, key: func(string) string { return globalKey }},
		},
	}
}

// Check admits one request for userID or returns *ExceededError from the
// first tier that is full. Tiers are checked in order; a rejected request
// does not count against later tiers.
func (l *Limiter) Check(ctx context.Context, userID string) error {
	for _, tier := range l.tiers {
		retryAfter, err := l.hit(ctx, tier.key(userID), tier.Limit, tier.Window)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "tier", tier.Name, "user_id", userID, "error", err)
			return nil
		}
		if retryAfter > 0 {
			metrics.RateLimitRejectionsTotal.WithLabelValues(tier.Name).Inc()
			return &ExceededError{Tier: tier.Name, Limit: tier.Limit, RetryAfter: retryAfter}
		}
	}
	return nil
}

// hit records one request in the window. It returns a positive retry-after
// in seconds when the window was already full.
func (l *Limiter) hit(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	now := l.now()
	windowStart := now.Add(-window)
	member := fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString())

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(toSeconds(windowStart), 'f', 6, 64))
	pipe.ZAdd(ctx, key, redis.Z{Score: toSeconds(now), Member: member})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+keyGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter pipeline %s: %w", key, err)
	}

	if countCmd.Val() <= int64(limit) {
		return 0, nil
	}

	// Over the cap: undo our entry and compute when the oldest one leaves.
	if err := l.rdb.ZRem(ctx, key, member).Err(); err != nil {
		return 0, fmt.Errorf("rate limiter rollback %s: %w", key, err)
	}
	oldest, err := l.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limiter oldest %s: %w", key, err)
	}
	retryAfter := 1
	if len(oldest) > 0 {
		wait := oldest[0].Score + window.Seconds() - toSeconds(now)
		retryAfter = max(1, int(math.Floor(wait))+1)
	}
	return retryAfter, nil
}

// Status reports the usage of every tier for userID without recording a hit.
func (l *Limiter) Status(ctx context.Context, userID string) ([]TierUsage, error) {
	out := make([]TierUsage, 0, len(l.tiers))
	for _, tier := range l.tiers {
		u, err := l.usage(ctx, tier, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// GlobalStatus reports only the tiers shared by every user.
func (l *Limiter) GlobalStatus(ctx context.Context) ([]TierUsage, error) {
	var out []TierUsage
	for _, tier := range l.tiers {
		if !tier.Global {
			continue
		}
		u, err := l.usage(ctx, tier, "")
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (l *Limiter) usage(ctx context.Context, tier Tier, userID string) (TierUsage, error) {
	minScore := strconv.FormatFloat(toSeconds(l.now().Add(-tier.Window)), 'f', 6, 64)
	count, err := l.rdb.ZCount(ctx, tier.key(userID), "("+minScore, "+inf").Result()
	if err != nil {
		return TierUsage{}, fmt.Errorf("getting %s usage: %w", tier.Name, err)
	}
	return TierUsage{Tier: tier.Name, Used: int(count), Limit: tier.Limit, Window: int(tier.Window.Seconds())}, nil
}

func toSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
