// Package analytics keeps daily counters for the booking funnel and for
// agent routing in Redis hashes, one hash per day.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stage is one step of the booking funnel.
type Stage string

const (
	StageShortlist Stage = "shortlist"
	StageVisit     Stage = "visit"
	StageBooking   Stage = "booking"
)

// Stages lists the funnel in order.
var Stages = []Stage{StageShortlist, StageVisit, StageBooking}

// DayLayout is the format of the day keys and of the ?day= parameter.
const DayLayout = "2006-01-02"

const counterTTL = 90 * 24 * time.Hour

// Tracker records funnel and agent counters. A nil Tracker records nothing.
type Tracker struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewTracker(rdb redis.Cmdable) *Tracker {
	return &Tracker{rdb: rdb, now: time.Now}
}

func funnelKey(day string) string {
	return "funnel:" + day
}

func agentKey(day string) string {
	return "agent_usage:" + day
}

func (t *Tracker) today() string {
	return t.now().UTC().Format(DayLayout)
}

// TrackFunnel counts userID reaching stage today. Failures are logged.
func (t *Tracker) TrackFunnel(ctx context.Context, userID string, stage Stage) {
	if t == nil {
		return
	}
	if err := t.incr(ctx, funnelKey(t.today()), string(stage)); err != nil {
		slog.Warn("funnel not tracked", "user_id", userID, "stage", stage, "error", err)
	}
}

// TrackAgent counts one turn routed to agent today. Failures are logged.
func (t *Tracker) TrackAgent(ctx context.Context, userID, agent string) {
	if t == nil {
		return
	}
	if err := t.incr(ctx, agentKey(t.today()), agent); err != nil {
		slog.Warn("agent usage not tracked", "user_id", userID, "agent", agent, "error", err)
	}
}

func (t *Tracker) incr(ctx context.Context, key, field string) error {
	pipe := t.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	pipe.Expire(ctx, key, counterTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// DayFunnel is the funnel of a single day. Every stage is present.
type DayFunnel struct {
	Day    string           `json:"day"`
	Stages map[string]int64 `json:"stages"`
}

// Funnel returns the counters of day, or of today when day is empty.
func (t *Tracker) Funnel(ctx context.Context, day string) (DayFunnel, error) {
	if day == "" {
		day = t.today()
	}
	if _, err := time.Parse(DayLayout, day); err != nil {
		return DayFunnel{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	counts, err := t.read(ctx, funnelKey(day))
	if err != nil {
		return DayFunnel{}, err
	}
	for _, s := range Stages {
		if _, ok := counts[string(s)]; !ok {
			counts[string(s)] = 0
		}
	}
	return DayFunnel{Day: day, Stages: counts}, nil
}

// FunnelTotals sums the funnel over the last days days, today included.
func (t *Tracker) FunnelTotals(ctx context.Context, days int) (map[string]int64, error) {
	out := make(map[string]int64, len(Stages))
	for _, s := range Stages {
		out[string(s)] = 0
	}
	return out, t.sum(ctx, days, funnelKey, out)
}

// AgentTotals sums agent routing over the last days days, today included.
func (t *Tracker) AgentTotals(ctx context.Context, days int) (map[string]int64, error) {
	out := map[string]int64{}
	return out, t.sum(ctx, days, agentKey, out)
}

func (t *Tracker) sum(ctx context.Context, days int, key func(string) string, into map[string]int64) error {
	today := t.now().UTC()
	for i := range max(days, 1) {
		day := today.AddDate(0, 0, -i).Format(DayLayout)
		counts, err := t.read(ctx, key(day))
		if err != nil {
			return err
		}
		for k, v := range counts {
			into[k] += v
		}
	}
	return nil
}

func (t *Tracker) read(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := t.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			slog.Warn("skipping malformed counter", "key", key, "field", k, "value", v)
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Range maps the dashboard range names to a number of days.
type Range struct {
	Name string `json:"range"`
	Days int    `json:"days"`
}

// ParseRange accepts "today", "7d" and "30d". Anything else is 7d.
func ParseRange(s string) Range {
	switch s {
	case "today":
		return Range{Name: s, Days: 1}
	case "30d":
		return Range{Name: s, Days: 30}
	default:
		return Range{Name: "7d", Days: 7}
	}
}
