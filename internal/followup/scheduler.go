// Package followup schedules proactive messages (visit feedback, payment
// reminders, idle shortlists) and delivers them when due.
package followup

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const scheduleKey = "followups"

type Type string

const (
	VisitComplete  Type = "visit_complete"
	PaymentPending Type = "payment_pending"
	ShortlistIdle  Type = "shortlist_idle"
)

const (
	AfterVisit      = 2 * time.Hour
	PaymentReminder = 24 * time.Hour
	ShortlistNudge  = 48 * time.Hour
)

// Entry is one scheduled follow-up.
type Entry struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Type      Type              `json:"type"`
	Data      map[string]string `json:"data,omitempty"`
	TriggerAt time.Time         `json:"trigger_at"`

	member string
}

// Scheduler keeps entries in the "followups" sorted set scored by trigger
// time in unix seconds.
type Scheduler struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewScheduler(rdb redis.Cmdable) *Scheduler {
	return &Scheduler{rdb: rdb, now: time.Now}
}

// Schedule queues a follow-up delay from now. An existing entry of the same
// type for the same user and property is replaced.
func (s *Scheduler) Schedule(ctx context.Context, userID string, typ Type, data map[string]string, delay time.Duration) (Entry, error) {
	if delay < 0 {
		delay = 0
	}
	e := Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Data:      data,
		TriggerAt: s.now().Add(delay).UTC().Truncate(time.Second),
	}

	if _, err := s.remove(ctx, func(old Entry) bool {
		return old.UserID == userID && old.Type == typ && old.Data["property_name"] == data["property_name"]
	}); err != nil {
		return Entry{}, err
	}

	raw, err := userstate.Encode(e)
	if err != nil {
		return Entry{}, fmt.Errorf("encode follow-up: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, scheduleKey, redis.Z{Score: float64(e.TriggerAt.Unix()), Member: string(raw)}).Err(); err != nil {
		return Entry{}, fmt.Errorf("schedule follow-up: %w", err)
	}
	e.member = string(raw)
	return e, nil
}

// Cancel removes every pending follow-up of typ for the user.
func (s *Scheduler) Cancel(ctx context.Context, userID string, typ Type) (int, error) {
	return s.remove(ctx, func(e Entry) bool {
		return e.UserID == userID && e.Type == typ
	})
}

// Due returns up to limit entries whose trigger time has passed, oldest first.
func (s *Scheduler) Due(ctx context.Context, limit int) ([]Entry, error) {
	members, err := s.rdb.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(s.now().Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read due follow-ups: %w", err)
	}
	return decodeAll(members), nil
}

// Complete removes a delivered (or discarded) entry.
func (s *Scheduler) Complete(ctx context.Context, e Entry) error {
	if err := s.rdb.ZRem(ctx, scheduleKey, e.member).Err(); err != nil {
		return fmt.Errorf("complete follow-up: %w", err)
	}
	return nil
}

// Pending returns the number of queued entries.
func (s *Scheduler) Pending(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, scheduleKey).Result()
}

func (s *Scheduler) remove(ctx context.Context, match func(Entry) bool) (int, error) {
	members, err := s.rdb.ZRange(ctx, scheduleKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read follow-ups: %w", err)
	}
	var stale []any
	for _, e := range decodeAll(members) {
		if match(e) {
			stale = append(stale, e.member)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.rdb.ZRem(ctx, scheduleKey, stale...).Err(); err != nil {
		return 0, fmt.Errorf("remove follow-ups: %w", err)
	}
	return len(stale), nil
}

// decodeAll skips members it cannot read; they are logged and left for
// the sweeper to discard.
func decodeAll(members []string) []Entry {
	out := make([]Entry, 0, len(members))
	for _, m := range members {
		var e Entry
		ok, err := userstate.Decode([]byte(m), &e)
		if err != nil || !ok {
			slog.Warn("unreadable follow-up entry", "error", err)
			e = Entry{}
		}
		e.member = m
		out = append(out, e)
	}
	return out
}
