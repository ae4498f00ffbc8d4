package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiox-platform/bookingbot/internal/userstate"
)

const recordTTL = 30 * 24 * time.Hour

// Record is the persisted booking progress of one user.
type Record struct {
	State        State     `json:"state"`
	PropertyID   string    `json:"property_id,omitempty"`
	PropertyName string    `json:"property_name,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Property identifies the property an event concerns.
type Property struct {
	ID   string
	Name string
}

// Store persists booking records under "{user}:booking_state".
type Store struct {
	rdb     redis.Cmdable
	machine Machine
	now     func() time.Time
}

func NewStore(rdb redis.Cmdable, machine Machine) *Store {
	return &Store{rdb: rdb, machine: machine, now: time.Now}
}

func stateKey(userID string) string {
	return userID + ":booking_state"
}

// Get returns the user's record; a missing or unreadable record is NOT_STARTED.
func (s *Store) Get(ctx context.Context, userID string) (Record, error) {
	raw, err := s.rdb.Get(ctx, stateKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{State: NotStarted}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("get booking state: %w", err)
	}
	var rec Record
	ok, err := userstate.Decode(raw, &rec)
	if err != nil || !ok || rec.State == "" {
		return Record{State: NotStarted}, nil
	}
	return rec, nil
}

// start is the state a new booking for prop begins from. A finished
// reservation does not block booking another property; KYC carries over.
func start(rec Record, prop Property) State {
	if rec.State == Reserved && prop.ID != "" && prop.ID != rec.PropertyID {
		return KYCVerified
	}
	return rec.State
}

// Check reports whether ev may be fired now, without changing anything.
func (s *Store) Check(ctx context.Context, userID string, ev Event, prop Property) error {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	_, err = s.machine.Next(start(rec, prop), ev)
	return err
}

// Fire applies ev and persists the new state. prop may be empty, in which
// case the record keeps its current property.
func (s *Store) Fire(ctx context.Context, userID string, ev Event, prop Property) (Record, error) {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	next, err := s.machine.Next(start(rec, prop), ev)
	if err != nil {
		return rec, err
	}

	rec.State = next
	if prop.ID != "" || prop.Name != "" {
		rec.PropertyID, rec.PropertyName = prop.ID, prop.Name
	}
	if ev == EventReset {
		rec.PropertyID, rec.PropertyName = "", ""
	}
	rec.UpdatedAt = s.now().UTC()

	data, err := userstate.Encode(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode booking state: %w", err)
	}
	if err := s.rdb.Set(ctx, stateKey(userID), data, recordTTL).Err(); err != nil {
		return Record{}, fmt.Errorf("set booking state: %w", err)
	}
	return rec, nil
}
