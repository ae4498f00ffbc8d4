// Package usermemory keeps the cross-session engagement record of each
// user: what they viewed, shortlisted and visited, their persona and a
// derived lead score.
package usermemory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiox-platform/bookingbot/internal/userstate"
)

// Store persists records under "{user}:memory" with no TTL.
type Store struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewStore(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

func memKey(userID string) string {
	return userID + ":memory"
}

// Get returns the stored record, or a zero Record for unknown users.
func (s *Store) Get(ctx context.Context, userID string) (Record, error) {
	var r Record
	raw, err := s.rdb.Get(ctx, memKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return r, nil
	}
	if err != nil {
		return r, fmt.Errorf("get memory: %w", err)
	}
	if _, err := userstate.Decode(raw, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Update applies fn to the stored record, stamps the timestamps and
// recomputes the derived fields. Concurrent updates are last-writer-wins.
func (s *Store) Update(ctx context.Context, userID string, fn func(*Record)) (Record, error) {
	r, err := s.Get(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	prevSeen := r.LastSeen
	fn(&r)
	r.recompute(prevSeen, s.now())

	data, err := userstate.Encode(r)
	if err != nil {
		return Record{}, err
	}
	if err := s.rdb.Set(ctx, memKey(userID), data, 0).Err(); err != nil {
		return Record{}, fmt.Errorf("set memory: %w", err)
	}
	return r, nil
}

// BumpSession starts a new session. The previous last_seen is kept for the
// returning-user note and any earlier decay is dropped; recompute sets a
// new one when this session follows a week or more of absence.
func (s *Store) BumpSession(ctx context.Context, userID string) (Record, error) {
	return s.Update(ctx, userID, func(r *Record) {
		r.SessionCount++
		r.PreviousSeen = r.LastSeen
		r.Decay = 0
	})
}

func (s *Store) SetPhoneCollected(ctx context.Context, userID string) (Record, error) {
	return s.Update(ctx, userID, func(r *Record) { r.PhoneCollected = true })
}

func (s *Store) SetPreferencesComplete(ctx context.Context, userID string, fraction float64) (Record, error) {
	return s.Update(ctx, userID, func(r *Record) { r.PreferencesComplete = fraction })
}

func (s *Store) RecordViews(ctx context.Context, userID string, propertyIDs ...string) (Record, error) {
	return s.Update(ctx, userID, func(r *Record) {
		r.PropertiesViewed = appendCapped(r.PropertiesViewed, maxViewed, propertyIDs...)
	})
}

func (s *Store) RecordShortlist(ctx context.Context, userID, propertyID string) (Record, error) {
	return s.Update(ctx, userID, func(r *Record) {
		r.PropertiesShortlisted = appendCapped(r.PropertiesShortlisted, maxShortlisted, propertyID)
	})
}

func (s *Store) RecordVisit(ctx context.Context, userID, propertyID string) (Record, error) {
	return s.Update(ctx, userID, func(r *Record) {
		r.VisitsScheduled = appendCapped(r.VisitsScheduled, maxVisits, propertyID)
	})
}

func (s *Store) AddDealBreakers(ctx context.Context, userID string, items ...string) (Record, error) {
	return s.Update(ctx, userID, func(r *Record) {
		r.DealBreakers = addDealBreakers(r.DealBreakers, items...)
	})
}

// UpdatePersona sets the persona detected in message unless one is
// already stored. It writes nothing when there is nothing to change.
func (s *Store) UpdatePersona(ctx context.Context, userID, message string) (string, error) {
	r, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if r.Persona != "" {
		return r.Persona, nil
	}
	persona := DetectPersona(message)
	if persona == "" {
		return "", nil
	}
	if _, err := s.Update(ctx, userID, func(r *Record) {
		if r.Persona == "" {
			r.Persona = persona
		}
	}); err != nil {
		return "", err
	}
	return persona, nil
}
