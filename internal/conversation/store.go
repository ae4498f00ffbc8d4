package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiox-platform/bookingbot/internal/llm"
)

const schemaVersion = 1

type envelope struct {
	V        int           `json:"v"`
	Messages []llm.Message `json:"messages"`
}

// Store keeps each user's conversation as one versioned JSON value with a
// sliding TTL.
type Store struct {
	client  redis.Cmdable
	ttl     time.Duration
	maxMsgs int
}

// NewStore creates a conversation store. maxMsgs caps the stored history.
func NewStore(client redis.Cmdable, ttl time.Duration, maxMsgs int) *Store {
	return &Store{client: client, ttl: ttl, maxMsgs: maxMsgs}
}

func convKey(userID string) string {
	return userID + ":conversation"
}

// Get returns the stored history, or nil when none exists. Values written
// under another schema version are treated as absent.
func (s *Store) Get(ctx context.Context, userID string) ([]llm.Message, error) {
	key := convKey(userID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.V != schemaVersion {
		slog.Warn("discarding unreadable conversation", "user_id", userID, "error", err)
		return nil, nil
	}
	return env.Messages, nil
}

// Save trims msgs to the cap and writes them, refreshing the TTL.
func (s *Store) Save(ctx context.Context, userID string, msgs []llm.Message) error {
	key := convKey(userID)
	msgs = Trim(msgs, s.maxMsgs)

	data, err := json.Marshal(envelope{V: schemaVersion, Messages: msgs})
	if err != nil {
		return fmt.Errorf("marshaling conversation: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Append adds msgs to the end of the stored history.
func (s *Store) Append(ctx context.Context, userID string, msgs ...llm.Message) error {
	history, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	return s.Save(ctx, userID, append(history, msgs...))
}

func (s *Store) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, convKey(userID)).Err()
}

// Trim keeps at most max trailing messages. A cut history is realigned to
// start with a plain user turn so a tool_result is never separated from its
// tool_use; an uncut one only loses leading orphaned tool turns.
func Trim(msgs []llm.Message, max int) []llm.Message {
	if max > 0 && len(msgs) > max {
		return AlignToUserTurn(msgs[len(msgs)-max:])
	}
	for len(msgs) > 0 && msgs[0].HasToolBlocks() {
		msgs = msgs[1:]
	}
	return msgs
}

// AlignToUserTurn drops leading messages until the first plain user turn.
func AlignToUserTurn(msgs []llm.Message) []llm.Message {
	for i, m := range msgs {
		if m.IsPlainUser() {
			return msgs[i:]
		}
	}
	return nil
}
