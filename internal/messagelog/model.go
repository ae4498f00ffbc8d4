package messagelog

import (
	"time"

	"github.com/google/uuid"

	"github.com/aiox-platform/bookingbot/internal/events"
)

// Sender values of booking_messages.message_sent_by.
const (
	SentByUser = 1
	SentByBot  = 2
)

// PlatformAPI is recorded when an exchange does not name its channel.
const PlatformAPI = "api"

// Message matches one booking_messages row.
type Message struct {
	ID         int64     `json:"id"`
	ExchangeID uuid.UUID `json:"exchange_id"`
	ThreadID   string    `json:"thread_id"`
	UserPhone  string    `json:"user_phone"`
	Text       string    `json:"message_text"`
	SentBy     int       `json:"message_sent_by"`
	Platform   string    `json:"platform_type"`
	Agent      string    `json:"agent,omitempty"`
	Locale     string    `json:"locale,omitempty"`
	IsTemplate bool      `json:"is_template"`
	PGIDs      []string  `json:"pg_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// FromExchange splits an exchange into the user's row and the bot's row.
// Exchanges without a parseable id get a fresh one.
func FromExchange(ex events.Exchange) []Message {
	id, err := uuid.Parse(ex.ID)
	if err != nil {
		id = uuid.New()
	}
	platform := ex.Channel
	if platform == "" {
		platform = PlatformAPI
	}
	created := ex.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	pgIDs := ex.PGIDs
	if pgIDs == nil {
		pgIDs = []string{}
	}

	base := Message{
		ExchangeID: id,
		ThreadID:   ex.UserID,
		UserPhone:  ex.UserID,
		Platform:   platform,
		Agent:      ex.Agent,
		Locale:     ex.Locale,
		PGIDs:      pgIDs,
		CreatedAt:  created,
	}
	user, bot := base, base
	user.Text, user.SentBy = ex.Message, SentByUser
	bot.Text, bot.SentBy = ex.Response, SentByBot
	return []Message{user, bot}
}

// Ratings accepted for feedback.
const (
	RatingUp   = "up"
	RatingDown = "down"
)

// Feedback is a thumbs-up or thumbs-down on a bot reply.
type Feedback struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"user_id" validate:"required,max=128"`
	MessageSnippet string    `json:"message_snippet" validate:"max=500"`
	Rating         string    `json:"rating" validate:"required,oneof=up down"`
	Agent          string    `json:"agent" validate:"omitempty,oneof=default broker booking profile"`
	CreatedAt      time.Time `json:"created_at"`
}

type RatingCounts struct {
	Up   int64 `json:"up"`
	Down int64 `json:"down"`
}

func (c *RatingCounts) add(rating string, n int64) {
	switch rating {
	case RatingUp:
		c.Up += n
	case RatingDown:
		c.Down += n
	}
}

// FeedbackStats aggregates every rating, overall and per agent.
type FeedbackStats struct {
	RatingCounts
	Total   int64                   `json:"total"`
	ByAgent map[string]RatingCounts `json:"by_agent"`
}
