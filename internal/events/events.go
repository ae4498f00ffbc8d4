package events

import "time"

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

const (
	StreamMessages = "BOOKINGBOT_MESSAGES"
	StreamEvents   = "BOOKINGBOT_EVENTS"
)

const (
	SubjectInboundMessage  = "bookingbot.messages.inbound"
	SubjectOutboundMessage = "bookingbot.messages.outbound"
	SubjectExchange        = "bookingbot.events.exchange"
)

// Outbound message kinds.
const (
	KindReply    = "reply"
	KindFollowUp = "follow_up"
)

// InboundMessage is a chat message received by a channel gateway.
type InboundMessage struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Message       string         `json:"message"`
	AccountValues map[string]any `json:"account_values,omitempty"`
	ReceivedAt    time.Time      `json:"received_at"`
}

// OutboundMessage is text for a channel gateway to deliver to a user.
type OutboundMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Body      string `json:"body"`
	Kind      string `json:"kind"`
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// Exchange is one completed user message and bot reply.
type Exchange struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Agent     string    `json:"agent"`
	Locale    string    `json:"locale,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	PGIDs     []string  `json:"pg_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
