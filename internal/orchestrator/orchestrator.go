// Package orchestrator runs chat turns for messages that arrive through a
// channel gateway on the message bus.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/aiox-platform/bookingbot/internal/events"
	"github.com/aiox-platform/bookingbot/internal/pipeline"
	"github.com/aiox-platform/bookingbot/internal/ratelimit"
)

// ChannelQueue tags exchanges that arrived over the message bus.
const ChannelQueue = "queue"

// ApologyText is sent when a turn fails for reasons the user cannot fix.
const ApologyText = "I'm sorry, I'm having trouble right now. Please try again."

const consumerName = "orchestrator"

type Turns interface {
	Handle(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Outbound interface {
	PublishOutbound(ctx context.Context, msg events.OutboundMessage) error
}

// Orchestrator consumes inbound messages, runs them through the pipeline
// and publishes the replies.
type Orchestrator struct {
	turns     Turns
	out       Outbound
	consumers *events.ConsumerManager
	validator *Validator
}

func NewOrchestrator(turns Turns, out Outbound, consumers *events.ConsumerManager, validator *Validator) *Orchestrator {
	return &Orchestrator{turns: turns, out: out, consumers: consumers, validator: validator}
}

// Start begins the orchestrator event loop. Blocks until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.consumers.Consume(ctx, events.StreamMessages, consumerName, events.SubjectInboundMessage, 10,
		func(ctx context.Context, msg jetstream.Msg) bool {
			return o.process(ctx, msg.Data())
		})
}

// process handles one inbound payload and reports whether it is done with.
// Only a failed reply publish asks for redelivery.
func (o *Orchestrator) process(ctx context.Context, data []byte) bool {
	var inbound events.InboundMessage
	if err := json.Unmarshal(data, &inbound); err != nil {
		slog.Error("unmarshaling inbound message", "error", err)
		return true
	}
	if err := o.validator.Validate(inbound); err != nil {
		slog.Warn("dropping inbound message", "id", inbound.ID, "user_id", inbound.UserID, "error", err)
		return true
	}

	slog.Debug("orchestrator processing message", "id", inbound.ID, "user_id", inbound.UserID)

	res, err := o.turns.Handle(ctx, pipeline.Request{
		UserID:        inbound.UserID,
		Message:       inbound.Message,
		AccountValues: inbound.AccountValues,
		Channel:       ChannelQueue,
	})

	var exceeded *ratelimit.ExceededError
	var invalid *pipeline.ValidationError
	body := ""
	switch {
	case err == nil:
		body = res.Response
	case errors.Is(err, pipeline.ErrDuplicate):
		slog.Debug("skipping duplicate inbound message", "id", inbound.ID, "user_id", inbound.UserID)
		return true
	case errors.As(err, &exceeded):
		slog.Info("inbound message rate limited", "user_id", inbound.UserID, "tier", exceeded.Tier, "retry_after", exceeded.RetryAfter)
		return true
	case errors.As(err, &invalid):
		slog.Warn("inbound message rejected", "id", inbound.ID, "error", err)
		return true
	default:
		slog.Error("inbound turn failed", "id", inbound.ID, "user_id", inbound.UserID, "error", err)
		body = ApologyText
	}

	reply := events.OutboundMessage{
		ID:        uuid.NewString(),
		UserID:    inbound.UserID,
		Body:      body,
		Kind:      events.KindReply,
		InReplyTo: inbound.ID,
	}
	if err := o.out.PublishOutbound(ctx, reply); err != nil {
		slog.Error("publishing reply", "id", inbound.ID, "error", err)
		return false
	}
	return true
}
