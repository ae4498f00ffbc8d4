package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// ConsumerManager handles durable consumer creation.
type ConsumerManager struct {
	js jetstream.JetStream
}

func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// EnsureConsumer creates or updates a durable consumer on the given stream.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	consumer, err := cm.js.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", name, stream, err)
	}
	return consumer, nil
}

// Handler processes one message and reports whether it should be acked.
type Handler func(ctx context.Context, msg jetstream.Msg) bool

// Consume fetches batches from a durable consumer and hands each message to
// handle until ctx is cancelled. Messages the handler rejects are naked for
// redelivery.
func (cm *ConsumerManager) Consume(ctx context.Context, stream, name, subject string, batch int, handle Handler) error {
	consumer, err := cm.EnsureConsumer(ctx, stream, name, subject)
	if err != nil {
		return err
	}
	slog.Info("consumer started", "consumer", name, "subject", subject)

	for {
		msgs, err := consumer.Fetch(batch, jetstream.FetchMaxWait(FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("fetching messages", "consumer", name, "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			if handle(ctx, msg) {
				_ = msg.Ack()
			} else {
				_ = msg.Nak()
			}
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
