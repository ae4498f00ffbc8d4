package messagelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aiox-platform/bookingbot/internal/events"
)

const consumerName = "message-log"

// errMalformed marks events that can never be persisted; they are acked
// and dropped instead of redelivered.
var errMalformed = errors.New("malformed exchange event")

// ExchangeWriter persists one exchange.
type ExchangeWriter interface {
	InsertExchange(ctx context.Context, ex events.Exchange) error
}

// Consumer persists exchange events published by the pipeline.
type Consumer struct {
	writer    ExchangeWriter
	consumers *events.ConsumerManager
}

func NewConsumer(writer ExchangeWriter, consumers *events.ConsumerManager) *Consumer {
	return &Consumer{writer: writer, consumers: consumers}
}

// Start runs the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	return c.consumers.Consume(ctx, events.StreamEvents, consumerName, events.SubjectExchange, 10,
		func(ctx context.Context, msg jetstream.Msg) bool {
			if err := c.persist(ctx, msg.Data()); err != nil {
				slog.Error("message log: persisting exchange", "error", err)
				return errors.Is(err, errMalformed)
			}
			return true
		})
}

func (c *Consumer) persist(ctx context.Context, data []byte) error {
	var ex events.Exchange
	if err := json.Unmarshal(data, &ex); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if ex.UserID == "" {
		return fmt.Errorf("%w: exchange %s has no user id", errMalformed, ex.ID)
	}
	if err := c.writer.InsertExchange(ctx, ex); err != nil {
		return err
	}
	slog.Debug("message log: persisted exchange", "exchange_id", ex.ID, "user_id", ex.UserID, "agent", ex.Agent)
	return nil
}
