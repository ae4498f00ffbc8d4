package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aiox-platform/bookingbot/internal/events"
)

// DefaultMaxAge drops messages that sat in the queue through an outage;
// answering them late confuses more than it helps.
const DefaultMaxAge = 10 * time.Minute

// Validator checks inbound envelopes before a turn is run for them.
type Validator struct {
	maxAge time.Duration
	now    func() time.Time
}

func NewValidator(maxAge time.Duration) *Validator {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Validator{maxAge: maxAge, now: time.Now}
}

func (v *Validator) Validate(msg events.InboundMessage) error {
	if strings.TrimSpace(msg.ID) == "" {
		return errors.New("inbound message has no id")
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return errors.New("inbound message has no user id")
	}
	if strings.TrimSpace(msg.Message) == "" {
		return errors.New("inbound message is empty")
	}
	if !msg.ReceivedAt.IsZero() {
		if age := v.now().Sub(msg.ReceivedAt); age > v.maxAge {
			return fmt.Errorf("inbound message is stale (%s old)", age.Round(time.Second))
		}
	}
	return nil
}
