package followup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"

	"github.com/aiox-platform/bookingbot/internal/events"
	"github.com/aiox-platform/bookingbot/internal/llm"
	"github.com/aiox-platform/bookingbot/internal/metrics"
	"github.com/aiox-platform/bookingbot/internal/usermemory"
)

// Marker prefixes follow-ups stored in a web user's conversation.
const Marker = "[FOLLOW_UP]"

type ConversationAppender interface {
	Append(ctx context.Context, userID string, msgs ...llm.Message) error
}

type OutboundPublisher interface {
	PublishOutbound(ctx context.Context, msg events.OutboundMessage) error
}

type MemoryReader interface {
	Get(ctx context.Context, userID string) (usermemory.Record, error)
}

// Report summarises one sweep.
type Report struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
	// Pending counts entries still queued after the sweep, due or not.
	Pending int `json:"pending"`
}

// Sweeper delivers due follow-ups. Web users get the text appended to their
// conversation; phone users get it published for the channel gateway. An
// entry whose delivery fails stays queued for the next sweep.
type Sweeper struct {
	sched  *Scheduler
	conv   ConversationAppender
	out    OutboundPublisher
	memory MemoryReader
	batch  int
	logger *slog.Logger

	mu sync.Mutex
}

// NewSweeper creates a sweeper. out may be nil, in which case phone users'
// follow-ups are dropped.
func NewSweeper(sched *Scheduler, conv ConversationAppender, out OutboundPublisher, memory MemoryReader, batch int) *Sweeper {
	if batch <= 0 {
		batch = 50
	}
	return &Sweeper{
		sched:  sched,
		conv:   conv,
		out:    out,
		memory: memory,
		batch:  batch,
		logger: slog.With("component", "followup"),
	}
}

// Sweep processes one batch of due entries. Concurrent sweeps are
// serialised so the cron job and the manual trigger never double-send.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due, err := s.sched.Due(ctx, s.batch)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	for _, e := range due {
		delivered, err := s.deliver(ctx, e)
		if err != nil {
			s.logger.Error("follow-up delivery failed", "user_id", e.UserID, "type", e.Type, "error", err)
			metrics.FollowUpsTotal.WithLabelValues(string(e.Type), "error").Inc()
			rep.Errors++
			continue
		}
		if err := s.sched.Complete(ctx, e); err != nil {
			s.logger.Error("completing follow-up", "user_id", e.UserID, "error", err)
		}
		if delivered {
			metrics.FollowUpsTotal.WithLabelValues(string(e.Type), "sent").Inc()
			rep.Processed++
		} else {
			metrics.FollowUpsTotal.WithLabelValues(string(e.Type), "skipped").Inc()
			rep.Skipped++
		}
	}
	pending, err := s.sched.Pending(ctx)
	if err != nil {
		s.logger.Warn("counting pending follow-ups", "error", err)
	}
	rep.Pending = int(pending)
	return rep, nil
}

func (s *Sweeper) deliver(ctx context.Context, e Entry) (bool, error) {
	if e.UserID == "" {
		return false, nil
	}

	shortlisted := 0
	if e.Type == ShortlistIdle && s.memory != nil {
		rec, err := s.memory.Get(ctx, e.UserID)
		if err != nil {
			s.logger.Warn("reading memory for follow-up", "user_id", e.UserID, "error", err)
		}
		shortlisted = len(rec.PropertiesShortlisted)
	}

	text, ok := Render(e, shortlisted)
	if !ok {
		return false, nil
	}

	if IsPhoneUser(e.UserID) {
		if s.out == nil {
			s.logger.Info("follow-up skipped, no outbound channel", "user_id", e.UserID, "type", e.Type)
			return false, nil
		}
		err := s.out.PublishOutbound(ctx, events.OutboundMessage{
			ID:     uuid.NewString(),
			UserID: e.UserID,
			Body:   text,
			Kind:   events.KindFollowUp,
		})
		if err != nil {
			return false, fmt.Errorf("publish follow-up: %w", err)
		}
		return true, nil
	}

	if err := s.conv.Append(ctx, e.UserID, llm.AssistantText(Marker+" "+text)); err != nil {
		return false, fmt.Errorf("store follow-up: %w", err)
	}
	return true, nil
}

// Start runs Sweep on the cron spec (with a seconds field) until ctx is done.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	c := rcron.New(rcron.WithSeconds())
	if _, err := c.AddFunc(spec, func() {
		rep, err := s.Sweep(ctx)
		if err != nil {
			s.logger.Error("follow-up sweep failed", "error", err)
			return
		}
		if rep.Processed+rep.Skipped+rep.Errors > 0 {
			s.logger.Info("follow-up sweep", "processed", rep.Processed, "skipped", rep.Skipped, "errors", rep.Errors)
		}
	}); err != nil {
		return fmt.Errorf("invalid follow-up schedule %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info("follow-up sweeper started", "schedule", spec)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		s.logger.Info("follow-up sweeper stopped")
	}()
	return nil
}

// IsPhoneUser reports whether the id looks like a phone number (10 to 13
// digits), which marks a messaging-channel user rather than a web session.
func IsPhoneUser(userID string) bool {
	if len(userID) < 10 || len(userID) > 13 {
		return false
	}
	for _, r := range userID {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
