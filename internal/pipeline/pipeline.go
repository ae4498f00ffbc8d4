// Package pipeline runs one chat turn end to end: admission, state upkeep,
// routing, the agent loop and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aiox-platform/bookingbot/internal/agent"
	"github.com/aiox-platform/bookingbot/internal/analytics"
	"github.com/aiox-platform/bookingbot/internal/conversation"
	"github.com/aiox-platform/bookingbot/internal/events"
	"github.com/aiox-platform/bookingbot/internal/language"
	"github.com/aiox-platform/bookingbot/internal/llm"
	"github.com/aiox-platform/bookingbot/internal/metrics"
	"github.com/aiox-platform/bookingbot/internal/routing"
	"github.com/aiox-platform/bookingbot/internal/summarizer"
	"github.com/aiox-platform/bookingbot/internal/tools"
	"github.com/aiox-platform/bookingbot/internal/uiparts"
	"github.com/aiox-platform/bookingbot/internal/usermemory"
	"github.com/aiox-platform/bookingbot/internal/userstate"
)

var ErrDuplicate = errors.New("duplicate request")

// ValidationError wraps a rejected request.
type ValidationError struct{ Err error }

func (e *ValidationError) Error() string { return "invalid chat request: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Request is one inbound chat message.
type Request struct {
	UserID        string         `json:"user_id" validate:"required,max=128"`
	Message       string         `json:"message" validate:"required,max=4000"`
	AccountValues map[string]any `json:"account_values,omitempty"`
	Channel       string         `json:"-"`
}

// Result is the reply to one turn.
type Result struct {
	Response string         `json:"response"`
	Agent    string         `json:"agent"`
	Parts    []uiparts.Part `json:"parts"`
	Locale   string         `json:"locale"`
}

// Admission gates a turn before any model call.
type Admission interface {
	Check(ctx context.Context, userID string) error
}

// ExchangeRecorder persists a finished exchange, either directly or by
// publishing it for a consumer.
type ExchangeRecorder interface {
	RecordExchange(ctx context.Context, ex events.Exchange) error
}

type Deps struct {
	Limiter       Admission
	Conversations *conversation.Store
	Summarizer    *summarizer.Summarizer
	State         *userstate.Store
	Memory        *usermemory.Store
	Supervisor    *routing.Supervisor
	SafetyNet     *routing.SafetyNet
	Runner        *agent.Runner
	Registry      *tools.Registry
	Recorder      ExchangeRecorder
	Analytics     *analytics.Tracker
	KYCEnabled    bool
	Now           func() time.Time
	// TurnTimeout bounds a turn after it is detached from the caller.
	TurnTimeout time.Duration
}

const DefaultTurnTimeout = 5 * time.Minute

type Pipeline struct {
	Deps
	validate *validator.Validate
}

func New(d Deps) *Pipeline {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.TurnTimeout <= 0 {
		d.TurnTimeout = DefaultTurnTimeout
	}
	return &Pipeline{Deps: d, validate: validator.New()}
}

// turn carries what prepare resolved for the agent run.
type turn struct {
	req    Request
	agent  agent.Name
	locale string
	inv    agent.Invocation
}

// detach keeps a turn running after the caller goes away, so the reply is
// stored and the active marker cleared. Context values are kept.
func (p *Pipeline) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.TurnTimeout)
}

// Handle runs a turn and returns the full reply. A caller that disconnects
// does not interrupt it.
func (p *Pipeline) Handle(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := p.detach(ctx)
	defer cancel()

	t, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	text, _ := p.Runner.Run(ctx, t.inv)
	return p.finish(ctx, t, text), nil
}

// Stream runs a turn over the streaming API. emit receives agent_start,
// the runner's progress events and finally done. emit errors never stop
// the turn.
func (p *Pipeline) Stream(ctx context.Context, req Request, emit func(agent.Event) error) (*Result, error) {
	ctx, cancel := p.detach(ctx)
	defer cancel()

	t, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := emit(agent.Event{Type: agent.EventAgentStart, Agent: t.agent, Locale: t.locale}); err != nil {
		slog.Warn("stream consumer gone before agent start", "user_id", req.UserID, "error", err)
	}
	text, _ := p.Runner.RunStream(ctx, t.inv, emit)
	return p.finish(ctx, t, text), nil
}

func (p *Pipeline) prepare(ctx context.Context, req Request) (*turn, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Message = strings.TrimSpace(req.Message)
	if err := p.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	if p.Limiter != nil {
		if err := p.Limiter.Check(ctx, req.UserID); err != nil {
			return nil, err
		}
	}

	dup, err := p.State.MarkActive(ctx, req.UserID, req.Message)
	if err != nil {
		slog.Warn("dedup check failed", "user_id", req.UserID, "error", err)
	}
	if dup {
		return nil, ErrDuplicate
	}

	p.storeAccountValues(ctx, req)

	history, err := p.Conversations.Get(ctx, req.UserID)
	if err != nil {
		slog.Warn("loading conversation failed", "user_id", req.UserID, "error", err)
	}
	record := p.touchMemory(ctx, req, len(history) == 0)
	locale := p.resolveLanguage(ctx, req)

	msgs := append(history, llm.UserText(req.Message))
	if p.Summarizer != nil {
		msgs = p.Summarizer.MaybeSummarize(ctx, req.UserID, msgs)
	}
	if err := p.Conversations.Save(ctx, req.UserID, msgs); err != nil {
		slog.Warn("saving conversation failed", "user_id", req.UserID, "error", err)
	}

	routed := p.Supervisor.Route(ctx, msgs)
	name, corrected := p.SafetyNet.Apply(ctx, routed, req.Message, req.UserID)
	source := "supervisor"
	if corrected {
		source = "safety_net"
	}
	metrics.AgentRoutesTotal.WithLabelValues(string(name), source).Inc()
	p.Analytics.TrackAgent(ctx, req.UserID, string(name))
	slog.Info("routed turn", "user_id", req.UserID, "agent", name, "source", source, "locale", locale)

	spec := agent.SpecFor(name, p.KYCEnabled)
	system, err := spec.System(p.promptData(ctx, req.UserID, name, locale, record))
	if err != nil {
		return nil, fmt.Errorf("building %s prompt: %w", name, err)
	}

	return &turn{
		req:    req,
		agent:  name,
		locale: locale,
		inv: agent.Invocation{
			Spec:     spec,
			System:   system,
			Messages: msgs,
			UserID:   req.UserID,
			Executor: p.Registry.ForAgent(spec.Tools...),
		},
	}, nil
}

func (p *Pipeline) storeAccountValues(ctx context.Context, req Request) {
	if len(req.AccountValues) == 0 {
		return
	}
	if err := p.State.SetAccountValues(ctx, req.UserID, req.AccountValues); err != nil {
		slog.Warn("storing account values failed", "user_id", req.UserID, "error", err)
	}
	ids := pgIDs(req.AccountValues["pg_ids"])
	if len(ids) == 0 {
		return
	}
	if err := p.State.SetPGIDs(ctx, req.UserID, ids); err != nil {
		slog.Warn("storing pg ids failed", "user_id", req.UserID, "error", err)
	}
}

func pgIDs(v any) []string {
	switch ids := v.(type) {
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if s := strings.TrimSpace(fmt.Sprint(id)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.FieldsFunc(ids, func(r rune) bool { return r == ',' || r == ' ' })
	}
	return nil
}

// touchMemory bumps the session on the first message of a conversation and
// refreshes the phone flag and persona.
func (p *Pipeline) touchMemory(ctx context.Context, req Request, newSession bool) usermemory.Record {
	if p.Memory == nil {
		return usermemory.Record{}
	}
	if newSession {
		if _, err := p.Memory.BumpSession(ctx, req.UserID); err != nil {
			slog.Warn("bumping session failed", "user_id", req.UserID, "error", err)
		}
	}
	if phone, err := p.State.Phone(ctx, req.UserID); err == nil && phone != "" {
		if _, err := p.Memory.SetPhoneCollected(ctx, req.UserID); err != nil {
			slog.Warn("marking phone collected failed", "user_id", req.UserID, "error", err)
		}
	}
	if _, err := p.Memory.UpdatePersona(ctx, req.UserID, req.Message); err != nil {
		slog.Warn("updating persona failed", "user_id", req.UserID, "error", err)
	}
	rec, err := p.Memory.Get(ctx, req.UserID)
	if err != nil {
		slog.Warn("loading memory failed", "user_id", req.UserID, "error", err)
	}
	return rec
}

func (p *Pipeline) resolveLanguage(ctx context.Context, req Request) string {
	detected := language.Detect(req.Message)
	if detected != language.English {
		if err := p.State.SetLanguage(ctx, req.UserID, detected); err != nil {
			slog.Warn("storing language failed", "user_id", req.UserID, "error", err)
		}
		return detected
	}
	stored, err := p.State.Language(ctx, req.UserID)
	if err != nil {
		slog.Warn("loading language failed", "user_id", req.UserID, "error", err)
	}
	return language.Resolve(detected, stored)
}

func (p *Pipeline) promptData(ctx context.Context, userID string, name agent.Name, locale string, rec usermemory.Record) agent.PromptData {
	account, err := p.State.AccountValues(ctx, userID)
	if err != nil {
		slog.Warn("loading account values failed", "user_id", userID, "error", err)
	}
	data := agent.PromptDataFrom(account)
	data.Language = locale
	data.KYCEnabled = p.KYCEnabled
	data.Now = p.Now()
	if name == agent.Broker || name == agent.Default {
		data.ReturningContext = usermemory.ReturningContext(rec, data.Now)
	}
	return data
}

// finish persists the reply and builds the result. Nothing here can fail
// the turn.
func (p *Pipeline) finish(ctx context.Context, t *turn, text string) *Result {
	userID := t.req.UserID

	if err := p.State.SetLastAgent(ctx, userID, string(t.agent)); err != nil {
		slog.Warn("storing last agent failed", "user_id", userID, "error", err)
	}
	if err := p.Conversations.Append(ctx, userID, llm.AssistantText(text)); err != nil {
		slog.Warn("saving reply failed", "user_id", userID, "error", err)
	}
	if err := p.State.ClearActive(ctx, userID); err != nil {
		slog.Warn("clearing active request failed", "user_id", userID, "error", err)
	}

	if p.Recorder != nil {
		ex := events.Exchange{
			ID:        uuid.NewString(),
			UserID:    userID,
			Message:   t.req.Message,
			Response:  text,
			Agent:     string(t.agent),
			Locale:    t.locale,
			Channel:   t.req.Channel,
			PGIDs:     pgIDs(t.req.AccountValues["pg_ids"]),
			CreatedAt: p.Now().UTC(),
		}
		if err := p.Recorder.RecordExchange(ctx, ex); err != nil {
			slog.Warn("recording exchange failed", "user_id", userID, "error", err)
		}
	}

	cached, err := p.State.Properties(ctx, userID)
	if err != nil {
		slog.Warn("loading cached properties failed", "user_id", userID, "error", err)
	}
	return &Result{
		Response: text,
		Agent:    string(t.agent),
		Parts:    uiparts.Build(text, string(t.agent), t.locale, cached),
		Locale:   t.locale,
	}
}
