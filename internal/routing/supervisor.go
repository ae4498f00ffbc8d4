package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aiox-platform/bookingbot/internal/agent"
	"github.com/aiox-platform/bookingbot/internal/llm"
	"github.com/aiox-platform/bookingbot/internal/retry"
)

const (
	contextWindow   = 4
	classifyTokens  = 256
	classifyRetries = 3
	classifyBackoff = 500 * time.Millisecond
)

const supervisorPrompt = `You are a routing supervisor for a property rental platform chatbot.

Your ONLY job is to classify the user's latest message and return the correct agent. You do NOT respond to the user.

AGENTS:
- default: Greetings, small talk, unclear intent, completely off-topic queries
- broker: finding/searching properties, property details, images, areas, budgets, amenities, shortlisting, rent, PG, flat, hostel, co-living
- booking: scheduling visits, calls, video tours, payment, token, KYC, Aadhaar, OTP, reservation, cancel, reschedule
- profile: the user's own profile, saved preferences, upcoming events, shortlisted properties

RULES (apply in order):
1. The user asks about THEIR OWN data (my visits, my bookings, my preferences, shortlisted properties, booking status) -> "profile"
2. Scheduling or transacting (book a visit, KYC, payment, cancellation) -> "booking"
3. Finding or exploring properties (search, details, images, shortlist this, landmarks, distance) -> "broker"
4. The previous bot message was about property search AND the user replies "yes", "ok", "sure" or a short follow-up -> "broker"
5. The previous bot message was about booking AND the user replies "yes", "ok" or a date/time -> "booking"
6. Everything else -> "default"

Respond with ONLY raw JSON, no markdown: {"agent": "<agent_name>"}`

var errUnknownAgent = errors.New("supervisor returned an unknown agent")

// Supervisor classifies the latest user turn with a cheap LLM call.
type Supervisor struct {
	client llm.Client
	model  string
	policy retry.Policy
}

func NewSupervisor(client llm.Client, model string) *Supervisor {
	return &Supervisor{
		client: client,
		model:  model,
		policy: retry.Policy{
			Attempts: classifyRetries,
			Base:     classifyBackoff,
			Retryable: func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			},
		},
	}
}

// Route returns the agent for the conversation. It never fails: after the
// retries are spent the answer is agent.Default.
func (s *Supervisor) Route(ctx context.Context, history []llm.Message) agent.Name {
	msgs := RecentText(history, contextWindow)
	if len(msgs) == 0 {
		return agent.Default
	}

	var routed agent.Name
	err := s.policy.Do(ctx, "supervisor.route", func(ctx context.Context) error {
		resp, err := s.client.Complete(ctx, llm.Request{
			Model:     s.model,
			System:    supervisorPrompt,
			Messages:  msgs,
			MaxTokens: classifyTokens,
		})
		if err != nil {
			return err
		}
		var out struct {
			Agent string `json:"agent"`
		}
		if err := llm.ExtractJSON(resp.Text(), &out); err != nil {
			return fmt.Errorf("parsing classification %q: %w", resp.Text(), err)
		}
		name, ok := agent.Parse(strings.ToLower(strings.TrimSpace(out.Agent)))
		if !ok {
			return fmt.Errorf("%w: %q", errUnknownAgent, out.Agent)
		}
		routed = name
		return nil
	})
	if err != nil {
		slog.Warn("supervisor classification failed, using default agent", "error", err)
		return agent.Default
	}
	return routed
}

// RecentText keeps the last n messages as plain text: tool blocks are
// dropped, empty turns skipped and adjacent same-role turns merged.
func RecentText(history []llm.Message, n int) []llm.Message {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var out []llm.Message
	for _, m := range history {
		text := strings.TrimSpace(m.Text())
		if text == "" {
			continue
		}
		if last := len(out) - 1; last >= 0 && out[last].Role == m.Role {
			out[last].Content[0].Text += "\n" + text
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: []llm.Block{llm.TextBlock(text)}})
	}
	return out
}
