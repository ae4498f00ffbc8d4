package agent

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aiox-platform/bookingbot/internal/llm"
	"github.com/aiox-platform/bookingbot/internal/metrics"
	"github.com/aiox-platform/bookingbot/internal/tools"
)

const (
	DefaultMaxIterations = 15

	TemporaryIssueText = "I'm experiencing a temporary issue. Please try again."
	RephraseText       = "I'm having trouble processing this request. Could you rephrase?"
)

// Models maps tiers to provider model ids.
type Models struct {
	Fast    string
	Capable string
}

func (m Models) For(t Tier) string {
	if t == TierCapable {
		return m.Capable
	}
	return m.Fast
}

// Invocation is one agent turn. Executor carries the agent's own tools and
// is never shared between concurrent turns.
type Invocation struct {
	Spec     Spec
	System   string
	Messages []llm.Message
	UserID   string
	Executor *tools.Executor
}

// Runner drives the model/tool loop.
type Runner struct {
	client        llm.Client
	models        Models
	maxIterations int
}

func NewRunner(client llm.Client, models Models, maxIterations int) *Runner {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Runner{client: client, models: models, maxIterations: maxIterations}
}

// Run loops until the model ends its turn or the iteration cap is hit. It
// returns the reply text and the history extended with every assistant and
// tool-result message of the turn.
func (r *Runner) Run(ctx context.Context, inv Invocation) (string, []llm.Message) {
	msgs := append([]llm.Message(nil), inv.Messages...)
	req := r.request(inv)

	for i := 1; i <= r.maxIterations; i++ {
		req.Messages = msgs
		resp, err := r.client.Complete(ctx, req)
		if err != nil {
			slog.Error("agent llm call failed", "agent", inv.Spec.Name, "user_id", inv.UserID, "iteration", i, "error", err)
			return TemporaryIssueText, msgs
		}

		uses := resp.ToolUses()
		if resp.StopReason != llm.StopToolUse || len(uses) == 0 {
			metrics.AgentIterations.WithLabelValues(string(inv.Spec.Name)).Observe(float64(i))
			text := resp.Text()
			return text, append(msgs, llm.AssistantText(text))
		}

		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: r.execute(ctx, inv, uses)})
	}

	metrics.AgentIterations.WithLabelValues(string(inv.Spec.Name)).Observe(float64(r.maxIterations))
	slog.Warn("agent hit iteration cap", "agent", inv.Spec.Name, "user_id", inv.UserID, "max", r.maxIterations)
	return RephraseText, msgs
}

// RunStream is Run over the streaming API. Text deltas, tool boundaries and
// failures are reported through emit. If emit fails the consumer is gone:
// further events are dropped but the turn still completes so its state is
// consistent. The returned text is everything the model wrote this turn.
func (r *Runner) RunStream(ctx context.Context, inv Invocation, emit func(Event) error) (string, []llm.Message) {
	msgs := append([]llm.Message(nil), inv.Messages...)
	req := r.request(inv)
	out := &emitter{emit: emit, agent: inv.Spec.Name}

	var written []string
	for i := 1; i <= r.maxIterations; i++ {
		req.Messages = msgs
		resp, err := r.client.Stream(ctx, req, func(delta string) {
			out.send(Event{Type: EventContentDelta, Text: delta})
		})
		if err != nil {
			slog.Error("agent llm stream failed", "agent", inv.Spec.Name, "user_id", inv.UserID, "iteration", i, "error", err)
			out.send(Event{Type: EventError, Text: TemporaryIssueText})
			if len(written) == 0 {
				return TemporaryIssueText, msgs
			}
			return strings.Join(written, "\n\n"), msgs
		}
		if text := resp.Text(); text != "" {
			written = append(written, text)
		}

		uses := resp.ToolUses()
		if resp.StopReason != llm.StopToolUse || len(uses) == 0 {
			metrics.AgentIterations.WithLabelValues(string(inv.Spec.Name)).Observe(float64(i))
			text := strings.Join(written, "\n\n")
			return text, append(msgs, llm.AssistantText(resp.Text()))
		}

		for _, u := range uses {
			out.send(Event{Type: EventToolStart, Tool: u.Name})
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: r.execute(ctx, inv, uses)})
		for _, u := range uses {
			out.send(Event{Type: EventToolDone, Tool: u.Name})
		}
	}

	metrics.AgentIterations.WithLabelValues(string(inv.Spec.Name)).Observe(float64(r.maxIterations))
	slog.Warn("agent hit iteration cap", "agent", inv.Spec.Name, "user_id", inv.UserID, "max", r.maxIterations)
	out.send(Event{Type: EventContentDelta, Text: RephraseText})
	return RephraseText, msgs
}

func (r *Runner) request(inv Invocation) llm.Request {
	req := llm.Request{Model: r.models.For(inv.Spec.Tier), System: inv.System}
	if inv.Executor != nil {
		req.Tools = inv.Executor.Defs()
	}
	return req
}

// execute runs every tool call of one model response concurrently and
// returns the results in request order. A failing tool never cancels its
// siblings; the executor renders failures as text.
func (r *Runner) execute(ctx context.Context, inv Invocation, uses []llm.Block) []llm.Block {
	results := make([]llm.Block, len(uses))
	var g errgroup.Group
	for i, use := range uses {
		slog.Info("tool call", "agent", inv.Spec.Name, "user_id", inv.UserID, "tool", use.Name)
		g.Go(func() error {
			var text string
			if inv.Executor == nil {
				text = "Error: Unknown tool '" + use.Name + "'"
			} else {
				text = inv.Executor.Execute(ctx, use.Name, use.Input, inv.UserID)
			}
			results[i] = llm.ToolResult(use.ID, text, false)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
