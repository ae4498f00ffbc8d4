// Package summarizer compacts long conversations into a structured summary
// followed by the most recent turns.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aiox-platform/bookingbot/internal/conversation"
	"github.com/aiox-platform/bookingbot/internal/llm"
	"github.com/aiox-platform/bookingbot/internal/metrics"
)

const (
	TagOpen  = "[CONVERSATION_SUMMARY]"
	TagClose = "[/CONVERSATION_SUMMARY]"

	maxToolChars = 300
	maxTextChars = 1000
	maxTokens    = 800
)

const ackText = "I've noted all the context from our earlier conversation. " +
	"I'll use this to provide consistent, informed responses. Please continue, how can I help?"

const prompt = `You are a conversation compactor for a PG/hostel booking assistant. Produce a dense structured summary of an older conversation segment so the assistant can continue without losing any decision-relevant context.

RULES:
- Extract all facts, preferences and decisions that could affect future responses.
- Track every property discussed with its current status and the user's sentiment.
- Preserve rejection reasons verbatim so rejected options are not suggested again.
- Compress tool call/response pairs into outcomes (e.g. "search returned 12 results near Andheri, top 5 shown").
- Use the exact section headers below. Write "None" for an empty section.
- Be concise but complete, around 400-600 tokens.
- Write in third person ("The user prefers...").

OUTPUT FORMAT:

## User Profile & Preferences
- Name, phone, email (if shared)
- Location/area, city
- Budget range (min-max)
- Gender preference, sharing type, amenities, move-in timeline
- Any other stated preferences

## Properties Discussed
- PropertyName | Status: viewed/shortlisted/rejected/booked | Sentiment: positive/neutral/negative | Key detail or rejection reason

## Booking & Scheduling Status
- Scheduled visits, payment status, KYC status, pending actions

## Key Decisions & Context
- Likes, dislikes, comparisons, objections and deal-breakers

## Current Conversation State
- Last topic, likely next action, pending questions, mood/urgency
`

const mergeNote = "\n\nNOTE: The conversation already starts with a previous summary. " +
	"Carry every tracked property, preference and decision from it into the new summary.\n"

type Config struct {
	Model        string
	Threshold    int
	KeepRecent   int
	HistoryLimit int
}

type Summarizer struct {
	client llm.Client
	cfg    Config
}

func New(client llm.Client, cfg Config) *Summarizer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 30
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = 10
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	return &Summarizer{client: client, cfg: cfg}
}

// MaybeSummarize returns msgs unchanged below the threshold. Above it the
// older segment is replaced by a summary pair; if the model call fails the
// history is truncated to the last 2 x HistoryLimit messages instead.
func (s *Summarizer) MaybeSummarize(ctx context.Context, userID string, msgs []llm.Message) []llm.Message {
	if len(msgs) < s.cfg.Threshold {
		return msgs
	}
	slog.Info("summarization triggered", "user_id", userID, "messages", len(msgs), "threshold", s.cfg.Threshold)

	split := recentStart(msgs, len(msgs)-s.cfg.KeepRecent)
	older, recent := msgs[:split], msgs[split:]

	summary, err := s.summarize(ctx, older)
	if err != nil {
		slog.Error("summarization failed, truncating", "user_id", userID, "error", err)
		metrics.SummarizationsTotal.WithLabelValues("truncated").Inc()
		return conversation.Trim(msgs, 2*s.cfg.HistoryLimit)
	}

	metrics.SummarizationsTotal.WithLabelValues("summarized").Inc()
	slog.Info("summarization complete", "user_id", userID, "summarized", len(older), "kept", len(recent))

	out := make([]llm.Message, 0, len(recent)+2)
	out = append(out,
		llm.UserText(TagOpen+"\nThe following is a structured summary of our earlier conversation. "+
			"Use this context to maintain continuity.\n\n"+summary+"\n"+TagClose),
		llm.AssistantText(ackText),
	)
	return append(out, recent...)
}

func (s *Summarizer) summarize(ctx context.Context, older []llm.Message) (string, error) {
	note := ""
	if HasSummary(older) {
		note = mergeNote
	}
	content := prompt + note +
		"\n\n--- CONVERSATION TO SUMMARIZE ---\n\n" + Transcript(older) +
		"\n\n--- END OF CONVERSATION ---\n\nProduce the structured summary now."

	resp, err := s.client.Complete(ctx, llm.Request{
		Model:     s.cfg.Model,
		Messages:  []llm.Message{llm.UserText(content)},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty summary")
	}
	return text, nil
}

// recentStart keeps the plain split unless the kept tail would open inside a
// tool exchange: on a tool_result, or on an assistant reply to one. Only then
// is the split moved back to the plain user message that began that turn. It
// never returns less than 1 so something is summarized.
func recentStart(msgs []llm.Message, split int) int {
	if split < 1 {
		split = 1
	}
	if split >= len(msgs) || !insideToolExchange(msgs, split) {
		return split
	}
	for i := split; i >= 1; i-- {
		if msgs[i].IsPlainUser() {
			return i
		}
	}
	for i := split + 1; i < len(msgs); i++ {
		if msgs[i].IsPlainUser() {
			return i
		}
	}
	return split
}

// insideToolExchange reports whether msgs[i] depends on the message before
// it: a tool_result needs its tool_use, and an assistant message following a
// tool_result is the tail of that tool loop.
func insideToolExchange(msgs []llm.Message, i int) bool {
	m := msgs[i]
	if m.Role == llm.RoleUser {
		return !m.IsPlainUser()
	}
	return i > 0 && msgs[i-1].Role == llm.RoleUser && !msgs[i-1].IsPlainUser()
}

// HasSummary reports whether msgs opens with a summary message.
func HasSummary(msgs []llm.Message) bool {
	return len(msgs) >= 2 && strings.Contains(msgs[0].Text(), TagOpen)
}

// Transcript renders msgs as "[ROLE]: content" paragraphs. Plain text over
// 1000 chars and any block of a tool turn over 300 chars is cut.
func Transcript(msgs []llm.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var body string
		if m.HasToolBlocks() {
			parts := make([]string, 0, len(m.Content))
			for _, b := range m.Content {
				parts = append(parts, truncate(blockText(b), maxToolChars))
			}
			body = strings.Join(parts, "\n")
		} else {
			body = truncate(m.Text(), maxTextChars)
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", strings.ToUpper(string(m.Role)), body))
	}
	return strings.Join(lines, "\n\n")
}

func blockText(b llm.Block) string {
	switch b.Type {
	case llm.BlockToolUse:
		return fmt.Sprintf("tool_use %s %s", b.Name, string(b.Input))
	case llm.BlockToolResult:
		return "tool_result: " + b.Text
	default:
		return b.Text
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("... [truncated, %d chars total]", len(s))
}
