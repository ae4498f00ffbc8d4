// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/aiox-platform/bookingbot/internal/llm"
)

var ErrScriptExhausted = errors.New("llmtest: no scripted response left")

// Step is one scripted reply. Err, when set, is returned instead.
type Step struct {
	Response *llm.Response
	Err      error
}

// Scripted replays steps in order and records every request.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	Requests []llm.Request
	// Fallback, when set, answers once the script is exhausted.
	Fallback func(req llm.Request) (*llm.Response, error)
}

func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) next(req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if len(s.steps) == 0 {
		if s.Fallback != nil {
			return s.Fallback(req)
		}
		return nil, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.Response, step.Err
}

func (s *Scripted) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	return s.next(req)
}

// Stream delivers each text block of the scripted response as one delta.
func (s *Scripted) Stream(_ context.Context, req llm.Request, onText func(string)) (*llm.Response, error) {
	resp, err := s.next(req)
	if err != nil {
		return nil, err
	}
	if onText != nil {
		for _, b := range resp.Content {
			if b.Type == llm.BlockText && b.Text != "" {
				onText(b.Text)
			}
		}
	}
	return resp, nil
}

// Calls returns how many requests were made.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// Text is an end_turn reply with one text block.
func Text(s string) Step {
	return Step{Response: &llm.Response{
		Content:    []llm.Block{llm.TextBlock(s)},
		StopReason: llm.StopEndTurn,
	}}
}

// ToolCall is one tool_use block for ToolUse.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolUse is a tool_use reply carrying the given calls.
func ToolUse(calls ...ToolCall) Step {
	resp := &llm.Response{StopReason: llm.StopToolUse}
	for _, c := range calls {
		raw, _ := json.Marshal(c.Input)
		if c.Input == nil {
			raw = []byte("{}")
		}
		resp.Content = append(resp.Content, llm.Block{Type: llm.BlockToolUse, ID: c.ID, Name: c.Name, Input: raw})
	}
	return Step{Response: resp}
}

// Fail returns err for one call.
func Fail(err error) Step {
	return Step{Err: err}
}

// LastUserText returns the text of the final user message of a request.
func LastUserText(req llm.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].IsPlainUser() {
			return strings.TrimSpace(req.Messages[i].Text())
		}
	}
	return ""
}
