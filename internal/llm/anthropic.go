package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aiox-platform/bookingbot/internal/config"
	"github.com/aiox-platform/bookingbot/internal/metrics"
	"github.com/aiox-platform/bookingbot/internal/retry"
)

// Anthropic implements Client on top of anthropic-sdk-go. SDK-level retries
// are disabled; the shared retry.Policy is applied instead.
type Anthropic struct {
	msgs      *anthropicsdk.MessageService
	maxTokens int
	policy    retry.Policy
}

func NewAnthropic(cfg config.LLMConfig, policy retry.Policy) (*Anthropic, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: api key required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropicsdk.NewClient(opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	policy.Retryable = retryableAnthropic
	return &Anthropic{msgs: &client.Messages, maxTokens: maxTokens, policy: policy}, nil
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	var resp *Response
	err = a.policy.Do(ctx, "llm.complete", func(ctx context.Context) error {
		start := time.Now()
		msg, err := a.msgs.New(ctx, params)
		observe(req.Model, start, err)
		if err != nil {
			return err
		}
		resp = convertResponse(msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic complete: %w", err)
	}
	return resp, nil
}

// Stream retries only until the first delta has been forwarded; after that a
// failure is returned as is so the caller never sees duplicated text.
func (a *Anthropic) Stream(ctx context.Context, req Request, onText func(string)) (*Response, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	var resp *Response
	err = a.policy.Do(ctx, "llm.stream", func(ctx context.Context) error {
		start := time.Now()
		emitted := false

		stream := a.msgs.NewStreaming(ctx, params)
		defer stream.Close()

		var final anthropicsdk.Message
		for stream.Next() {
			event := stream.Current()
			if err := final.Accumulate(event); err != nil {
				return fmt.Errorf("accumulate stream: %w", err)
			}
			if ev, ok := event.AsAny().(anthropicsdk.ContentBlockDeltaEvent); ok {
				if text := ev.Delta.AsTextDelta().Text; text != "" && onText != nil {
					emitted = true
					onText(text)
				}
			}
		}
		err := stream.Err()
		observe(req.Model, start, err)
		if err != nil {
			if emitted {
				return noRetry{err}
			}
			return err
		}
		resp = convertResponse(&final)
		return nil
	})
	if err != nil {
		var nr noRetry
		if errors.As(err, &nr) {
			err = nr.err
		}
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}
	return resp, nil
}

type noRetry struct{ err error }

func (n noRetry) Error() string { return n.err.Error() }
func (n noRetry) Unwrap() error { return n.err }

func retryableAnthropic(err error) bool {
	var nr noRetry
	if errors.As(err, &nr) {
		return false
	}
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return retry.IsTransientStatus(apiErr.StatusCode)
	}
	return retry.Transient(err)
}

func observe(model string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMCallsTotal.WithLabelValues(model, status).Inc()
	metrics.LLMCallDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
}

func (a *Anthropic) buildParams(req Request) (anthropicsdk.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{
			Text:         req.System,
			CacheControl: anthropicsdk.NewCacheControlEphemeralParam(),
		}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropicsdk.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func convertMessages(msgs []Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				if b.Text == "" {
					continue
				}
				blocks = append(blocks, anthropicsdk.NewTextBlock(b.Text))
			case BlockToolUse:
				var input any = map[string]any{}
				if len(b.Input) > 0 {
					_ = json.Unmarshal(b.Input, &input)
				}
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(b.ID, input, b.Name))
			case BlockToolResult:
				blocks = append(blocks, anthropicsdk.NewToolResultBlock(b.ToolUseID, b.Text, b.IsError))
			}
		}
		if len(blocks) == 0 {
			blocks = append(blocks, anthropicsdk.NewTextBlock("."))
		}
		role := anthropicsdk.MessageParamRoleUser
		if m.Role == RoleAssistant {
			role = anthropicsdk.MessageParamRoleAssistant
		}
		out = append(out, anthropicsdk.MessageParam{Role: role, Content: blocks})
	}
	// The API requires a user turn first; stored follow-ups can open a history.
	if len(out) > 0 && out[0].Role == anthropicsdk.MessageParamRoleAssistant {
		out = append([]anthropicsdk.MessageParam{{
			Role:    anthropicsdk.MessageParamRoleUser,
			Content: []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(".")},
		}}, out...)
	}
	return out
}

func convertTools(defs []ToolDef) ([]anthropicsdk.ToolUnionParam, error) {
	out := make([]anthropicsdk.ToolUnionParam, 0, len(defs))
	for i, def := range defs {
		tool := anthropicsdk.ToolParam{
			Name: def.Name,
			InputSchema: anthropicsdk.ToolInputSchemaParam{
				Properties: def.Properties,
				Required:   def.Required,
			},
		}
		if def.Description != "" {
			tool.Description = anthropicsdk.String(def.Description)
		}
		// Cache breakpoint after the last tool covers the whole tool list.
		if i == len(defs)-1 {
			tool.CacheControl = anthropicsdk.NewCacheControlEphemeralParam()
		}
		out = append(out, anthropicsdk.ToolUnionParam{OfTool: &tool})
	}
	return out, nil
}

func convertResponse(msg *anthropicsdk.Message) *Response {
	resp := &Response{
		StopReason:   StopReason(msg.StopReason),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content = append(resp.Content, TextBlock(block.Text))
		case "tool_use":
			input := block.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			resp.Content = append(resp.Content, Block{
				Type:  BlockToolUse,
				ID:    block.ID,
				Name:  block.Name,
				Input: append(json.RawMessage(nil), input...),
			})
		}
	}
	return resp
}
