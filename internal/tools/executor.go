package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aiox-platform/bookingbot/internal/llm"
	"github.com/aiox-platform/bookingbot/internal/metrics"
)

// Executor dispatches tool calls for one agent. It is immutable after
// construction and safe for concurrent use.
type Executor struct {
	tools    map[string]Tool
	order    []string
	fallback *Fallback
}

// Defs returns the tool definitions offered to the model.
func (e *Executor) Defs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(e.order))
	for _, name := range e.order {
		defs = append(defs, e.tools[name].Schema().Def())
	}
	return defs
}

// Names returns the tool names in allow-list order.
func (e *Executor) Names() []string {
	return append([]string(nil), e.order...)
}

// Execute runs a tool and always returns text for the model: failures are
// rendered as short diagnostics or, for property tools, as cached data.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage, userID string) string {
	tool, ok := e.tools[name]
	if !ok {
		metrics.ToolCallsTotal.WithLabelValues(name, "unknown").Inc()
		return fmt.Sprintf("Error: Unknown tool '%s'", name)
	}

	args := Args{}
	if len(input) > 0 && string(input) != "null" {
		if err := json.Unmarshal(input, &args); err != nil {
			metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
			return fmt.Sprintf("Error executing %s: invalid arguments: %v", name, err)
		}
	}
	if err := tool.Schema().Validate(args); err != nil {
		metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
		return fmt.Sprintf("Error executing %s: %v", name, err)
	}

	out, err := call(ctx, tool, Invocation{UserID: userID, Args: args})
	if err == nil {
		metrics.ToolCallsTotal.WithLabelValues(name, "ok").Inc()
		return out
	}

	slog.Error("tool execution failed", "tool", name, "user_id", userID, "error", err)
	if e.fallback != nil && IsPropertyTool(name) {
		if text, ok := e.fallback.Render(ctx, userID, args); ok {
			metrics.ToolCallsTotal.WithLabelValues(name, "fallback").Inc()
			return text
		}
	}
	metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
	return fmt.Sprintf("Error executing %s: %v", name, err)
}

func call(ctx context.Context, tool Tool, inv Invocation) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Call(ctx, inv)
}
