// Package tools defines the typed tool contract the agents call, the
// registry that builds per-agent executors and the cached-data fallback
// used when a property tool fails.
package tools

import "context"

// Invocation is one call of a tool on behalf of a user.
type Invocation struct {
	UserID string
	Args   Args
}

type Tool interface {
	Name() string
	Schema() Schema
	Call(ctx context.Context, inv Invocation) (string, error)
}

// HandlerFunc is the function form of Tool.Call.
type HandlerFunc func(ctx context.Context, inv Invocation) (string, error)

type funcTool struct {
	schema Schema
	fn     HandlerFunc
}

// New builds a Tool from a schema and a handler.
func New(schema Schema, fn HandlerFunc) Tool {
	return &funcTool{schema: schema, fn: fn}
}

func (t *funcTool) Name() string   { return t.schema.Name }
func (t *funcTool) Schema() Schema { return t.schema }

func (t *funcTool) Call(ctx context.Context, inv Invocation) (string, error) {
	return t.fn(ctx, inv)
}
