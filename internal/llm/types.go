// Package llm defines the provider-agnostic message model shared by the
// agents, the supervisor and the summarizer, plus an Anthropic adapter.
package llm

import (
	"context"
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one content block. Tool results carry their text in Text.
type Block struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type Message struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

func TextBlock(s string) Block { return Block{Type: BlockText, Text: s} }

func ToolResult(toolUseID, text string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Text: text, IsError: isError}
}

func UserText(s string) Message {
	return Message{Role: RoleUser, Content: []Block{TextBlock(s)}}
}

func AssistantText(s string) Message {
	return Message{Role: RoleAssistant, Content: []Block{TextBlock(s)}}
}

// Text joins the message's text blocks with newlines.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Content {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// IsPlainUser is true for a user turn that carries no tool results.
func (m Message) IsPlainUser() bool {
	if m.Role != RoleUser {
		return false
	}
	for _, b := range m.Content {
		if b.Type == BlockToolResult {
			return false
		}
	}
	return true
}

// HasToolBlocks reports whether the message contains tool_use or tool_result.
func (m Message) HasToolBlocks() bool {
	for _, b := range m.Content {
		if b.Type == BlockToolUse || b.Type == BlockToolResult {
			return true
		}
	}
	return false
}

// ToolDef is the JSON-schema description of a tool offered to the model.
type ToolDef struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolDef
	MaxTokens int
}

type Response struct {
	Content      []Block
	StopReason   StopReason
	Model        string
	InputTokens  int
	OutputTokens int
}

// Text joins the response's text blocks with newlines.
func (r *Response) Text() string {
	return Message{Role: RoleAssistant, Content: r.Content}.Text()
}

// ToolUses returns the tool_use blocks in the order the model emitted them.
func (r *Response) ToolUses() []Block {
	var out []Block
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// Client is the LLM collaborator. Stream forwards text deltas to onText as
// they arrive and returns the assembled response.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request, onText func(string)) (*Response, error)
}
