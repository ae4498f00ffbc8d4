package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/bookingbot/internal/config"
	"github.com/aiox-platform/bookingbot/internal/retry"
)

const toolUseResponse = `{
  "id": "msg_1", "type": "message", "role": "assistant", "model": "test-model",
  "content": [
    {"type": "text", "text": "Let me search."},
    {"type": "tool_use", "id": "tu_1", "name": "search_properties", "input": {"location": "Andheri"}}
  ],
  "stop_reason": "tool_use", "stop_sequence": null,
  "usage": {"input_tokens": 12, "output_tokens": 7}
}`

func newTestAnthropic(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a, err := NewAnthropic(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, retry.Policy{Attempts: 3, Base: time.Millisecond})
	require.NoError(t, err)
	return a
}

func TestAnthropic_CompleteConvertsBlocks(t *testing.T) {
	var body map[string]any
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolUseResponse)
	})

	resp, err := a.Complete(context.Background(), Request{
		Model:    "test-model",
		System:   "be brief",
		Messages: []Message{UserText("flats in Andheri")},
		Tools: []ToolDef{{
			Name:        "search_properties",
			Description: "search",
			Properties:  map[string]any{"location": map[string]any{"type": "string"}},
			Required:    []string{"location"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, StopToolUse, resp.StopReason)
	assert.Equal(t, "Let me search.", resp.Text())
	uses := resp.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "tu_1", uses[0].ID)
	assert.JSONEq(t, `{"location":"Andheri"}`, string(uses[0].Input))

	// System prompt and tool list carry cache breakpoints.
	system := body["system"].([]any)[0].(map[string]any)
	assert.Equal(t, "be brief", system["text"])
	assert.NotNil(t, system["cache_control"])
	tool := body["tools"].([]any)[0].(map[string]any)
	assert.NotNil(t, tool["cache_control"])
}

func TestAnthropic_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolUseResponse)
	})

	_, err := a.Complete(context.Background(), Request{Model: "test-model", Messages: []Message{UserText("hi")}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropic_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"nope"}}`)
	})

	_, err := a.Complete(context.Background(), Request{Model: "test-model", Messages: []Message{UserText("hi")}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewAnthropic_RequiresKey(t *testing.T) {
	_, err := NewAnthropic(config.LLMConfig{}, retry.Default())
	assert.Error(t, err)
}
