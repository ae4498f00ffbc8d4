package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	type route struct {
		Agent string `json:"agent"`
	}
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"agent":"broker"}`, "broker"},
		{"fenced", "```json\n{\"agent\": \"booking\"}\n```", "booking"},
		{"bare fence", "```\n{\"agent\": \"profile\"}\n```", "profile"},
		{"prose", `Sure! Here you go: {"agent": "default"} hope that helps`, "default"},
		{"braces in string", `noise {"agent":"bro}ker"} tail`, "bro}ker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r route
			require.NoError(t, ExtractJSON(tt.raw, &r))
			assert.Equal(t, tt.want, r.Agent)
		})
	}
}

func TestExtractJSON_NoObject(t *testing.T) {
	var v map[string]any
	assert.ErrorIs(t, ExtractJSON("I think broker", &v), ErrNoJSON)
}

func TestMessageHelpers(t *testing.T) {
	m := Message{Role: RoleUser, Content: []Block{ToolResult("t1", "ok", false)}}
	assert.False(t, m.IsPlainUser())
	assert.True(t, m.HasToolBlocks())
	assert.True(t, UserText("hi").IsPlainUser())

	resp := &Response{Content: []Block{
		TextBlock("one"),
		{Type: BlockToolUse, ID: "a", Name: "x"},
		TextBlock("two"),
	}}
	assert.Equal(t, "one\ntwo", resp.Text())
	assert.Len(t, resp.ToolUses(), 1)
}
