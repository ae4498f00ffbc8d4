package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/bookingbot/internal/llm"
)

func setupMiniredis(t *testing.T, maxMsgs int) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, time.Hour, maxMsgs), mr
}

func TestStore_AppendAndGet(t *testing.T) {
	store, _ := setupMiniredis(t, 40)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", llm.UserText("Hello")))
	require.NoError(t, store.Append(ctx, "u1", llm.AssistantText("Hi there!")))

	msgs, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Text())
	assert.Equal(t, "Hi there!", msgs[1].Text())
}

func TestStore_TrimKeepsUserTurnFirst(t *testing.T) {
	store, _ := setupMiniredis(t, 4)
	ctx := context.Background()

	history := []llm.Message{
		llm.UserText("A"),
		{Role: llm.RoleAssistant, Content: []llm.Block{{Type: llm.BlockToolUse, ID: "t1", Name: "search_properties"}}},
		{Role: llm.RoleUser, Content: []llm.Block{llm.ToolResult("t1", "results", false)}},
		llm.AssistantText("B"),
		llm.UserText("C"),
		llm.AssistantText("D"),
	}
	require.NoError(t, store.Save(ctx, "u1", history))

	// The last 4 start with a tool_result turn, which is dropped.
	msgs, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "C", msgs[0].Text())
	assert.Equal(t, "D", msgs[1].Text())
}

func TestStore_CapBoundsHistory(t *testing.T) {
	store, _ := setupMiniredis(t, 40)
	ctx := context.Background()

	var history []llm.Message
	for i := 0; i < 30; i++ {
		history = append(history, llm.UserText(fmt.Sprintf("q%d", i)), llm.AssistantText(fmt.Sprintf("a%d", i)))
	}
	require.NoError(t, store.Save(ctx, "u1", history))

	msgs, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, msgs, 40)
	assert.Equal(t, "q10", msgs[0].Text())
}

func TestStore_TTL(t *testing.T) {
	store, mr := setupMiniredis(t, 40)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", llm.UserText("Hello")))
	mr.FastForward(61 * time.Minute)

	msgs, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_Clear(t *testing.T) {
	store, _ := setupMiniredis(t, 40)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", llm.UserText("Hello")))
	require.NoError(t, store.Clear(ctx, "u1"))

	msgs, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_UnknownVersionTreatedAsAbsent(t *testing.T) {
	store, mr := setupMiniredis(t, 40)
	ctx := context.Background()

	require.NoError(t, mr.Set("u1:conversation", `{"v":2,"messages":[{"role":"user","content":[{"type":"text","text":"x"}]}]}`))
	msgs, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, mr.Set("u2:conversation", `[{"role":"user","content":"legacy"}]`))
	msgs, err = store.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_IsolatedByUser(t *testing.T) {
	store, _ := setupMiniredis(t, 40)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", llm.UserText("U1")))
	require.NoError(t, store.Append(ctx, "u2", llm.UserText("U2")))

	msgs, _ := store.Get(ctx, "u1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "U1", msgs[0].Text())

	msgs, _ = store.Get(ctx, "u2")
	require.Len(t, msgs, 1)
	assert.Equal(t, "U2", msgs[0].Text())
}

func TestStore_AssistantFirstHistoryKeptWhenUncut(t *testing.T) {
	store, _ := setupMiniredis(t, 40)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", llm.AssistantText("[FOLLOW_UP] How was your visit?")))
	msgs, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleAssistant, msgs[0].Role)
}
