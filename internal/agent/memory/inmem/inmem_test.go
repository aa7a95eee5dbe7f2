package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/agent/memory"
)

func TestStoreAppendAndLoad(t *testing.T) {
	store := New()
	ctx := context.Background()
	msg := memory.Message{Role: memory.RoleUser, Content: "hello", Timestamp: time.Now()}
	require.NoError(t, store.AppendMessages(ctx, "thread-1", "Greeting", msg))

	th, err := store.LoadThread(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, th.Messages, 1)
	require.Equal(t, "hello", th.Messages[0].Content)
	require.Equal(t, "Greeting", th.Title)
}

func TestStoreIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.AppendMessages(ctx, "thread-1", "t", memory.Message{Role: memory.RoleUser, Content: "a"}))
	th, err := store.LoadThread(ctx, "thread-1")
	require.NoError(t, err)
	th.Messages[0].Content = "mutated"

	th2, err := store.LoadThread(ctx, "thread-1")
	require.NoError(t, err)
	require.Equal(t, "a", th2.Messages[0].Content, "store mutated by caller")
}

func TestLoadThread_MissingReturnsEmpty(t *testing.T) {
	store := New()
	th, err := store.LoadThread(context.Background(), "nope")
	require.NoError(t, err)
	require.Equal(t, "nope", th.ThreadID)
	require.Empty(t, th.Messages)
}

func TestAppendMessages_TrimsButKeepsSystemPrompt(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.AppendMessages(ctx, "t", "Title", memory.Message{Role: memory.RoleSystem, Content: "you are a helpful agent"}))

	for i := 0; i < MaxRetainedMessages+10; i++ {
		require.NoError(t, store.AppendMessages(ctx, "t", "Title", memory.Message{Role: memory.RoleUser, Content: "msg", Timestamp: time.Now()}))
	}

	th, err := store.LoadThread(ctx, "t")
	require.NoError(t, err)
	require.Equal(t, memory.RoleSystem, th.Messages[0].Role, "system prompt must survive trimming")
	require.LessOrEqual(t, len(th.Messages), MaxRetainedMessages+1)
}

func TestAppendMessages_NeverCutsBeforeToolResult(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < MaxRetainedMessages-1; i++ {
		require.NoError(t, store.AppendMessages(ctx, "t", "Title", memory.Message{Role: memory.RoleUser, Content: "filler"}))
	}
	require.NoError(t, store.AppendMessages(ctx, "t", "Title",
		memory.Message{Role: memory.RoleAssistant, Content: "calling tool"},
		memory.Message{Role: memory.RoleTool, Content: "tool result"},
	))
	// Push past the retention window so the assistant/tool pair sits right
	// at the trim boundary.
	for i := 0; i < MaxRetainedMessages-1; i++ {
		require.NoError(t, store.AppendMessages(ctx, "t", "Title", memory.Message{Role: memory.RoleUser, Content: "more filler"}))
	}

	th, err := store.LoadThread(ctx, "t")
	require.NoError(t, err)
	require.NotEqual(t, memory.RoleTool, th.Messages[0].Role, "window must not start mid tool exchange")
}

func TestSliceReader_Latest(t *testing.T) {
	r := memory.NewSliceReader([]memory.Message{
		{Role: memory.RoleUser, Content: "first"},
		{Role: memory.RoleAssistant, Content: "reply 1"},
		{Role: memory.RoleAssistant, Content: "reply 2"},
	})
	latest, ok := r.Latest(memory.RoleAssistant)
	require.True(t, ok)
	require.Equal(t, "reply 2", latest.Content)

	_, ok = r.Latest(memory.RoleTool)
	require.False(t, ok)
}
