package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LoomClaw/LoomClaw/internal/bus"
)

func openTestStore(t *testing.T, partition Partition) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "memory.db"), partition)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetHistory(t *testing.T) {
	store := openTestStore(t, PartitionDaily)

	require.NoError(t, store.SaveMessage("slack", "u1", StoredMessage{Role: "user", Content: "hi"}))
	require.NoError(t, store.SaveMessage("slack", "u1", StoredMessage{Role: "assistant", Content: "hello"}))
	require.NoError(t, store.SaveMessage("slack", "u2", StoredMessage{Role: "user", Content: "other user"}))

	history, err := store.GetHistory("slack", "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "user", history[0].Role)
	require.Equal(t, "hi", history[0].Content)
	require.Equal(t, "assistant", history[1].Role)
}

func TestGetHistoryRespectsLimit(t *testing.T) {
	store := openTestStore(t, PartitionDaily)

	contents := []string{"a", "b", "c", "d", "e"}
	for _, c := range contents {
		require.NoError(t, store.SaveMessage("slack", "u1", StoredMessage{Role: "user", Content: c}))
	}

	history, err := store.GetHistory("slack", "u1", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	// Most recent three, oldest first.
	require.Equal(t, "c", history[0].Content)
	require.Equal(t, "d", history[1].Content)
	require.Equal(t, "e", history[2].Content)
}

func TestToolCallsRoundTrip(t *testing.T) {
	store := openTestStore(t, PartitionNone)

	msg := StoredMessage{
		Role:    "assistant",
		Content: "",
		ToolCalls: []bus.ToolCall{
			{ID: "call-1", Name: "read_file", Arguments: map[string]any{"path": "notes.txt"}},
		},
	}
	require.NoError(t, store.SaveMessage("cli", "u1", msg))

	history, err := store.GetHistory("cli", "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Len(t, history[0].ToolCalls, 1)
	require.Equal(t, "read_file", history[0].ToolCalls[0].Name)
	require.Equal(t, "notes.txt", history[0].ToolCalls[0].Arguments["path"])
}

func TestDailyPartitionStartsFreshConversation(t *testing.T) {
	store := openTestStore(t, PartitionDaily)

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return day1 }
	require.NoError(t, store.SaveMessage("slack", "u1", StoredMessage{Role: "user", Content: "yesterday"}))

	store.now = func() time.Time { return day1.Add(24 * time.Hour) }
	history, err := store.GetHistory("slack", "u1", 10)
	require.NoError(t, err)
	require.Empty(t, history)

	require.NoError(t, store.SaveMessage("slack", "u1", StoredMessage{Role: "user", Content: "today"}))
	history, err = store.GetHistory("slack", "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "today", history[0].Content)
}

func TestNonePartitionKeepsOneConversation(t *testing.T) {
	store := openTestStore(t, PartitionNone)

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return day1 }
	require.NoError(t, store.SaveMessage("slack", "u1", StoredMessage{Role: "user", Content: "before"}))

	store.now = func() time.Time { return day1.Add(40 * 24 * time.Hour) }
	history, err := store.GetHistory("slack", "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestConversationIDDeterministic(t *testing.T) {
	a := conversationID("slack", "u1", "2026-03-01")
	b := conversationID("slack", "u1", "2026-03-01")
	c := conversationID("slack", "u1", "2026-03-02")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestOpenRejectsUnknownPartition(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "memory.db"), Partition("hourly"))
	require.Error(t, err)
}
