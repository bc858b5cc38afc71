package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, string) {
	tempDir := t.TempDir()
	s, err := New(tempDir)
	require.NoError(t, err)
	return s, tempDir
}

func TestStore_Create(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	conv, err := s.Create(ctx, "test-session", "gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "test-session", conv.ID)
	assert.Equal(t, "gpt-4.1", conv.Model)
	assert.Empty(t, conv.Messages)

	// Creating again returns the stored conversation unchanged.
	again, err := s.Create(ctx, "test-session", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", again.Model)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultTitle, entries[0].Title)
}

func TestStore_ValidateSessionID(t *testing.T) {
	s, _ := setupTestStore(t)

	tests := []struct {
		name      string
		id        string
		shouldErr bool
	}{
		{"valid id", "test-session", false},
		{"empty id", "", true},
		{"reserved id", "index", true},
		{"path traversal", "../etc/passwd", true},
		{"forward slash", "test/session", true},
		{"backslash", "test\\session", true},
		{"null byte", "test\x00session", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.validateSessionID(tt.id)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_Append(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "test-session", "gpt-4.1")
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, "test-session", UserMessage("Hello, world!")))
	require.NoError(t, s.Append(ctx, "test-session", AssistantMessage(Text("Hi there."), nil)))

	conv, err := s.Get(ctx, "test-session")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.Equal(t, "Hello, world!", conv.Messages[0].TextContent())
	assert.Equal(t, "assistant", conv.Messages[1].Role)
	assert.Equal(t, conv.Messages[1].Timestamp, conv.UpdatedAt)
}

func TestStore_AppendToMissingConversation(t *testing.T) {
	s, _ := setupTestStore(t)

	err := s.Append(context.Background(), "missing", UserMessage("hello"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AppendToolMessages(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "test-session", "gpt-4.1")
	require.NoError(t, err)

	calls := []ToolCall{{
		ID:   "call_1",
		Type: "function",
		Function: ToolCallFunction{
			Name:      "ls",
			Arguments: `{"path":"."}`,
		},
	}}
	require.NoError(t, s.Append(ctx, "test-session", AssistantMessage(nil, calls)))
	require.NoError(t, s.Append(ctx, "test-session", ToolMessage("call_1", `{"count":2}`)))

	conv, err := s.Get(ctx, "test-session")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Nil(t, conv.Messages[0].Content)
	require.Len(t, conv.Messages[0].ToolCalls, 1)
	assert.Equal(t, "ls", conv.Messages[0].ToolCalls[0].Function.Name)
	assert.Equal(t, "call_1", conv.Messages[1].ToolCallID)
}

func TestStore_GetNonExistent(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.Get(context.Background(), "non-existent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_TitleDerivation(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("should use first user message as title", func(t *testing.T) {
		_, err := s.Create(ctx, "short", "gpt-4.1")
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, "short", UserMessage("What is the weather?")))

		entries, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, "What is the weather?", findEntry(t, entries, "short").Title)
	})

	t.Run("should truncate long titles to 50 chars with ellipsis", func(t *testing.T) {
		long := strings.Repeat("a", 80)
		_, err := s.Create(ctx, "long", "gpt-4.1")
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, "long", UserMessage(long)))

		entries, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("a", 50)+"...", findEntry(t, entries, "long").Title)
	})

	t.Run("should not retitle after first derivation", func(t *testing.T) {
		_, err := s.Create(ctx, "stable", "gpt-4.1")
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, "stable", UserMessage("first question")))
		require.NoError(t, s.Append(ctx, "stable", UserMessage("second question")))

		entries, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, "first question", findEntry(t, entries, "stable").Title)
	})

	t.Run("should keep default title until a user message arrives", func(t *testing.T) {
		_, err := s.Create(ctx, "systemonly", "gpt-4.1")
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, "systemonly", SystemMessage("instructions")))

		entries, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, DefaultTitle, findEntry(t, entries, "systemonly").Title)
	})
}

func TestStore_List(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "older", "gpt-4.1")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = s.Create(ctx, "newer", "gpt-4.1")
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, "older", UserMessage("bump")))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Sorted by updated_at, newest first.
	assert.Equal(t, "older", entries[0].ID)
	assert.Equal(t, 1, entries[0].MessageCount)
}

func TestStore_Delete(t *testing.T) {
	s, dir := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "doomed", "gpt-4.1")
	require.NoError(t, err)

	existed, err := s.Delete(ctx, "doomed")
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = os.Stat(filepath.Join(dir, "doomed.json"))
	assert.True(t, os.IsNotExist(err))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.Get(ctx, "doomed")
	assert.True(t, errors.Is(err, ErrNotFound))

	existed, err = s.Delete(ctx, "doomed")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestStore_Messages(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "test-session", "gpt-4.1")
	require.NoError(t, err)
	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, s.Append(ctx, "test-session", UserMessage(content)))
	}

	t.Run("should return all messages without limit", func(t *testing.T) {
		msgs, err := s.Messages(ctx, "test-session", 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 3)
	})

	t.Run("should return last N messages with limit", func(t *testing.T) {
		msgs, err := s.Messages(ctx, "test-session", 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "two", msgs[0].TextContent())
		assert.Equal(t, "three", msgs[1].TextContent())
	})
}

func TestStore_AtomicWrites(t *testing.T) {
	s, dir := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "test-session", "gpt-4.1")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "test-session", UserMessage("hello")))

	// No temp files left behind after writes complete.
	leftovers, err := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestStore_RoundTrip(t *testing.T) {
	_, dir := setupTestStore(t)
	ctx := context.Background()

	s1, err := New(dir)
	require.NoError(t, err)
	_, err = s1.Create(ctx, "persisted", "claude-3-5-sonnet-latest")
	require.NoError(t, err)
	require.NoError(t, s1.Append(ctx, "persisted", UserMessage("remember me")))

	// A fresh store over the same directory sees identical state.
	s2, err := New(dir)
	require.NoError(t, err)
	conv, err := s2.Get(ctx, "persisted")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "remember me", conv.Messages[0].TextContent())
	assert.Equal(t, "claude-3-5-sonnet-latest", conv.Model)
}

func findEntry(t *testing.T, entries []IndexEntry, id string) IndexEntry {
	t.Helper()
	for _, e := range entries {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("entry %s not found", id)
	return IndexEntry{}
}
