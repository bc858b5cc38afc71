package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   Text(content),
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestTruncate(t *testing.T) {
	t.Run("should return empty input unchanged", func(t *testing.T) {
		assert.Empty(t, Truncate(nil, 1000))
		assert.Empty(t, Truncate([]Message{}, 1000))
	})

	t.Run("should keep everything under a generous budget", func(t *testing.T) {
		msgs := []Message{
			fixedMessage("system", "be helpful"),
			fixedMessage("user", "hello"),
			fixedMessage("assistant", "hi"),
		}

		out := Truncate(msgs, 100000)
		assert.Equal(t, msgs, out)
	})

	t.Run("should always keep the system message", func(t *testing.T) {
		msgs := []Message{
			fixedMessage("system", strings.Repeat("s", 40)),
		}
		for i := 0; i < 20; i++ {
			msgs = append(msgs, fixedMessage("user", strings.Repeat("m", 40)))
		}

		out := Truncate(msgs, 50)
		require.NotEmpty(t, out)
		assert.Equal(t, "system", out[0].Role)
		// Tight budget keeps the system message plus the newest message.
		assert.Less(t, len(out), len(msgs))
	})

	t.Run("should include the newest message even over budget", func(t *testing.T) {
		msgs := []Message{
			fixedMessage("user", strings.Repeat("x", 10000)),
		}

		out := Truncate(msgs, 10)
		require.Len(t, out, 1)
		assert.Equal(t, msgs[0], out[0])
	})

	t.Run("should drop oldest messages first", func(t *testing.T) {
		msgs := []Message{
			fixedMessage("user", "oldest "+strings.Repeat("a", 200)),
			fixedMessage("assistant", "middle "+strings.Repeat("b", 200)),
			fixedMessage("user", "newest "+strings.Repeat("c", 200)),
		}

		// Budget fits roughly two messages.
		out := Truncate(msgs, 160)
		require.NotEmpty(t, out)
		last := out[len(out)-1]
		assert.True(t, strings.HasPrefix(last.TextContent(), "newest"))
		for _, m := range out {
			assert.False(t, strings.HasPrefix(m.TextContent(), "oldest"))
		}
	})

	t.Run("should preserve chronological order", func(t *testing.T) {
		msgs := []Message{
			fixedMessage("system", "sys"),
			fixedMessage("user", "one"),
			fixedMessage("assistant", "two"),
			fixedMessage("user", "three"),
		}

		out := Truncate(msgs, 100000)
		require.Len(t, out, 4)
		assert.Equal(t, "sys", out[0].TextContent())
		assert.Equal(t, "one", out[1].TextContent())
		assert.Equal(t, "two", out[2].TextContent())
		assert.Equal(t, "three", out[3].TextContent())
	})

	t.Run("should retain more messages as the budget grows", func(t *testing.T) {
		msgs := []Message{fixedMessage("system", "sys")}
		for i := 0; i < 30; i++ {
			role := "user"
			if i%2 == 1 {
				role = "assistant"
			}
			msgs = append(msgs, fixedMessage(role, strings.Repeat("m", 120)))
		}

		prev := 0
		for _, budget := range []int{10, 50, 100, 200, 400, 800, 1600, 100000} {
			out := Truncate(msgs, budget)

			kept := 0
			for _, m := range out {
				if m.Role != "system" {
					kept++
				}
			}
			assert.GreaterOrEqual(t, kept, prev, "budget %d retained fewer messages than a smaller budget", budget)
			prev = kept
		}
		assert.Equal(t, 30, prev)
	})

	t.Run("should be idempotent for a fitting history", func(t *testing.T) {
		msgs := []Message{
			fixedMessage("system", "sys"),
			fixedMessage("user", "question"),
			fixedMessage("assistant", "answer"),
		}

		once := Truncate(msgs, 100000)
		twice := Truncate(once, 100000)
		assert.Equal(t, once, twice)
	})
}
