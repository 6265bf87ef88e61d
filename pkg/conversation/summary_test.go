package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/go-go-golems/waifu-coder/pkg/store"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	msgs := []Message{
		NewUserMessage("hi", t0),
		NewAssistantMessage("hello", t0.Add(30*time.Second)),
		NewUserMessage("again", t0.Add(50*time.Minute)),
		NewFallbackMessage("offline", t0.Add(95*time.Minute+59*time.Second)),
	}
	s := Summarize(msgs)
	require.Equal(t, 4, s.MessageCount)
	require.Equal(t, 2, s.UserMessages)
	require.Equal(t, 2, s.AssistantMessages)
	require.Equal(t, 1, s.FallbackMessages)
	require.True(t, s.FirstMessageAt.Equal(t0))
	require.True(t, s.LastMessageAt.Equal(t0.Add(95*time.Minute+59*time.Second)))
	require.Equal(t, "1h 35m", s.Duration)
}

func TestSummarize_ShortHistories(t *testing.T) {
	s := Summarize(nil)
	require.Equal(t, 0, s.MessageCount)
	require.True(t, s.FirstMessageAt.IsZero())
	require.Equal(t, "0 minutes", s.Duration)

	s = Summarize([]Message{NewUserMessage("hi", t0)})
	require.Equal(t, 1, s.UserMessages)
	require.Equal(t, "0 minutes", s.Duration)
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "0 minutes", FormatDuration(0))
	require.Equal(t, "0 minutes", FormatDuration(59*time.Second))
	require.Equal(t, "42 minutes", FormatDuration(42*time.Minute+10*time.Second))
	require.Equal(t, "59 minutes", FormatDuration(59*time.Minute))
	require.Equal(t, "1h 0m", FormatDuration(time.Hour))
	require.Equal(t, "26h 7m", FormatDuration(26*time.Hour+7*time.Minute))
	require.Equal(t, "0 minutes", FormatDuration(-5*time.Minute))
}

func TestLog_Summary(t *testing.T) {
	ctx := context.Background()
	l, err := NewLog(ctx, store.NewInMemoryStore())
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, "p1", NewUserMessage("a", t0)))
	require.NoError(t, l.Append(ctx, "p1", NewAssistantMessage("b", t0.Add(3*time.Minute))))

	s := l.Summary("p1")
	require.Equal(t, 2, s.MessageCount)
	require.Equal(t, "3 minutes", s.Duration)
	require.Equal(t, 0, l.Summary("p2").MessageCount)
}
