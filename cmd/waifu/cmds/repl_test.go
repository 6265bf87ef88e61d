package cmds

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/go-go-golems/waifu-coder/pkg/chat"
	"github.com/go-go-golems/waifu-coder/pkg/conversation"
	"github.com/go-go-golems/waifu-coder/pkg/conversation/builder"
	"github.com/go-go-golems/waifu-coder/pkg/fallback"
	"github.com/go-go-golems/waifu-coder/pkg/llm"
	"github.com/go-go-golems/waifu-coder/pkg/personas"
	"github.com/go-go-golems/waifu-coder/pkg/store"
	"github.com/stretchr/testify/require"
)

type staticKey string

func (k staticKey) APIKey() string { return string(k) }

func newTestApp(t *testing.T, completer llm.Completer) *App {
	t.Helper()
	ctx := context.Background()
	s := store.NewInMemoryStore()

	l, err := conversation.NewLog(ctx, s)
	require.NoError(t, err)
	r, err := personas.NewRegistry(ctx, s, personas.WithHistoryDeleter(l))
	require.NoError(t, err)
	gen, err := fallback.New(fallback.WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)

	return &App{
		Store:     s,
		Registry:  r,
		Log:       l,
		Fallbacks: gen,
		Chat:      chat.New(r, l, completer, gen, staticKey("csk-test-123456"), chat.WithConfirmer(chat.AlwaysConfirm)),
	}
}

func TestRunRepl(t *testing.T) {
	completer := llm.CompleterFunc(func(_ context.Context, p *builder.Payload) (string, error) {
		return "echo: " + p.Messages[len(p.Messages)-1].Content, nil
	})
	app := newTestApp(t, completer)
	ctx := context.Background()

	res, err := app.Chat.CreatePersona(ctx, personas.CreateRequest{Name: "Rin", Type: "genki", SystemPrompt: "You are Rin."}, false)
	require.NoError(t, err)

	in := strings.NewReader("hello\n\n/list\n/bogus\nsecond\n/stats\n/clear\n/quit\nnot sent\n")
	var out bytes.Buffer
	require.NoError(t, runRepl(ctx, app, in, &out, false))

	s := out.String()
	require.Contains(t, s, "Chatting with Rin.")
	require.Contains(t, s, "Rin: echo: hello")
	require.Contains(t, s, "Rin: echo: second")
	require.Contains(t, s, res.Persona.ID)
	require.Contains(t, s, "unknown command /bogus")
	require.Contains(t, s, "4 messages (2 from you, 2 from Rin)")
	require.NotContains(t, s, "> ")
	require.NotContains(t, s, "not sent")
	require.Equal(t, 0, app.Log.Len(res.Persona.ID))
}

func TestRunRepl_NoPersona(t *testing.T) {
	app := newTestApp(t, llm.CompleterFunc(func(context.Context, *builder.Payload) (string, error) {
		t.Fatal("completer should not be called")
		return "", nil
	}))

	var out bytes.Buffer
	require.NoError(t, runRepl(context.Background(), app, strings.NewReader("hi\n"), &out, false))
	require.Contains(t, out.String(), "Select a waifu persona")
}

func TestRunRepl_InteractivePrompt(t *testing.T) {
	app := newTestApp(t, llm.CompleterFunc(func(context.Context, *builder.Payload) (string, error) {
		return "ok", nil
	}))

	var out bytes.Buffer
	require.NoError(t, runRepl(context.Background(), app, strings.NewReader("\n/quit\n"), &out, true))
	require.Equal(t, 2, strings.Count(out.String(), "> "))
}

func TestSendAndPrint_Fallback(t *testing.T) {
	app := newTestApp(t, llm.CompleterFunc(func(context.Context, *builder.Payload) (string, error) {
		return "", &llm.RemoteCallError{StatusCode: 503}
	}))
	ctx := context.Background()
	_, err := app.Chat.CreatePersona(ctx, personas.CreateRequest{Name: "Aria", Type: "kuudere", SystemPrompt: "You are Aria."}, false)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, sendAndPrint(ctx, app, &out, "why is my loop infinite"))
	require.True(t, strings.HasPrefix(out.String(), "Aria: "))
	require.Contains(t, out.String(), `"why is my loop infinite"`)
}
