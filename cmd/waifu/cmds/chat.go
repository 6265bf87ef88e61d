package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/waifu-coder/pkg/chat"
	"github.com/go-go-golems/waifu-coder/pkg/conversation/builder"
	"github.com/go-go-golems/waifu-coder/pkg/llm"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the active persona",
	}
	cmd.AddCommand(
		newChatSendCommand(),
		newChatReplCommand(),
		newChatWindowCommand(),
	)
	return cmd
}

func newChatSendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message...>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				return sendAndPrint(cmd.Context(), app, os.Stdout, strings.Join(args, " "))
			})
		},
	}
}

func sendAndPrint(ctx context.Context, app *App, w io.Writer, text string) error {
	res, err := app.Chat.Send(ctx, text)
	if err != nil {
		return err
	}
	p, ok := app.Registry.Get(res.PersonaID)
	name := "assistant"
	if ok {
		name = p.Name
	}
	_, err = fmt.Fprintf(w, "%s: %s\n", name, res.Reply.Content)
	return err
}

const replHelp = `Commands:
  /clear          clear the chat with the active persona
  /list           list personas
  /stats          summarize the chat
  /select <id>    switch persona
  /quit           leave
Anything else is sent to the active persona.`

func newChatReplCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive chat with the active persona",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				return runRepl(cmd.Context(), app, os.Stdin, os.Stdout, isatty.IsTerminal(os.Stdin.Fd()))
			})
		},
	}
}

// runRepl reads lines from r until /quit or EOF. The prompt is only
// printed when interactive is set.
func runRepl(ctx context.Context, app *App, r io.Reader, w io.Writer, interactive bool) error {
	if p, ok := app.Registry.Active(); ok {
		fmt.Fprintf(w, "Chatting with %s. /help for commands.\n", p.Name)
	} else {
		fmt.Fprintln(w, "Select a waifu persona to start chatting and coding together! ♡ (/list, /select <id>)")
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if interactive {
			fmt.Fprint(w, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			fields := strings.Fields(line)
			switch fields[0] {
			case "/quit", "/exit":
				return nil
			case "/help":
				fmt.Fprintln(w, replHelp)
			case "/clear":
				if _, err := app.Chat.ClearHistory(ctx); err != nil && !errors.Is(err, chat.ErrNotConfirmed) {
					log.Debug().Err(err).Msg("Clear failed")
				}
			case "/stats":
				sum, err := app.Chat.Summary(ctx)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "%d messages (%d from you, %d from %s) over %s\n",
					sum.MessageCount, sum.UserMessages, sum.AssistantMessages, sum.Persona.Name, sum.Duration)
			case "/list":
				for _, p := range app.Registry.List() {
					fmt.Fprintf(w, "  %s  %s (%s)\n", p.ID, p.Name, p.Type)
				}
			case "/select":
				if len(fields) != 2 {
					fmt.Fprintln(w, "usage: /select <id>")
					continue
				}
				res, err := app.Chat.SelectPersona(ctx, fields[1])
				if err != nil {
					continue
				}
				if res.Welcome != "" {
					fmt.Fprintf(w, "%s: %s\n", res.Persona.Name, res.Welcome)
				}
			default:
				fmt.Fprintf(w, "unknown command %s\n", fields[0])
			}
			continue
		}

		if err := sendAndPrint(ctx, app, w, line); err != nil {
			// rejections were already reported as events
			log.Debug().Err(err).Msg("Send rejected")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type windowOutput struct {
	Model        string         `yaml:"model"`
	PromptTokens int            `yaml:"prompt_tokens_estimate"`
	Messages     []builder.Turn `yaml:"messages"`
}

func newChatWindowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "window [message...]",
		Short: "Print the request that would be sent, without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				p, ok := app.Registry.Active()
				if !ok {
					return chat.ErrNoPersonaSelected
				}
				payload := builder.Build(p, app.Log.All(p.ID), strings.Join(args, " "))
				out := windowOutput{
					Model:    app.Config.LLMSettings().Model,
					Messages: payload.Messages,
				}
				n, err := llm.CountTokens(payload)
				if err != nil {
					log.Warn().Err(err).Msg("Could not count tokens")
				}
				out.PromptTokens = n

				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				return enc.Encode(out)
			})
		},
	}
}
