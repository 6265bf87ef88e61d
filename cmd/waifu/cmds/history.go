package cmds

import (
	"fmt"
	"os"
	"time"

	"github.com/go-go-golems/waifu-coder/pkg/chat"
	"github.com/go-go-golems/waifu-coder/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show, export, import and clear the active persona's chat",
	}
	cmd.AddCommand(
		newHistoryShowCommand(),
		newHistoryExportCommand(),
		newHistoryImportCommand(),
		newHistoryClearCommand(),
		newHistoryStatsCommand(),
	)
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the chat history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				p, ok := app.Registry.Active()
				if !ok {
					return chat.ErrNoPersonaSelected
				}
				msgs := app.Log.All(p.ID)
				if last > 0 {
					msgs = conversation.Tail(msgs, last)
				}
				for _, m := range msgs {
					who := "you"
					if m.Role == conversation.RoleAssistant {
						who = p.Name
					}
					marker := ""
					if m.Fallback {
						marker = " (offline)"
					}
					fmt.Printf("[%s] %s%s: %s\n", m.Timestamp.Format(time.Kitchen), who, marker, m.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&last, "last", 0, "Only show the last N messages")
	return cmd
}

func newHistoryExportCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the chat history as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				snap, err := app.Chat.ExportHistory(cmd.Context())
				if err != nil {
					return err
				}
				b, err := conversation.EncodeSnapshot(snap)
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = fmt.Println(string(b))
					return err
				}
				if err := os.WriteFile(output, b, 0o644); err != nil {
					return errors.Wrapf(err, "could not write %s", output)
				}
				fmt.Fprintf(os.Stderr, "Chat exported to %s\n", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (stdout by default)")
	return cmd
}

func newHistoryImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the chat history with an exported one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "could not read %s", args[0])
			}
			snap, err := conversation.DecodeSnapshot(b)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(app *App) error {
				return app.Chat.ImportHistory(cmd.Context(), snap)
			})
		},
	}
}

func newHistoryClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the chat with the active persona",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				_, err := app.Chat.ClearHistory(cmd.Context())
				if errors.Is(err, chat.ErrNotConfirmed) {
					fmt.Fprintln(os.Stderr, "Cancelled.")
					return nil
				}
				return err
			})
		},
	}
}

func newHistoryStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the chat with the active persona",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				sum, err := app.Chat.Summary(cmd.Context())
				if err != nil {
					return err
				}
				if sum.MessageCount == 0 {
					fmt.Println("No conversation history")
					return nil
				}
				b, err := yaml.Marshal(sum)
				if err != nil {
					return err
				}
				fmt.Print(string(b))
				return nil
			})
		},
	}
}
