package cmds

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-go-golems/waifu-coder/pkg/chat"
	"github.com/go-go-golems/waifu-coder/pkg/personas"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewPersonaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Create, select and delete personas",
	}
	cmd.AddCommand(
		newPersonaTypesCommand(),
		newPersonaListCommand(),
		newPersonaCreateCommand(),
		newPersonaSelectCommand(),
		newPersonaDeleteCommand(),
		newPersonaShowCommand(),
	)
	return cmd
}

func newPersonaTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List persona types and their descriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				catalog := app.Registry.Catalog()
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, t := range catalog.TypeNames() {
					spec := catalog.Spec(t)
					fmt.Fprintf(w, "%s\t%s\t%s\n", t, spec.Name, spec.Description)
				}
				return w.Flush()
			})
		},
	}
}

func newPersonaListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List personas, most recently used first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				active, _ := app.Registry.Active()
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "\tID\tNAME\tTYPE\tMESSAGES\tLAST USED")
				for _, p := range app.Registry.List() {
					mark := ""
					if active != nil && active.ID == p.ID {
						mark = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
						mark, p.ID, p.Name, p.Type, p.MessageCount, p.LastUsedAt.Format(time.RFC822))
				}
				return w.Flush()
			})
		},
	}
}

func newPersonaCreateCommand() *cobra.Command {
	var (
		name      string
		typ       string
		prompt    string
		skills    []string
		avatar    string
		orDefault bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a persona and select it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				t := personas.Type(strings.ToLower(typ))
				if prompt == "" && t != personas.TypeCustom {
					prompt = app.Registry.Catalog().SystemPrompt(t)
				}
				res, err := app.Chat.CreatePersona(cmd.Context(), personas.CreateRequest{
					Name:         name,
					Type:         t,
					SystemPrompt: prompt,
					Skills:       skills,
					AvatarRef:    avatar,
				}, orDefault)
				if err != nil {
					return err
				}
				fmt.Printf("%s (%s)\n", res.Persona.Name, res.Persona.ID)
				printWelcome(res.Persona, res.Welcome)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Persona name")
	cmd.Flags().StringVar(&typ, "type", string(personas.TypeTsundere), "Persona type")
	cmd.Flags().StringVar(&prompt, "system-prompt", "", "System prompt (defaults to the type's prompt)")
	cmd.Flags().StringSliceVar(&skills, "skills", nil, "Comma separated skills")
	cmd.Flags().StringVar(&avatar, "avatar", "", "Avatar reference")
	cmd.Flags().BoolVar(&orDefault, "or-default", false, "Create a default persona if fields are missing")
	return cmd
}

func newPersonaSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Make a persona the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				res, err := app.Chat.SelectPersona(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printWelcome(res.Persona, res.Welcome)
				return nil
			})
		},
	}
}

func newPersonaDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a persona and its chat history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				err := app.Chat.DeletePersona(cmd.Context(), args[0])
				if errors.Is(err, chat.ErrNotConfirmed) {
					fmt.Fprintln(os.Stderr, "Cancelled.")
					return nil
				}
				return err
			})
		},
	}
}

func newPersonaShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a persona (the active one by default) as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				var (
					p  *personas.Persona
					ok bool
				)
				if len(args) == 1 {
					p, ok = app.Registry.Get(args[0])
					if !ok {
						return &personas.NotFoundError{ID: args[0]}
					}
				} else {
					p, ok = app.Registry.Active()
					if !ok {
						return chat.ErrNoPersonaSelected
					}
				}
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				return enc.Encode(p)
			})
		},
	}
}

func printWelcome(p *personas.Persona, welcome string) {
	if welcome == "" {
		return
	}
	fmt.Printf("\n%s: %s\n", p.Name, welcome)
}
