package cmds

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-go-golems/waifu-coder/pkg/config"
	"github.com/go-go-golems/waifu-coder/pkg/llm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change settings",
	}
	cmd.AddCommand(newConfigShowCommand(), newConfigSetCommand(), newConfigModelsCommand())
	return cmd
}

type shownSettings struct {
	config.Settings `yaml:",inline"`
	APIKey          string `yaml:"api-key"`
	APIKeyValid     bool   `yaml:"api-key-valid"`
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved settings (API key masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				s := app.Config.Settings()
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				return enc.Encode(shownSettings{
					Settings:    s,
					APIKey:      config.MaskAPIKey(s.APIKey),
					APIKeyValid: config.IsValidAPIKey(s.APIKey),
				})
			})
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: fmt.Sprintf("Persist a setting (%s)", strings.Join(config.SettableKeys, ", ")),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				if err := app.Config.Set(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Saved %s\n", args[0])
				return nil
			})
		},
	}
}

func newConfigModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the known models",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range llm.AvailableModels {
				fmt.Println(m)
			}
			return nil
		},
	}
}
