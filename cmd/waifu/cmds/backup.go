package cmds

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-go-golems/waifu-coder/pkg/backup"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up personas, chats and settings",
	}
	cmd.AddCommand(newBackupExportCommand())
	return cmd
}

func newBackupExportCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write everything except the API key as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				b := backup.Build(app.Config.Settings(), app.Registry, app.Log, time.Now())

				var w io.Writer = os.Stdout
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return errors.Wrapf(err, "could not create %s", output)
					}
					defer f.Close()
					w = f
				}
				if err := backup.Write(cmd.Context(), w, b); err != nil {
					return err
				}
				if output != "" && output != "-" {
					fmt.Fprintf(os.Stderr, "Backup written to %s\n", output)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (stdout by default)")
	return cmd
}
