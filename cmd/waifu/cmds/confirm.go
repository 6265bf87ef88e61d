package cmds

import (
	"context"
	"os"
	"strings"

	"github.com/go-go-golems/waifu-coder/pkg/chat"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-input"
)

// TerminalConfirmer asks y/n questions on the terminal. Without a terminal
// it declines, so destructive commands need --yes in scripts.
type TerminalConfirmer struct {
	ui *input.UI
}

var _ chat.Confirmer = (*TerminalConfirmer)(nil)

func NewTerminalConfirmer() *TerminalConfirmer {
	return &TerminalConfirmer{
		ui: &input.UI{
			Writer: os.Stderr,
			Reader: os.Stdin,
		},
	}
}

func (c *TerminalConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		log.Warn().Str("prompt", prompt).Msg("Not a terminal, declining (use --yes)")
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	answer, err := c.ui.Ask(prompt+" [y/n]", &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch strings.ToLower(answer) {
			case "y", "yes", "n", "no":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "could not read answer")
	}
	a := strings.ToLower(answer)
	return a == "y" || a == "yes", nil
}
