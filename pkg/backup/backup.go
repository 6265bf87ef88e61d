// Package backup exports everything the application persists, except the
// API key, as one JSON document.
package backup

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/go-go-golems/waifu-coder/pkg/config"
	"github.com/go-go-golems/waifu-coder/pkg/conversation"
	"github.com/go-go-golems/waifu-coder/pkg/personas"
	"github.com/pkg/errors"
)

type Config struct {
	Theme             string `json:"theme"`
	AnimationsEnabled bool   `json:"animationsEnabled"`
	CurrentModel      string `json:"currentModel"`
}

type Backup struct {
	Config      Config                            `json:"config"`
	Personas    []*personas.Persona               `json:"personas"`
	ChatHistory map[string][]conversation.Message `json:"chatHistory"`
	ExportedAt  time.Time                         `json:"exportedAt"`
}

// Build collects the current state.
func Build(settings config.Settings, registry *personas.Registry, log *conversation.Log, now time.Time) *Backup {
	b := &Backup{
		Config: Config{
			Theme:             settings.Theme,
			AnimationsEnabled: settings.AnimationsEnabled,
			CurrentModel:      settings.Model,
		},
		Personas:    registry.List(),
		ChatHistory: map[string][]conversation.Message{},
		ExportedAt:  now,
	}
	for _, id := range log.PersonaIDs() {
		b.ChatHistory[id] = log.All(id)
	}
	return b
}

func Write(_ context.Context, w io.Writer, b *Backup) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return errors.Wrap(err, "could not write backup")
	}
	return nil
}
