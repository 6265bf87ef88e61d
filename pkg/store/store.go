package store

import (
	"context"

	"github.com/pkg/errors"
)

// Keys used by the persisted layout. The configuration keys are owned by
// pkg/config; the store only treats them as opaque strings.
const (
	KeyPersonas          = "waifu_personas"
	KeyChatHistory       = "waifu_chat_history"
	KeyCurrentPersonaID  = "current_persona_id"
	KeyAPIKey            = "cerebras_api_key"
	KeyCurrentModel      = "current_model"
	KeyTheme             = "theme"
	KeyAnimationsEnabled = "animations_enabled"
)

var ErrStoreClosed = errors.New("store is closed")

// Store is a string-keyed persistence backend. Writes are synchronous:
// when Set or Delete returns nil the value is durable for the backend.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
