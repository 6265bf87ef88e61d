package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// PersonaRef identifies the persona a snapshot was taken from.
type PersonaRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Snapshot is the portable export of one persona's history.
type Snapshot struct {
	Persona    PersonaRef `json:"persona"`
	Messages   []Message  `json:"messages"`
	ExportedAt time.Time  `json:"exportedAt"`
}

const snapshotSchema = `{
  "type": "object",
  "required": ["persona", "messages"],
  "properties": {
    "persona": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "id": {"type": "string"},
        "name": {"type": "string"},
        "type": {"type": "string"}
      }
    },
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["content", "role"],
        "properties": {
          "content": {"type": "string"},
          "role": {"enum": ["user", "assistant"]},
          "timestamp": {"type": "string"},
          "fallback": {"type": "boolean"}
        }
      }
    },
    "exportedAt": {"type": "string"}
  }
}`

// ErrInvalidSnapshot is returned when imported data does not match the
// snapshot layout.
var ErrInvalidSnapshot = errors.New("invalid conversation snapshot")

// Export returns a snapshot of personaID's history.
func (l *Log) Export(persona PersonaRef, now time.Time) *Snapshot {
	return &Snapshot{
		Persona:    persona,
		Messages:   l.All(persona.ID),
		ExportedAt: now,
	}
}

// Import replaces personaID's history with the snapshot's messages, keeping
// the last MaxMessages.
func (l *Log) Import(ctx context.Context, personaID string, s *Snapshot) error {
	if s == nil {
		return errors.Wrap(ErrInvalidSnapshot, "empty snapshot")
	}
	return l.Replace(ctx, personaID, s.Messages)
}

func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "could not encode snapshot")
	}
	return b, nil
}

// DecodeSnapshot validates b against the snapshot schema before decoding it.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(snapshotSchema),
		gojsonschema.NewBytesLoader(b),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSnapshot, err.Error())
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, errors.Wrap(ErrInvalidSnapshot, strings.Join(msgs, "; "))
	}

	s := &Snapshot{}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, errors.Wrap(ErrInvalidSnapshot, err.Error())
	}
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	return s, nil
}
