package personas

import (
	"time"

	"github.com/huandu/go-clone"
)

// Type is the trait tag of a persona. The built-in set is fixed; Custom
// marks a persona whose behavior comes only from its own system prompt.
type Type string

const (
	TypeTsundere Type = "tsundere"
	TypeKuudere  Type = "kuudere"
	TypeDandere  Type = "dandere"
	TypeYandere  Type = "yandere"
	TypeGenki    Type = "genki"
	TypeCustom   Type = "custom"
)

var knownTypes = []Type{TypeTsundere, TypeKuudere, TypeDandere, TypeYandere, TypeGenki, TypeCustom}

func KnownTypes() []Type {
	return append([]Type(nil), knownTypes...)
}

func (t Type) IsKnown() bool {
	for _, k := range knownTypes {
		if k == t {
			return true
		}
	}
	return false
}

func (t Type) String() string { return string(t) }

// Persona is a named behavioral configuration the conversation is held as.
// JSON names follow the persisted layout.
type Persona struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Type         Type      `json:"type" yaml:"type"`
	SystemPrompt string    `json:"systemPrompt" yaml:"system_prompt"`
	Skills       []string  `json:"skills" yaml:"skills"`
	AvatarRef    string    `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	CreatedAt    time.Time `json:"createdAt" yaml:"created_at"`
	LastUsedAt   time.Time `json:"lastUsed" yaml:"last_used"`
	MessageCount int       `json:"messageCount" yaml:"message_count"`
}

func (p *Persona) Clone() *Persona {
	if p == nil {
		return nil
	}
	return clone.Clone(p).(*Persona)
}

// CreateRequest holds the user-supplied fields of a new persona.
type CreateRequest struct {
	Name         string
	Type         Type
	SystemPrompt string
	Skills       []string
	AvatarRef    string
}
