package conversation

import (
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one entry of a conversation log. Messages are values and are
// never modified after they are appended.
type Message struct {
	Content   string    `json:"content" yaml:"content"`
	Role      Role      `json:"role" yaml:"role"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	// Fallback marks an assistant message that was synthesized locally
	// because the remote call failed.
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

func NewUserMessage(content string, ts time.Time) Message {
	return Message{Content: content, Role: RoleUser, Timestamp: ts}
}

func NewAssistantMessage(content string, ts time.Time) Message {
	return Message{Content: content, Role: RoleAssistant, Timestamp: ts}
}

func NewFallbackMessage(content string, ts time.Time) Message {
	return Message{Content: content, Role: RoleAssistant, Timestamp: ts, Fallback: true}
}
