package builder

import (
	"strings"

	"github.com/go-go-golems/waifu-coder/pkg/conversation"
	"github.com/go-go-golems/waifu-coder/pkg/personas"
)

// HistoryWindow is the number of prior messages included in a request.
const HistoryWindow = 10

const defaultSystemPrompt = "You are a helpful AI assistant."

const contextAddendum = `

Additional Context:
- You are chatting in a casual conversation format, not just coding help
- The user might ask about programming, life, anime, or anything else
- Keep responses engaging and in-character
- Use emojis that fit your personality
- If asked about coding, you're always ready to help enthusiastically
- Remember you're part of "Waifu Coder" - a fun coding companion app
- Feel free to ask the user about their projects or interests`

// Turn is one message of a completion request.
type Turn struct {
	Role    conversation.Role `json:"role"`
	Content string            `json:"content"`
}

// Payload is the ordered message list sent to the completion endpoint:
// one system turn, up to HistoryWindow history turns, then the user turn.
type Payload struct {
	Messages []Turn `json:"messages"`
}

func (p *Payload) SystemPrompt() string {
	if p == nil || len(p.Messages) == 0 || p.Messages[0].Role != conversation.RoleSystem {
		return ""
	}
	return p.Messages[0].Content
}

// PayloadBuilder assembles a Payload. It holds no references to shared
// state once Build returns.
type PayloadBuilder struct {
	persona *personas.Persona
	history []conversation.Message
	prompt  string
	window  int
}

func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{window: HistoryWindow}
}

func (b *PayloadBuilder) WithPersona(p *personas.Persona) *PayloadBuilder {
	b.persona = p
	return b
}

// WithHistory sets the log snapshot. Only its tail is used.
func (b *PayloadBuilder) WithHistory(history []conversation.Message) *PayloadBuilder {
	b.history = history
	return b
}

func (b *PayloadBuilder) WithPrompt(prompt string) *PayloadBuilder {
	b.prompt = prompt
	return b
}

func (b *PayloadBuilder) WithWindow(n int) *PayloadBuilder {
	if n >= 0 {
		b.window = n
	}
	return b
}

func (b *PayloadBuilder) Build() *Payload {
	history := conversation.Tail(b.history, b.window)
	turns := make([]Turn, 0, len(history)+2)
	turns = append(turns, Turn{Role: conversation.RoleSystem, Content: SystemPrompt(b.persona)})
	for _, m := range history {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	turns = append(turns, Turn{Role: conversation.RoleUser, Content: b.prompt})
	return &Payload{Messages: turns}
}

// Build returns the request payload for userText, given the persona and a
// snapshot of its log taken before userText was appended.
func Build(p *personas.Persona, history []conversation.Message, userText string) *Payload {
	return NewPayloadBuilder().
		WithPersona(p).
		WithHistory(history).
		WithPrompt(userText).
		Build()
}

// SystemPrompt is the persona's stored prompt followed by the fixed
// context block.
func SystemPrompt(p *personas.Persona) string {
	prompt := defaultSystemPrompt
	if p != nil && strings.TrimSpace(p.SystemPrompt) != "" {
		prompt = p.SystemPrompt
	}
	return prompt + contextAddendum
}
