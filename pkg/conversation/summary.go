package conversation

import (
	"fmt"
	"time"
)

// Summary describes one persona's history at a glance.
type Summary struct {
	MessageCount      int       `json:"messageCount" yaml:"message_count"`
	UserMessages      int       `json:"userMessages" yaml:"user_messages"`
	AssistantMessages int       `json:"aiMessages" yaml:"ai_messages"`
	FallbackMessages  int       `json:"fallbackMessages" yaml:"fallback_messages"`
	FirstMessageAt    time.Time `json:"firstMessageTime,omitempty" yaml:"first_message_time,omitempty"`
	LastMessageAt     time.Time `json:"lastMessageTime,omitempty" yaml:"last_message_time,omitempty"`
	// Duration spans the first to the last message, in whole minutes.
	Duration string `json:"duration" yaml:"duration"`
}

func (l *Log) Summary(personaID string) Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Summarize(l.histories[personaID])
}

// Summarize counts msgs by role. Fallback replies count as assistant
// messages and are also counted on their own.
func Summarize(msgs []Message) Summary {
	s := Summary{MessageCount: len(msgs)}
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			s.UserMessages++
		case RoleAssistant:
			s.AssistantMessages++
			if m.Fallback {
				s.FallbackMessages++
			}
		}
	}
	if len(msgs) > 0 {
		s.FirstMessageAt = msgs[0].Timestamp
		s.LastMessageAt = msgs[len(msgs)-1].Timestamp
	}
	s.Duration = "0 minutes"
	if len(msgs) >= 2 {
		s.Duration = FormatDuration(s.LastMessageAt.Sub(s.FirstMessageAt))
	}
	return s
}

// FormatDuration renders d as "N minutes" below an hour and "Xh Ym" above.
// Partial minutes are dropped.
func FormatDuration(d time.Duration) string {
	mins := int(d / time.Minute)
	if mins < 0 {
		mins = 0
	}
	if mins < 60 {
		return fmt.Sprintf("%d minutes", mins)
	}
	return fmt.Sprintf("%dh %dm", mins/60, mins%60)
}
