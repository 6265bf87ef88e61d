package events

import (
	"context"
	"sync"
	"time"
)

// EventType names a notification the conversation engine emits for the UI layer.
type EventType string

const (
	EventTypePersonaCreated     EventType = "persona-created"
	EventTypePersonaChanged     EventType = "persona-changed"
	EventTypePersonaDeleted     EventType = "persona-deleted"
	EventTypeSendSucceeded      EventType = "send-succeeded"
	EventTypeSendFailed         EventType = "send-failed"
	EventTypeValidationRejected EventType = "validation-rejected"
	EventTypeHistoryCleared     EventType = "history-cleared"
	EventTypeNotice             EventType = "notice"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is the single notification payload. Fields that do not apply to a
// given type are left empty.
type Event struct {
	Type        EventType `json:"type"`
	Level       Level     `json:"level,omitempty"`
	PersonaID   string    `json:"persona_id,omitempty"`
	PersonaName string    `json:"persona_name,omitempty"`
	PersonaType string    `json:"persona_type,omitempty"`
	// Text carries the reply, the notice, or the welcome line depending on Type.
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter receives notifications. Emit reports no error; an emitter that
// can fail logs the failure itself. Emit may block while a consumer catches
// up, as Bus does.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}

var _ Emitter = NopEmitter{}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

var _ Emitter = (*Recorder)(nil)

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t, in emission order.
func (r *Recorder) OfType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// MultiEmitter fans out to several emitters.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, e Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(ctx, e)
		}
	}
}
