package conversation

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/go-go-golems/waifu-coder/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MaxMessages is the number of messages kept per persona.
const MaxMessages = 100

// Log holds the message history of every persona, keyed by persona id.
// Each history is capped at MaxMessages; older entries are evicted first.
//
// All histories are persisted as a single JSON map under
// store.KeyChatHistory after every mutation.
type Log struct {
	mu        sync.RWMutex
	store     store.Store
	capacity  int
	histories map[string][]Message
}

type LogOption func(*Log)

// WithCapacity overrides MaxMessages. Values below 1 are ignored.
func WithCapacity(n int) LogOption {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

func NewLog(ctx context.Context, s store.Store, options ...LogOption) (*Log, error) {
	if s == nil {
		return nil, errors.New("conversation log needs a store")
	}
	l := &Log{
		store:     s,
		capacity:  MaxMessages,
		histories: map[string][]Message{},
	}
	for _, o := range options {
		o(l)
	}

	raw, ok, err := s.Get(ctx, store.KeyChatHistory)
	if err != nil {
		return nil, errors.Wrap(err, "could not load chat history")
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &l.histories); err != nil {
			return nil, errors.Wrap(err, "could not decode chat history")
		}
		if l.histories == nil {
			l.histories = map[string][]Message{}
		}
		for id, msgs := range l.histories {
			l.histories[id] = l.truncate(msgs)
		}
	}
	return l, nil
}

// Append adds msg at the tail of personaID's history. The in-memory history
// is updated even when persisting fails; the error is returned so the
// caller can report it.
func (l *Log) Append(ctx context.Context, personaID string, msg Message) error {
	if !msg.Role.IsValid() {
		return errors.Errorf("invalid message role %q", msg.Role)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.histories[personaID] = l.truncate(append(l.histories[personaID], msg))
	log.Trace().
		Str("persona_id", personaID).
		Str("role", string(msg.Role)).
		Int("length", len(l.histories[personaID])).
		Msg("Appended message")
	return l.persistLocked(ctx)
}

// Tail returns the last n messages of personaID in chronological order.
func (l *Log) Tail(personaID string, n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return tail(l.histories[personaID], n)
}

// All returns a copy of the whole history of personaID.
func (l *Log) All(personaID string) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Message(nil), l.histories[personaID]...)
}

func (l *Log) Len(personaID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.histories[personaID])
}

// PersonaIDs lists the personas that have a non-empty history.
func (l *Log) PersonaIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.histories))
	for id, msgs := range l.histories {
		if len(msgs) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Clear removes the history of personaID, including its persisted entry.
func (l *Log) Clear(ctx context.Context, personaID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.histories[personaID]; !ok {
		return nil
	}
	delete(l.histories, personaID)
	return l.persistLocked(ctx)
}

// DeleteHistory is Clear under the name the persona registry expects.
func (l *Log) DeleteHistory(ctx context.Context, personaID string) error {
	return l.Clear(ctx, personaID)
}

// Replace sets the whole history of personaID, keeping only the last
// capacity messages.
func (l *Log) Replace(ctx context.Context, personaID string, msgs []Message) error {
	for i, m := range msgs {
		if !m.Role.IsValid() {
			return errors.Errorf("message %d has invalid role %q", i, m.Role)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(msgs) == 0 {
		delete(l.histories, personaID)
	} else {
		l.histories[personaID] = l.truncate(append([]Message(nil), msgs...))
	}
	return l.persistLocked(ctx)
}

func (l *Log) truncate(msgs []Message) []Message {
	if len(msgs) <= l.capacity {
		return msgs
	}
	// copy so the evicted head can be collected
	out := make([]Message, l.capacity)
	copy(out, msgs[len(msgs)-l.capacity:])
	return out
}

func (l *Log) persistLocked(ctx context.Context) error {
	b, err := json.Marshal(l.histories)
	if err != nil {
		return errors.Wrap(err, "could not encode chat history")
	}
	if err := l.store.Set(ctx, store.KeyChatHistory, string(b)); err != nil {
		return errors.Wrap(err, "could not persist chat history")
	}
	return nil
}

func tail(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) == 0 {
		return []Message{}
	}
	if n > len(msgs) {
		n = len(msgs)
	}
	return append([]Message(nil), msgs[len(msgs)-n:]...)
}

// Tail returns the last n messages of msgs in order. It does not modify msgs.
func Tail(msgs []Message, n int) []Message {
	return tail(msgs, n)
}
