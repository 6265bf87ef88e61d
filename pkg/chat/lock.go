package chat

import (
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Phase is the state of a persona's send cycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseValidating  Phase = "validating"
	PhaseBuilding    Phase = "building"
	PhaseDispatching Phase = "dispatching"
	PhaseSucceeded   Phase = "succeeded"
	PhaseFailed      Phase = "failed"
)

type slot struct {
	sem   *semaphore.Weighted
	phase Phase
	// forgotten is set when forget ran while the slot was held; the
	// holder's release then drops it from the table.
	forgotten bool
}

// lockTable holds one single-slot semaphore per persona. Acquisition never
// waits; a held slot means the persona is busy.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]*slot
	// observe, when set, sees every phase change.
	observe func(personaID string, p Phase)
}

func newLockTable() *lockTable {
	return &lockTable{slots: map[string]*slot{}}
}

func (t *lockTable) slot(personaID string) *slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[personaID]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1), phase: PhaseIdle}
		t.slots[personaID] = s
	}
	return s
}

// tryAcquire returns a release func, or false if the persona is busy. The
// release func is safe to call more than once.
func (t *lockTable) tryAcquire(personaID string) (func(), bool) {
	s := t.slot(personaID)
	if !s.sem.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			t.setPhase(personaID, PhaseIdle)
			t.mu.Lock()
			if s.forgotten && t.slots[personaID] == s {
				delete(t.slots, personaID)
			}
			t.mu.Unlock()
			s.sem.Release(1)
		})
	}, true
}

func (t *lockTable) setPhase(personaID string, p Phase) {
	t.mu.Lock()
	s, ok := t.slots[personaID]
	if ok {
		s.phase = p
	}
	observe := t.observe
	t.mu.Unlock()
	if ok {
		log.Debug().Str("persona_id", personaID).Str("state", string(p)).Msg("Send state")
		if observe != nil {
			observe(personaID, p)
		}
	}
}

func (t *lockTable) phase(personaID string) Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.slots[personaID]; ok {
		return s.phase
	}
	return PhaseIdle
}

// forget drops the slot of a deleted persona. An idle slot is dropped at
// once and its semaphore stays held, so a caller that still references it
// sees the persona as busy. A held slot is dropped when its holder releases.
func (t *lockTable) forget(personaID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[personaID]
	if !ok {
		return
	}
	if s.sem.TryAcquire(1) {
		delete(t.slots, personaID)
		return
	}
	s.forgotten = true
}

func (t *lockTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
