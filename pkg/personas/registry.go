package personas

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/waifu-coder/pkg/events"
	"github.com/go-go-golems/waifu-coder/pkg/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// HistoryDeleter removes the conversation log of a persona. The registry
// calls it when a persona is deleted.
type HistoryDeleter interface {
	DeleteHistory(ctx context.Context, personaID string) error
}

// Registry owns the persona records and the active-persona reference.
//
// Every mutation is written to the store before the call returns; reads are
// served from the in-memory copy.
type Registry struct {
	mu       sync.RWMutex
	store    store.Store
	catalog  *Catalog
	personas map[string]*Persona
	activeID string

	emitter   events.Emitter
	histories HistoryDeleter
	rand      *rand.Rand
	now       func() time.Time
	newID     func() string
}

type RegistryOption func(*Registry)

func WithCatalog(c *Catalog) RegistryOption {
	return func(r *Registry) {
		r.catalog = c
	}
}

func WithEmitter(e events.Emitter) RegistryOption {
	return func(r *Registry) {
		r.emitter = e
	}
}

func WithHistoryDeleter(h HistoryDeleter) RegistryOption {
	return func(r *Registry) {
		r.histories = h
	}
}

// WithRand sets the random source used by CreateDefault.
func WithRand(rnd *rand.Rand) RegistryOption {
	return func(r *Registry) {
		r.rand = rnd
	}
}

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

func WithIDGenerator(f func() string) RegistryOption {
	return func(r *Registry) {
		r.newID = f
	}
}

func newPersonaID() string {
	return "persona_" + uuid.NewString()
}

// NewRegistry loads personas and the active persona id from s.
func NewRegistry(ctx context.Context, s store.Store, options ...RegistryOption) (*Registry, error) {
	if s == nil {
		return nil, errors.New("persona registry needs a store")
	}
	r := &Registry{
		store:    s,
		personas: map[string]*Persona{},
		emitter:  events.NopEmitter{},
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		newID:    newPersonaID,
	}
	for _, o := range options {
		o(r)
	}
	if r.catalog == nil {
		r.catalog = DefaultCatalog()
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load(ctx context.Context) error {
	raw, ok, err := r.store.Get(ctx, store.KeyPersonas)
	if err != nil {
		return errors.Wrap(err, "could not load personas")
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.personas); err != nil {
			return errors.Wrap(err, "could not decode personas")
		}
		if r.personas == nil {
			r.personas = map[string]*Persona{}
		}
	}

	activeID, ok, err := r.store.Get(ctx, store.KeyCurrentPersonaID)
	if err != nil {
		return errors.Wrap(err, "could not load active persona")
	}
	if ok {
		if _, exists := r.personas[activeID]; exists {
			r.activeID = activeID
		} else {
			log.Warn().Str("persona_id", activeID).Msg("stored active persona does not exist, clearing")
			if err := r.store.Delete(ctx, store.KeyCurrentPersonaID); err != nil {
				return errors.Wrap(err, "could not clear stale active persona")
			}
		}
	}

	log.Debug().
		Int("persona_count", len(r.personas)).
		Str("active_persona_id", r.activeID).
		Msg("Loaded persona registry")
	return nil
}

func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Create validates req and stores a new persona. Name, type and system
// prompt are required; the type must be a built-in type or custom.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Persona, error) {
	name := strings.TrimSpace(req.Name)
	systemPrompt := strings.TrimSpace(req.SystemPrompt)
	t := Type(strings.ToLower(strings.TrimSpace(string(req.Type))))

	switch {
	case name == "":
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	case t == "":
		return nil, &ValidationError{Field: "type", Reason: "must not be empty"}
	case !t.IsKnown():
		return nil, &ValidationError{Field: "type", Reason: "unknown persona type " + string(t)}
	case systemPrompt == "":
		return nil, &ValidationError{Field: "systemPrompt", Reason: "must not be empty"}
	}

	skills := make([]string, 0, len(req.Skills))
	seen := map[string]bool{}
	for _, s := range req.Skills {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		skills = append(skills, s)
	}

	avatar := strings.TrimSpace(req.AvatarRef)
	if avatar == "" {
		avatar = r.catalog.Avatar(t)
	}

	now := r.now()
	p := &Persona{
		ID:           r.newID(),
		Name:         name,
		Type:         t,
		SystemPrompt: systemPrompt,
		Skills:       skills,
		AvatarRef:    avatar,
		CreatedAt:    now,
		LastUsedAt:   now,
	}

	r.mu.Lock()
	r.personas[p.ID] = p
	if err := r.persistPersonasLocked(ctx); err != nil {
		delete(r.personas, p.ID)
		r.mu.Unlock()
		return nil, err
	}
	ret := p.Clone()
	r.mu.Unlock()

	log.Info().Str("persona_id", p.ID).Str("name", p.Name).Str("type", string(p.Type)).Msg("Created persona")
	r.emit(ctx, events.EventTypePersonaCreated, ret)
	return ret, nil
}

// CreateDefault creates one of the catalog's default personas, picked at random.
func (r *Registry) CreateDefault(ctx context.Context) (*Persona, error) {
	if len(r.catalog.DefaultPersonas) == 0 {
		return nil, errors.New("persona catalog has no default personas")
	}
	r.mu.Lock()
	tpl := r.catalog.DefaultPersonas[r.rand.Intn(len(r.catalog.DefaultPersonas))]
	r.mu.Unlock()

	return r.Create(ctx, CreateRequest{
		Name:         tpl.Name,
		Type:         tpl.Type,
		SystemPrompt: tpl.SystemPrompt,
		Skills:       tpl.Skills,
	})
}

// SelectOption tunes the persona-changed event emitted by Select.
type SelectOption func(*selectOptions)

type selectOptions struct {
	welcome string
}

// WithWelcome attaches a welcome line to the persona-changed event.
func WithWelcome(text string) SelectOption {
	return func(o *selectOptions) {
		o.welcome = text
	}
}

// Select makes id the active persona and emits persona-changed.
func (r *Registry) Select(ctx context.Context, id string, options ...SelectOption) (*Persona, error) {
	so := &selectOptions{}
	for _, o := range options {
		o(so)
	}
	r.mu.Lock()
	p, ok := r.personas[id]
	if !ok {
		r.mu.Unlock()
		return nil, &NotFoundError{ID: id}
	}
	prev := r.activeID
	r.activeID = id
	if err := r.store.Set(ctx, store.KeyCurrentPersonaID, id); err != nil {
		r.activeID = prev
		r.mu.Unlock()
		return nil, errors.Wrap(err, "could not persist active persona")
	}
	ret := p.Clone()
	r.mu.Unlock()

	log.Debug().Str("persona_id", id).Msg("Selected persona")
	r.emitText(ctx, events.EventTypePersonaChanged, ret, so.welcome)
	return ret, nil
}

// RecordUsage counts one successful exchange for id.
func (r *Registry) RecordUsage(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.personas[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	prevCount, prevUsed := p.MessageCount, p.LastUsedAt
	p.MessageCount++
	p.LastUsedAt = r.now()
	if err := r.persistPersonasLocked(ctx); err != nil {
		p.MessageCount, p.LastUsedAt = prevCount, prevUsed
		return err
	}
	return nil
}

// Delete removes id together with its conversation log. Deleting the
// active persona clears the active reference.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	p, ok := r.personas[id]
	if !ok {
		r.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	delete(r.personas, id)
	if err := r.persistPersonasLocked(ctx); err != nil {
		r.personas[id] = p
		r.mu.Unlock()
		return err
	}
	wasActive := r.activeID == id
	if wasActive {
		r.activeID = ""
		if err := r.store.Delete(ctx, store.KeyCurrentPersonaID); err != nil {
			log.Warn().Err(err).Str("persona_id", id).Msg("could not clear persisted active persona")
		}
	}
	r.mu.Unlock()

	if r.histories != nil {
		if err := r.histories.DeleteHistory(ctx, id); err != nil {
			log.Warn().Err(err).Str("persona_id", id).Msg("could not delete conversation log of deleted persona")
		}
	}

	log.Info().Str("persona_id", id).Str("name", p.Name).Bool("was_active", wasActive).Msg("Deleted persona")
	r.emit(ctx, events.EventTypePersonaDeleted, p)
	if wasActive {
		e := events.Event{
			Type:      events.EventTypePersonaChanged,
			Level:     events.LevelInfo,
			Timestamp: r.now(),
		}
		r.emitter.Emit(ctx, e)
		events.EmitToContext(ctx, e)
	}
	return nil
}

func (r *Registry) Get(id string) (*Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Active returns the active persona, if any.
func (r *Registry) Active() (*Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeID == "" {
		return nil, false
	}
	p, ok := r.personas[r.activeID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// List returns all personas, most recently used first.
func (r *Registry) List() []*Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].LastUsedAt.After(out[j].LastUsedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) persistPersonasLocked(ctx context.Context) error {
	b, err := json.Marshal(r.personas)
	if err != nil {
		return errors.Wrap(err, "could not encode personas")
	}
	if err := r.store.Set(ctx, store.KeyPersonas, string(b)); err != nil {
		return errors.Wrap(err, "could not persist personas")
	}
	return nil
}

func (r *Registry) emit(ctx context.Context, t events.EventType, p *Persona) {
	r.emitText(ctx, t, p, "")
}

func (r *Registry) emitText(ctx context.Context, t events.EventType, p *Persona, text string) {
	level := events.LevelSuccess
	if t == events.EventTypePersonaDeleted {
		level = events.LevelInfo
	}
	e := events.Event{
		Type:        t,
		Level:       level,
		PersonaID:   p.ID,
		PersonaName: p.Name,
		PersonaType: string(p.Type),
		Text:        text,
		Timestamp:   r.now(),
	}
	r.emitter.Emit(ctx, e)
	events.EmitToContext(ctx, e)
}
