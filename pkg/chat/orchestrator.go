// Package chat drives the send cycle of the active persona: validation,
// the per-persona busy guard, payload building, the remote call, and the
// fallback reply when that call fails.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/waifu-coder/pkg/conversation"
	"github.com/go-go-golems/waifu-coder/pkg/conversation/builder"
	"github.com/go-go-golems/waifu-coder/pkg/events"
	"github.com/go-go-golems/waifu-coder/pkg/fallback"
	"github.com/go-go-golems/waifu-coder/pkg/llm"
	"github.com/go-go-golems/waifu-coder/pkg/personas"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CredentialSource provides the API key at send time.
type CredentialSource interface {
	APIKey() string
}

type Orchestrator struct {
	registry    *personas.Registry
	log         *conversation.Log
	completer   llm.Completer
	fallbacks   *fallback.Generator
	credentials CredentialSource
	emitter     events.Emitter
	confirmer   Confirmer
	locks       *lockTable
	now         func() time.Time
}

type Option func(*Orchestrator)

func WithEmitter(e events.Emitter) Option {
	return func(o *Orchestrator) {
		o.emitter = e
	}
}

func WithConfirmer(c Confirmer) Option {
	return func(o *Orchestrator) {
		o.confirmer = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(
	registry *personas.Registry,
	history *conversation.Log,
	completer llm.Completer,
	fallbacks *fallback.Generator,
	credentials CredentialSource,
	options ...Option,
) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		log:         history,
		completer:   completer,
		fallbacks:   fallbacks,
		credentials: credentials,
		emitter:     events.NopEmitter{},
		confirmer:   NeverConfirm,
		locks:       newLockTable(),
		now:         time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// SendResult describes a completed send. Degraded is set when Reply is a
// locally generated fallback; Cause then holds the remote failure.
type SendResult struct {
	PersonaID   string
	UserMessage conversation.Message
	Reply       conversation.Message
	Degraded    bool
	Cause       error
}

// Phase reports where personaID is in its send cycle.
func (o *Orchestrator) Phase(personaID string) Phase {
	return o.locks.phase(personaID)
}

// Send appends text to the active persona's log, requests a reply and
// appends it. Remote failures do not return an error: a fallback reply is
// appended instead and reported through SendResult.
func (o *Orchestrator) Send(ctx context.Context, text string) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, o.reject(ctx, nil, ErrEmptyMessage, "Please type a message first!")
	}
	persona, ok := o.registry.Active()
	if !ok {
		return nil, o.reject(ctx, nil, ErrNoPersonaSelected, "Please select a waifu persona first!")
	}
	if strings.TrimSpace(o.credentials.APIKey()) == "" {
		return nil, o.reject(ctx, persona, ErrMissingCredential, "Please configure your Cerebras API key in Settings!")
	}

	release, ok := o.locks.tryAcquire(persona.ID)
	if !ok {
		return nil, o.reject(ctx, persona, ErrBusy, "Please wait for the current response!")
	}
	defer release()

	o.locks.setPhase(persona.ID, PhaseValidating)
	if _, ok := o.registry.Get(persona.ID); !ok {
		return nil, o.reject(ctx, nil, ErrNoPersonaSelected, "Please select a waifu persona first!")
	}

	o.locks.setPhase(persona.ID, PhaseBuilding)
	history := o.log.All(persona.ID)
	userMsg := conversation.NewUserMessage(text, o.now())
	if err := o.log.Append(ctx, persona.ID, userMsg); err != nil {
		log.Warn().Err(err).Str("persona_id", persona.ID).Msg("Could not persist user message")
	}
	payload := builder.Build(persona, history, text)

	o.locks.setPhase(persona.ID, PhaseDispatching)
	reply, err := o.dispatch(ctx, payload)

	result := &SendResult{PersonaID: persona.ID, UserMessage: userMsg}
	if _, stillExists := o.registry.Get(persona.ID); !stillExists {
		log.Info().Str("persona_id", persona.ID).Msg("Persona deleted while waiting for a reply, dropping it")
		result.Cause = err
		result.Degraded = err != nil
		return result, nil
	}

	if err == nil {
		o.locks.setPhase(persona.ID, PhaseSucceeded)
		result.Reply = conversation.NewAssistantMessage(reply, o.now())
		if err := o.log.Append(ctx, persona.ID, result.Reply); err != nil {
			log.Warn().Err(err).Str("persona_id", persona.ID).Msg("Could not persist reply")
		}
		if err := o.registry.RecordUsage(ctx, persona.ID); err != nil {
			log.Warn().Err(err).Str("persona_id", persona.ID).Msg("Could not record persona usage")
		}
		o.emit(ctx, events.Event{
			Type:  events.EventTypeSendSucceeded,
			Level: events.LevelSuccess,
			Text:  reply,
		}, persona)
		return result, nil
	}

	o.locks.setPhase(persona.ID, PhaseFailed)
	log.Warn().Err(err).Str("persona_id", persona.ID).Msg("Completion failed, using fallback reply")
	content := o.fallbacks.Generate(string(persona.Type), o.fallbacks.RandomBase(), text)
	result.Reply = conversation.NewFallbackMessage(content, o.now())
	result.Degraded = true
	result.Cause = err
	if err := o.log.Append(ctx, persona.ID, result.Reply); err != nil {
		log.Warn().Err(err).Str("persona_id", persona.ID).Msg("Could not persist fallback reply")
	}
	o.emit(ctx, events.Event{
		Type:  events.EventTypeSendFailed,
		Level: events.LevelError,
		Text:  content,
		Error: err.Error(),
	}, persona)
	return result, nil
}

// dispatch turns a panic in the completer into an error.
func (o *Orchestrator) dispatch(ctx context.Context, payload *builder.Payload) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("completer panicked: %v", r)
		}
	}()
	return o.completer.Complete(ctx, payload)
}

// ClearResult reports whether a history was actually removed.
type ClearResult struct {
	PersonaID string
	Cleared   bool
}

// ClearHistory removes the active persona's history after confirmation.
// An empty history is reported with a notice and needs no confirmation.
func (o *Orchestrator) ClearHistory(ctx context.Context) (*ClearResult, error) {
	persona, ok := o.registry.Active()
	if !ok {
		return nil, o.reject(ctx, nil, ErrNoPersonaSelected, "No persona selected!")
	}
	res := &ClearResult{PersonaID: persona.ID}
	if o.log.Len(persona.ID) == 0 {
		o.emit(ctx, events.Event{Type: events.EventTypeNotice, Level: events.LevelInfo, Text: "Chat is already empty!"}, persona)
		return res, nil
	}

	ok, err := o.confirmer.Confirm(ctx, fmt.Sprintf("Clear all chat history with %s?", persona.Name))
	if err != nil {
		return nil, errors.Wrap(err, "could not confirm")
	}
	if !ok {
		return nil, ErrNotConfirmed
	}

	if err := o.log.Clear(ctx, persona.ID); err != nil {
		return nil, err
	}
	res.Cleared = true
	o.emit(ctx, events.Event{Type: events.EventTypeHistoryCleared, Level: events.LevelSuccess, Text: "Chat cleared!"}, persona)
	return res, nil
}

// SelectResult carries the selected persona and a welcome line for display.
// The welcome line is not added to the log.
type SelectResult struct {
	Persona *personas.Persona
	Welcome string
}

// SelectPersona activates id. Every change picks a fresh welcome line, which
// is returned and carried as Text of the persona-changed event.
func (o *Orchestrator) SelectPersona(ctx context.Context, id string) (*SelectResult, error) {
	target, ok := o.registry.Get(id)
	if !ok {
		return nil, o.reject(ctx, nil, &personas.NotFoundError{ID: id}, "That persona does not exist!")
	}
	welcome := o.fallbacks.Welcome(string(target.Type), target.Name)

	p, err := o.registry.Select(ctx, id, personas.WithWelcome(welcome))
	if err != nil {
		if errors.Is(err, personas.ErrNotFound) {
			return nil, o.reject(ctx, nil, err, "That persona does not exist!")
		}
		return nil, err
	}
	res := &SelectResult{Persona: p, Welcome: welcome}
	o.emit(ctx, events.Event{
		Type:  events.EventTypeNotice,
		Level: events.LevelSuccess,
		Text:  fmt.Sprintf("Selected %s! Ready to code together! ♡", p.Name),
	}, p)
	return res, nil
}

// CreateResult is returned by CreatePersona. UsedDefault is set when the
// request was invalid and a random default persona was created instead.
type CreateResult struct {
	SelectResult
	UsedDefault bool
}

// CreatePersona creates and selects a persona. With orDefault, a request
// that fails validation produces one of the catalog's default personas.
func (o *Orchestrator) CreatePersona(ctx context.Context, req personas.CreateRequest, orDefault bool) (*CreateResult, error) {
	p, err := o.registry.Create(ctx, req)
	usedDefault := false
	if err != nil {
		if !errors.Is(err, personas.ErrValidation) {
			return nil, err
		}
		if !orDefault {
			return nil, o.reject(ctx, nil, err, err.Error())
		}
		o.emit(ctx, events.Event{
			Type:  events.EventTypeNotice,
			Level: events.LevelInfo,
			Text:  "Creating default waifu since some fields are missing! ♡",
		}, nil)
		p, err = o.registry.CreateDefault(ctx)
		if err != nil {
			return nil, err
		}
		usedDefault = true
	}

	sel, err := o.SelectPersona(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &CreateResult{SelectResult: *sel, UsedDefault: usedDefault}, nil
}

// DeletePersona removes a persona and its history after confirmation.
func (o *Orchestrator) DeletePersona(ctx context.Context, id string) error {
	p, ok := o.registry.Get(id)
	if !ok {
		return o.reject(ctx, nil, &personas.NotFoundError{ID: id}, "That persona does not exist!")
	}
	if o.locks.phase(id) != PhaseIdle {
		log.Info().Str("persona_id", id).Msg("Deleting persona with a reply in flight")
	}

	ok, err := o.confirmer.Confirm(ctx, fmt.Sprintf("Are you sure you want to delete %s? This cannot be undone!", p.Name))
	if err != nil {
		return errors.Wrap(err, "could not confirm")
	}
	if !ok {
		return ErrNotConfirmed
	}

	if err := o.registry.Delete(ctx, id); err != nil {
		return err
	}
	o.locks.forget(id)
	return nil
}

// ExportHistory snapshots the active persona's history.
func (o *Orchestrator) ExportHistory(ctx context.Context) (*conversation.Snapshot, error) {
	persona, ok := o.registry.Active()
	if !ok {
		return nil, o.reject(ctx, nil, ErrNoPersonaSelected, "No persona selected!")
	}
	snap := o.log.Export(refOf(persona), o.now())
	if len(snap.Messages) == 0 {
		o.emit(ctx, events.Event{Type: events.EventTypeNotice, Level: events.LevelWarning, Text: "No chat history to export!"}, persona)
	}
	return snap, nil
}

// ImportHistory replaces the active persona's history with snap.
func (o *Orchestrator) ImportHistory(ctx context.Context, snap *conversation.Snapshot) error {
	persona, ok := o.registry.Active()
	if !ok {
		return o.reject(ctx, nil, ErrNoPersonaSelected, "No persona selected!")
	}
	if o.locks.phase(persona.ID) != PhaseIdle {
		return o.reject(ctx, persona, ErrBusy, "Please wait for the current response!")
	}
	if snap.Persona.Type != "" && snap.Persona.Type != string(persona.Type) {
		log.Warn().
			Str("persona_id", persona.ID).
			Str("snapshot_type", snap.Persona.Type).
			Msg("Importing history exported from a different persona type")
	}
	if err := o.log.Import(ctx, persona.ID, snap); err != nil {
		return err
	}
	o.emit(ctx, events.Event{
		Type:  events.EventTypeNotice,
		Level: events.LevelSuccess,
		Text:  fmt.Sprintf("Imported %d messages!", o.log.Len(persona.ID)),
	}, persona)
	return nil
}

// HistorySummary is the active persona's conversation summary.
type HistorySummary struct {
	Persona              conversation.PersonaRef `json:"persona" yaml:"persona"`
	conversation.Summary `yaml:",inline"`
}

// Summary reports message counts and the span of the active persona's chat.
func (o *Orchestrator) Summary(ctx context.Context) (*HistorySummary, error) {
	persona, ok := o.registry.Active()
	if !ok {
		return nil, o.reject(ctx, nil, ErrNoPersonaSelected, "No persona selected!")
	}
	return &HistorySummary{
		Persona: refOf(persona),
		Summary: o.log.Summary(persona.ID),
	}, nil
}

func refOf(p *personas.Persona) conversation.PersonaRef {
	return conversation.PersonaRef{ID: p.ID, Name: p.Name, Type: string(p.Type)}
}

func (o *Orchestrator) reject(ctx context.Context, p *personas.Persona, err error, text string) error {
	level := events.LevelError
	if errors.Is(err, ErrBusy) {
		level = events.LevelWarning
	}
	o.emit(ctx, events.Event{
		Type:  events.EventTypeValidationRejected,
		Level: level,
		Text:  text,
		Error: err.Error(),
	}, p)
	log.Debug().Err(err).Msg("Rejected request")
	return err
}

func (o *Orchestrator) emit(ctx context.Context, e events.Event, p *personas.Persona) {
	if p != nil {
		e.PersonaID = p.ID
		e.PersonaName = p.Name
		e.PersonaType = string(p.Type)
	}
	e.Timestamp = o.now()
	o.emitter.Emit(ctx, e)
	events.EmitToContext(ctx, e)
}
