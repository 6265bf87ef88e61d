package personas

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/go-go-golems/waifu-coder/pkg/events"
	"github.com/go-go-golems/waifu-coder/pkg/store"
	"github.com/stretchr/testify/require"
)

type fakeHistories struct {
	deleted []string
}

func (f *fakeHistories) DeleteHistory(_ context.Context, personaID string) error {
	f.deleted = append(f.deleted, personaID)
	return nil
}

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestRegistry(t *testing.T, s store.Store, opts ...RegistryOption) (*Registry, *events.Recorder, *fakeHistories) {
	t.Helper()
	rec := &events.Recorder{}
	hist := &fakeHistories{}
	clock := &testClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := 0
	base := []RegistryOption{
		WithEmitter(rec),
		WithHistoryDeleter(hist),
		WithClock(clock.now),
		WithRand(rand.New(rand.NewSource(1))),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("persona_%d", n)
		}),
	}
	r, err := NewRegistry(context.Background(), s, append(base, opts...)...)
	require.NoError(t, err)
	return r, rec, hist
}

func validRequest() CreateRequest {
	return CreateRequest{
		Name:         "Miku",
		Type:         TypeTsundere,
		SystemPrompt: "You are Miku.",
		Skills:       []string{"Go", " Go ", "", "SQL"},
	}
}

func TestRegistry_CreateValidation(t *testing.T) {
	r, rec, _ := newTestRegistry(t, store.NewInMemoryStore())
	ctx := context.Background()

	cases := []struct {
		name  string
		mut   func(*CreateRequest)
		field string
	}{
		{"empty name", func(c *CreateRequest) { c.Name = "  " }, "name"},
		{"empty type", func(c *CreateRequest) { c.Type = "" }, "type"},
		{"unknown type", func(c *CreateRequest) { c.Type = "himedere" }, "type"},
		{"empty prompt", func(c *CreateRequest) { c.SystemPrompt = "" }, "systemPrompt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mut(&req)
			_, err := r.Create(ctx, req)
			require.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.field, ve.Field)
		})
	}
	require.Empty(t, r.List())
	require.Empty(t, rec.Events())
}

func TestRegistry_CreatePersistsAndDefaultsAvatar(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	r, rec, _ := newTestRegistry(t, s)

	p, err := r.Create(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, "persona_1", p.ID)
	require.Equal(t, []string{"Go", "SQL"}, p.Skills)
	require.Equal(t, "builtin:avatar/tsundere", p.AvatarRef)
	require.Equal(t, 0, p.MessageCount)
	require.Len(t, rec.OfType(events.EventTypePersonaCreated), 1)

	reloaded, _, _ := newTestRegistry(t, s)
	got, ok := reloaded.Get(p.ID)
	require.True(t, ok)
	require.Equal(t, p.Name, got.Name)
	require.Equal(t, p.SystemPrompt, got.SystemPrompt)
	require.True(t, p.CreatedAt.Equal(got.CreatedAt))
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r, _, _ := newTestRegistry(t, store.NewInMemoryStore())
	p, err := r.Create(context.Background(), validRequest())
	require.NoError(t, err)

	p.Name = "mutated"
	p.Skills[0] = "mutated"

	got, ok := r.Get(p.ID)
	require.True(t, ok)
	require.Equal(t, "Miku", got.Name)
	require.Equal(t, "Go", got.Skills[0])
}

func TestRegistry_SelectUnknown(t *testing.T) {
	r, rec, _ := newTestRegistry(t, store.NewInMemoryStore())
	_, err := r.Select(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, ok := r.Active()
	require.False(t, ok)
	require.Empty(t, rec.OfType(events.EventTypePersonaChanged))
}

func TestRegistry_SelectPersistsActive(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	r, rec, _ := newTestRegistry(t, s)
	p, err := r.Create(ctx, validRequest())
	require.NoError(t, err)

	_, err = r.Select(ctx, p.ID)
	require.NoError(t, err)
	active, ok := r.Active()
	require.True(t, ok)
	require.Equal(t, p.ID, active.ID)

	changed := rec.OfType(events.EventTypePersonaChanged)
	require.Len(t, changed, 1)
	require.Equal(t, p.ID, changed[0].PersonaID)

	reloaded, _, _ := newTestRegistry(t, s)
	active, ok = reloaded.Active()
	require.True(t, ok)
	require.Equal(t, p.ID, active.ID)
}

func TestRegistry_SelectCarriesWelcome(t *testing.T) {
	ctx := context.Background()
	r, rec, _ := newTestRegistry(t, store.NewInMemoryStore())
	p, err := r.Create(ctx, validRequest())
	require.NoError(t, err)

	_, err = r.Select(ctx, p.ID, WithWelcome("Hmph, you're back."))
	require.NoError(t, err)
	_, err = r.Select(ctx, p.ID)
	require.NoError(t, err)

	changed := rec.OfType(events.EventTypePersonaChanged)
	require.Len(t, changed, 2)
	require.Equal(t, "Hmph, you're back.", changed[0].Text)
	require.Empty(t, changed[1].Text)
}

func TestRegistry_RecordUsage(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t, store.NewInMemoryStore())
	p, err := r.Create(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, r.RecordUsage(ctx, p.ID))
	require.NoError(t, r.RecordUsage(ctx, p.ID))
	got, _ := r.Get(p.ID)
	require.Equal(t, 2, got.MessageCount)
	require.True(t, got.LastUsedAt.After(p.LastUsedAt))

	require.ErrorIs(t, r.RecordUsage(ctx, "nope"), ErrNotFound)
}

func TestRegistry_DeleteActiveClearsReferenceAndHistory(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	r, rec, hist := newTestRegistry(t, s)
	p, err := r.Create(ctx, validRequest())
	require.NoError(t, err)
	_, err = r.Select(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, p.ID))
	_, ok := r.Active()
	require.False(t, ok)
	_, ok = r.Get(p.ID)
	require.False(t, ok)
	require.Equal(t, []string{p.ID}, hist.deleted)
	require.Len(t, rec.OfType(events.EventTypePersonaDeleted), 1)

	_, ok, err = s.Get(ctx, store.KeyCurrentPersonaID)
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, r.Delete(ctx, p.ID), ErrNotFound)
}

func TestRegistry_DeleteInactiveKeepsActive(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t, store.NewInMemoryStore())
	a, err := r.Create(ctx, validRequest())
	require.NoError(t, err)
	b, err := r.Create(ctx, validRequest())
	require.NoError(t, err)
	_, err = r.Select(ctx, a.ID)
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, b.ID))
	active, ok := r.Active()
	require.True(t, ok)
	require.Equal(t, a.ID, active.ID)
}

func TestRegistry_StaleActiveIDIsCleared(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	require.NoError(t, s.Set(ctx, store.KeyCurrentPersonaID, "persona_gone"))

	r, _, _ := newTestRegistry(t, s)
	_, ok := r.Active()
	require.False(t, ok)
	_, ok, err := s.Get(ctx, store.KeyCurrentPersonaID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistry_CreateDefault(t *testing.T) {
	r, _, _ := newTestRegistry(t, store.NewInMemoryStore())
	p, err := r.CreateDefault(context.Background())
	require.NoError(t, err)

	names := map[string]bool{}
	for _, tpl := range r.Catalog().DefaultPersonas {
		names[tpl.Name] = true
	}
	require.True(t, names[p.Name], "unexpected default persona %q", p.Name)
	require.NotEmpty(t, p.Skills)
}

func TestRegistry_ListMostRecentlyUsedFirst(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t, store.NewInMemoryStore())
	a, err := r.Create(ctx, validRequest())
	require.NoError(t, err)
	b, err := r.Create(ctx, validRequest())
	require.NoError(t, err)

	list := r.List()
	require.Equal(t, []string{b.ID, a.ID}, []string{list[0].ID, list[1].ID})

	require.NoError(t, r.RecordUsage(ctx, a.ID))
	list = r.List()
	require.Equal(t, []string{a.ID, b.ID}, []string{list[0].ID, list[1].ID})
}

func TestCatalog_Default(t *testing.T) {
	c := DefaultCatalog()
	require.Equal(t, TypeTsundere, c.DefaultType)
	for _, typ := range []Type{TypeTsundere, TypeKuudere, TypeDandere, TypeYandere, TypeGenki} {
		require.NotEmpty(t, c.SystemPrompt(typ), "type %s", typ)
		require.NotEmpty(t, c.Avatar(typ), "type %s", typ)
	}
	require.Empty(t, c.SystemPrompt(TypeCustom))
	require.Equal(t, c.Spec(TypeTsundere), c.Spec("unknown"))
	require.Len(t, c.DefaultPersonas, 4)
}

func TestCatalog_DecodeRejectsUnknownDefaultType(t *testing.T) {
	_, err := DecodeCatalog([]byte("default_type: himedere\ntypes:\n  tsundere:\n    name: T\n"))
	require.ErrorIs(t, err, ErrValidation)
}
