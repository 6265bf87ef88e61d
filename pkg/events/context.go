package events

import (
	"context"
)

type ctxKey int

const (
	ctxKeyEmitters ctxKey = iota
)

// WithEmitters attaches emitters to ctx. Operations that emit events also
// deliver them to every emitter found in their context.
func WithEmitters(ctx context.Context, emitters ...Emitter) context.Context {
	if len(emitters) == 0 {
		return ctx
	}
	combined := append([]Emitter{}, EmittersFromContext(ctx)...)
	combined = append(combined, emitters...)
	return context.WithValue(ctx, ctxKeyEmitters, combined)
}

func EmittersFromContext(ctx context.Context) []Emitter {
	if v := ctx.Value(ctxKeyEmitters); v != nil {
		if emitters, ok := v.([]Emitter); ok {
			return emitters
		}
	}
	return nil
}

// EmitToContext delivers e to the emitters attached to ctx, if any.
func EmitToContext(ctx context.Context, e Event) {
	for _, em := range EmittersFromContext(ctx) {
		if em != nil {
			em.Emit(ctx, e)
		}
	}
}
