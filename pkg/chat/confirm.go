package chat

import (
	"context"
)

// Confirmer asks the user to approve a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm approves everything. Used for --yes.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// NeverConfirm declines everything. It is the default confirmer.
var NeverConfirm = ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })
