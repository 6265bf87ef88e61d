package chat

import (
	"github.com/pkg/errors"
)

var (
	ErrNoPersonaSelected = errors.New("no persona selected")
	ErrMissingCredential = errors.New("no API key configured")
	ErrBusy              = errors.New("persona is already waiting for a reply")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrNotConfirmed      = errors.New("operation not confirmed")
)
