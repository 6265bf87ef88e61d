package llm

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrRemoteCall        = errors.New("remote call failed")
	ErrMalformedResponse = errors.New("malformed response")
)

// RemoteCallError covers transport failures and non-2xx responses.
// StatusCode is 0 when no response was received.
type RemoteCallError struct {
	StatusCode int
	Err        error
}

func (e *RemoteCallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote call failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote call failed: %v", e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

func (e *RemoteCallError) Is(target error) bool {
	return target == ErrRemoteCall
}

// MalformedResponseError is returned for a successful response without
// usable reply content.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed response: " + e.Reason
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}
