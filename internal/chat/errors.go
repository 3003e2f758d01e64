package chat

import (
	"errors"
	"fmt"

	"github.com/ethanbaker/chatbot/internal/stores/session"
)

var (
	// ErrInvalidArgument is returned for requests rejected before any session state is touched
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSessionNotFound is returned when a session id does not exist
	ErrSessionNotFound = session.ErrSessionNotFound
)

// ProviderError wraps a failed completion call. The user message that triggered the call is kept
// in the transcript, but no assistant reply is stored
type ProviderError struct {
	SessionID string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion provider failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
