package brain

import (
	"errors"
	"fmt"

	"github.com/moorebrett0/agentcore/internal/tool"
)

var (
	// ErrTurnLimitExceeded is wrapped by ExhaustedError.
	ErrTurnLimitExceeded = errors.New("turn limit exceeded")
	// ErrInvalidConversation reports a malformed input conversation.
	ErrInvalidConversation = errors.New("invalid conversation")
)

// ProviderError is any failure of a model call. It ends the run.
type ProviderError struct {
	Vendor tool.Vendor
	// Status is the HTTP status when one was received.
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Vendor, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Vendor, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CredentialError is returned before any request when the vendor needs an
// API key and none is configured.
type CredentialError struct {
	Vendor tool.Vendor
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("no credential configured for vendor %s", e.Vendor)
}

// ExhaustedError reports that the model kept requesting tools for MaxTurns
// turns.
type ExhaustedError struct {
	MaxTurns int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d turns", ErrTurnLimitExceeded, e.MaxTurns)
}

func (e *ExhaustedError) Unwrap() error { return ErrTurnLimitExceeded }
