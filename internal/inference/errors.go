package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenization reports prompt text the tokenizer could not encode, or
	// generated ids it could not decode.
	ErrTokenization = errors.New("tokenization_failure")
	// ErrInvalidMaxTokens reports a requested completion length below one.
	ErrInvalidMaxTokens = errors.New("invalid_max_tokens")
	// ErrSessionStopped is returned by Next once a session has stopped.
	ErrSessionStopped = errors.New("session stopped")
)

// TokenizationError wraps a tokenizer failure with the direction it
// happened in.
type TokenizationError struct {
	Op  string
	Err error
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("tokenization failure during %s: %v", e.Op, e.Err)
}

func (e *TokenizationError) Unwrap() []error {
	return []error{ErrTokenization, e.Err}
}
