package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMismatch reports weights or geometry that do not agree with
	// the model configuration. It is fatal at load time.
	ErrConfigMismatch = errors.New("config_mismatch")
	// ErrInvalidInput reports a malformed forward call.
	ErrInvalidInput = errors.New("invalid_input")
	// ErrContextOverflow reports a forward call that would grow the cache
	// past MaxSequenceLength.
	ErrContextOverflow = errors.New("context_overflow")
)

// MismatchError describes one binding failure.
type MismatchError struct {
	Name string
	Want []int
	Got  []int
	Msg  string
}

func (e *MismatchError) Error() string {
	switch {
	case e.Msg != "" && e.Name != "":
		return fmt.Sprintf("%s: %s", e.Name, e.Msg)
	case e.Msg != "":
		return e.Msg
	default:
		return fmt.Sprintf("%s: shape %v, want %v", e.Name, e.Got, e.Want)
	}
}

func (e *MismatchError) Unwrap() error {
	return ErrConfigMismatch
}

func mismatchf(format string, args ...any) error {
	return &MismatchError{Msg: fmt.Sprintf(format, args...)}
}

func invalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
