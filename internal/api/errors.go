package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/phigo/internal/inference"
	"github.com/samcharles93/phigo/internal/logits"
	"github.com/samcharles93/phigo/internal/model"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	// ErrEngineUnavailable is returned when no engine is loaded.
	ErrEngineUnavailable = errors.New("engine unavailable")
)

// StatusClientClosedRequest is recorded when the client goes away before
// the response is written.
const StatusClientClosedRequest = 499

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// apiError is the classification of an error for the response envelope.
type apiError struct {
	status  int
	errType string
	code    string
}

func classify(err error) apiError {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return apiError{http.StatusBadRequest, "invalid_request_error", ""}
	case errors.Is(err, logits.ErrInvalidSamplingParameter):
		return apiError{http.StatusBadRequest, "invalid_request_error", "invalid_sampling_parameter"}
	case errors.Is(err, inference.ErrInvalidMaxTokens):
		return apiError{http.StatusBadRequest, "invalid_request_error", "invalid_max_tokens"}
	case errors.Is(err, inference.ErrTokenization):
		return apiError{http.StatusBadRequest, "invalid_request_error", "tokenization_failure"}
	case errors.Is(err, model.ErrContextOverflow):
		return apiError{http.StatusBadRequest, "invalid_request_error", "context_length_exceeded"}
	case errors.Is(err, context.DeadlineExceeded):
		return apiError{http.StatusGatewayTimeout, "timeout_error", "request_timeout"}
	case errors.Is(err, context.Canceled):
		return apiError{StatusClientClosedRequest, "", ""}
	case errors.Is(err, ErrEngineUnavailable):
		return apiError{http.StatusServiceUnavailable, "server_error", "engine_unavailable"}
	default:
		return apiError{http.StatusInternalServerError, "server_error", ""}
	}
}
