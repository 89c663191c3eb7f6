package domain

import (
	"errors"
	"fmt"
)

// InputError reports a request with missing or malformed user input.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// NewInputError returns an InputError with the given message.
func NewInputError(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err is or wraps an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// UpstreamError reports a failure of an external model service.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamError for service.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Service: service, Err: err}
}
