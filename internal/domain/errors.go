package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
)

// ActionError carries the failure kind together with a human readable reason and,
// when known, the authoritative status of the negotiation at the time of failure.
type ActionError struct {
	Kind   error
	Reason string
	Status NegotiationStatus
}

func (e *ActionError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *ActionError) Unwrap() error {
	return e.Kind
}

func Validationf(format string, args ...any) error {
	return &ActionError{Kind: ErrValidation, Reason: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &ActionError{Kind: ErrNotFound, Reason: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) error {
	return &ActionError{Kind: ErrForbidden, Reason: fmt.Sprintf(format, args...)}
}

func InvalidTransitionf(status NegotiationStatus, format string, args ...any) error {
	return &ActionError{Kind: ErrInvalidTransition, Reason: fmt.Sprintf(format, args...), Status: status}
}

// WithStatus fills in the negotiation status on an ActionError that does not carry one yet.
func WithStatus(err error, status NegotiationStatus) error {
	var ae *ActionError
	if errors.As(err, &ae) && ae.Status == "" {
		ae.Status = status
	}
	return err
}

// ErrInternal hides infrastructure failures from callers; the cause is logged where it happened.
var ErrInternal = errors.New("internal server error")
