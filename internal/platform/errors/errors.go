package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindProvider     Kind = "provider"
	KindExtraction   Kind = "extraction"
	KindDuration     Kind = "duration"
	KindQuota        Kind = "quota"
	KindRateLimit    Kind = "rate_limit"
	KindStorage      Kind = "storage"
	KindTransport    Kind = "transport"
	KindBootstrap    Kind = "bootstrap"
	KindConfig       Kind = "config"
	KindUnknown      Kind = "unknown"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error

	// Transient marks provider failures that are expected to clear on
	// retry (timeouts, 429s, transport hiccups). Non-provider kinds
	// leave it false.
	Transient bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

// NewTransient builds a provider error that the orchestrator is allowed
// to retry.
func NewTransient(op, message string, err error) *Error {
	return &Error{
		Kind:      KindProvider,
		Op:        op,
		Message:   message,
		Cause:     err,
		Transient: true,
	}
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			return target.Kind == kind
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsTransient reports whether the error chain carries a retryable
// provider failure. Unclassified errors are treated as non-transient so
// that unknown failures surface instead of being retried forever.
func IsTransient(err error) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Transient
	}
	return false
}
