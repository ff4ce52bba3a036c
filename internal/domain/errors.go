package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the lesson engine.
type Kind string

// Error kinds.
const (
	KindInvalidInput     Kind = "invalid_input"
	KindUnauthenticated  Kind = "unauthenticated"
	KindNotFound         Kind = "not_found"
	KindAlreadyCompleted Kind = "already_completed"
	KindBusy             Kind = "busy"
	KindGenerationFailed Kind = "generation_failed"
	KindStorageFailed    Kind = "storage_failed"
	KindInternal         Kind = "internal"
)

// Error is a typed lesson failure. Message is safe to show to the user;
// Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, ErrNotFound) works
// for any NotFound error regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInput     = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "session not found"}
	ErrAlreadyCompleted = &Error{Kind: KindAlreadyCompleted, Message: "lesson session is already completed"}
	ErrBusy             = &Error{Kind: KindBusy, Message: "a turn is already in progress for this session"}
	ErrGenerationFailed = &Error{Kind: KindGenerationFailed, Message: "error generating AI response"}
	ErrStorageFailed    = &Error{Kind: KindStorageFailed, Message: "failed to persist lesson data"}
)

// NewError builds an *Error of the given kind.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// InvalidInput is shorthand for a KindInvalidInput error without a cause.
func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// StorageFailed wraps a persistence error.
func StorageFailed(message string, err error) *Error {
	return &Error{Kind: KindStorageFailed, Message: message, Err: err}
}

// GenerationFailed wraps a language-model error.
func GenerationFailed(err error) *Error {
	return &Error{Kind: KindGenerationFailed, Message: ErrGenerationFailed.Message, Err: err}
}

// KindOf returns the Kind carried by err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
