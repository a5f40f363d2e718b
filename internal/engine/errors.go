package engine

import (
	"errors"
	"fmt"

	"compliance-case-service/internal/store"
)

// Kind classifies an engine error for retry and HTTP mapping decisions.
type Kind int

const (
	// KindTransient marks infrastructure failures; the execution facility
	// retries these, nothing else.
	KindTransient Kind = iota
	KindNotFound
	KindPrecondition
	KindValidation
	KindForbidden
	KindConflict
)

// Error is a classified business error. Activities return these instead of
// raising; the dispatcher folds them into structured results.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func notFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func preconditionf(format string, args ...any) error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func forbiddenf(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf resolves the error's kind. Unclassified errors count as transient:
// anything the activities did not explicitly reject is assumed to be an
// infrastructure failure worth retrying.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, store.ErrNotFound) {
		return KindNotFound
	}
	return KindTransient
}

// IsTransient reports whether err should be retried by the facility.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}
