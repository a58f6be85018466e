// Package apperrors defines the failure taxonomy shared by the investment,
// commission and withdrawal services. Callers match with errors.Is.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation means the input had a bad shape or range. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState means the operation is not legal for the current lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound means an unknown id.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePendingRequest means an idempotency guard tripped. The caller may poll the existing request.
	ErrDuplicatePendingRequest = errors.New("duplicate pending request")
	// ErrSameDayUpgrade means an amount upgrade was already requested on this calendar day.
	ErrSameDayUpgrade = errors.New("same-day upgrade not allowed")
	// ErrConcurrentModification means an optimistic check failed. Safe to retry once.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrExternalApproval means the approver could not be notified. The action itself was persisted.
	ErrExternalApproval = errors.New("external approval channel unavailable")
	// ErrInvariant marks a monetary computation that produced an impossible value.
	ErrInvariant = errors.New("invariant violation")
)

// Error carries a human readable message on top of one of the sentinels.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newError(ErrValidation, format, args...)
}

func InvalidState(format string, args ...interface{}) error {
	return newError(ErrInvalidState, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

func DuplicatePending(format string, args ...interface{}) error {
	return newError(ErrDuplicatePendingRequest, format, args...)
}

func SameDayUpgrade(format string, args ...interface{}) error {
	return newError(ErrSameDayUpgrade, format, args...)
}

func ConcurrentModification(format string, args ...interface{}) error {
	return newError(ErrConcurrentModification, format, args...)
}

func Invariant(format string, args ...interface{}) error {
	return newError(ErrInvariant, format, args...)
}

// ExternalApproval wraps a notifier failure so the caller can tell it apart
// from a failed operation.
func ExternalApproval(cause error) error {
	return fmt.Errorf("%w: %v", ErrExternalApproval, cause)
}
