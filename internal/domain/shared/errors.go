// Package shared contains common domain types, errors and events that are used
// across all domain packages. It depends only on pkg/timeutil.
package shared

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is; DomainError values carry one of
// these as their Kind.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrUserNotResolvable: the trigger owner has no linked account. The
	// trigger is skipped, not failed.
	ErrUserNotResolvable = errors.New("user not resolvable")
	ErrInvalidCriteria   = errors.New("invalid badge criteria")

	// Transient kinds. A trigger that fails with one of these is rolled back
	// and may be retried unchanged.
	ErrTransientPersistence = errors.New("transient persistence failure")
	ErrServiceUnavailable   = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "profile", "badge", "leaderboard"
	Op      string // Operation that failed, e.g., "AddPoints", "ParseCriteria"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Sentinel domain errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	ErrProfileNotFound  = NewDomainError("profile", "Find", ErrNotFound, "profile not found")
	ErrNegativePoints   = NewDomainError("profile", "AddPoints", ErrNegativeValue, "point delta must be non-negative")
	ErrEmptyUserID      = NewDomainError("profile", "Validate", ErrInvalidID, "user id is required")
	ErrAccountNotLinked = NewDomainError("account", "Resolve", ErrUserNotResolvable, "no account linked to trigger")

	ErrUnknownBadgeType    = NewDomainError("badge", "ParseCriteria", ErrInvalidCriteria, "unknown badge type")
	ErrDuplicateBadgeName  = NewDomainError("badge", "LoadCatalog", ErrAlreadyExists, "duplicate badge name")
	ErrNegativeBadgeReward = NewDomainError("badge", "Validate", ErrNegativeValue, "points reward must be non-negative")

	ErrUnknownPeriod    = NewDomainError("leaderboard", "ParsePeriod", ErrInvalidInput, "unknown leaderboard period")
	ErrSnapshotNotFound = NewDomainError("leaderboard", "FindSnapshot", ErrNotFound, "snapshot not found")

	ErrUnknownTriggerKind = NewDomainError("trigger", "Validate", ErrInvalidInput, "unknown trigger kind")
)

// IsNotFound reports ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUserNotResolvable reports a trigger without a linked account.
func IsUserNotResolvable(err error) bool {
	return errors.Is(err, ErrUserNotResolvable)
}

// IsValidation reports input that will fail again unchanged.
func IsValidation(err error) bool {
	for _, kind := range []error{
		ErrValidation, ErrInvalidID, ErrInvalidInput,
		ErrNegativeValue, ErrValueOutOfRange, ErrInvalidCriteria,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsRetryable reports failures worth replaying: transient storage errors,
// unavailable dependencies and deadlines that ran out.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientPersistence) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
