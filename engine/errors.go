/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place. Callers classify errors with errors.Is
  against the sentinels or with the Is* helpers below; the HTTP layer maps
  them onto status codes.

ERROR CATEGORIES:
  1. Validation - bad amounts, split mismatch, unknown interval
  2. Authorization - acting user or payer outside the target group
  3. Not found - user, group, template or notification missing
  4. Conflict - already friends, already a member, concurrent claim
  5. Side effects - notification failures (logged, never returned)
  6. Recurrence data - stored split plan cannot be decoded (template skipped)

SEE ALSO:
  - validate.go: Produces ValidationError and SplitMismatchError
  - recurrence.go: Produces MalformedRecurrenceError
  - api/handlers.go: Maps errors to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	ErrUnauthorized = errors.New("not authorized")

	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned for duplicate friendships, memberships and emails.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConcurrentModification is returned when an optimistic claim loses a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrCurrencyMismatch = errors.New("currency mismatch")

	ErrInvalidInterval = errors.New("invalid recurrence interval")

	ErrMalformedRecurrence = errors.New("malformed recurrence data")

	// ErrSideEffect marks best-effort work (notifications) that failed.
	ErrSideEffect = errors.New("side effect failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// SplitMismatchError reports splits that do not add up to the expense total.
type SplitMismatchError struct {
	Total decimal.Decimal
	Sum   decimal.Decimal
}

func (e *SplitMismatchError) Error() string {
	return fmt.Sprintf("Split mismatch: Total %s does not match sum of splits %s",
		e.Total.String(), e.Sum.String())
}

func (e *SplitMismatchError) Unwrap() error { return ErrValidation }

type AuthorizationError struct {
	UserID  UserID
	GroupID GroupID
	Role    string // "actor" or "payer"
}

func (e *AuthorizationError) Error() string {
	if e.Role == "payer" {
		return fmt.Sprintf("payer %s is not a member of group %s", e.UserID, e.GroupID)
	}
	return fmt.Sprintf("user %s is not a member of group %s", e.UserID, e.GroupID)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return ErrAlreadyExists }

type CurrencyMismatchError struct {
	Want Currency
	Got  Currency
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s vs %s", e.Want, e.Got)
}

func (e *CurrencyMismatchError) Unwrap() error { return ErrCurrencyMismatch }

// MalformedRecurrenceError means a template's stored split plan is unusable.
// The scheduler skips the template and keeps sweeping.
type MalformedRecurrenceError struct {
	TemplateID RecurringID
	Err        error
}

func (e *MalformedRecurrenceError) Error() string {
	return fmt.Sprintf("recurring expense %s: malformed split plan: %v", e.TemplateID, e.Err)
}

func (e *MalformedRecurrenceError) Unwrap() []error { return []error{ErrMalformedRecurrence, e.Err} }

type SideEffectError struct {
	Op  string
	Err error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SideEffectError) Unwrap() []error { return []error{ErrSideEffect, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrCurrencyMismatch)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func notFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}
