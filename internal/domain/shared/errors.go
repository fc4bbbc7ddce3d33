// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrStateTransition = errors.New("invalid state transition")

	// Allocation errors
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrIneligibleStudents   = errors.New("ineligible students")
	ErrCompanyNotAccepted   = errors.New("company is not accepted")
	ErrSlotInactive         = errors.New("slot is inactive")

	// Persistence errors
	ErrRepository = errors.New("repository failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "allocation", "lifecycle"
	Op      string // Operation that failed, e.g., "Assign", "Transition"
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

// ══════════════════════════════════════════════════════════════════════════════
// TYPED ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// InsufficientCapacityError is returned when a slot cannot take the requested
// number of students. The batch is never truncated.
type InsufficientCapacityError struct {
	SlotID    string
	Requested int
	Available int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("slot %s: requested %d, available %d", e.SlotID, e.Requested, e.Available)
}

func (e *InsufficientCapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

// IneligibleStudentsError names every student that blocked a batch.
type IneligibleStudentsError struct {
	SlotID  string
	IDs     []string
	Reasons map[string][]string
}

func (e *IneligibleStudentsError) Error() string {
	ids := append([]string(nil), e.IDs...)
	sort.Strings(ids)
	return fmt.Sprintf("slot %s: ineligible students [%s]", e.SlotID, strings.Join(ids, ", "))
}

func (e *IneligibleStudentsError) Is(target error) bool {
	return target == ErrIneligibleStudents
}

// InvalidTransitionError reports a rejected state change. From is the state
// that was actually persisted when the change was attempted; Allowed lists
// the states reachable from it.
type InvalidTransitionError struct {
	Kind        string
	ID          string
	From        string
	AttemptedTo string
	Allowed     []string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("%s %s: cannot transition from %q to %q", e.Kind, e.ID, e.From, e.AttemptedTo)
	if len(e.Allowed) > 0 {
		msg += " (allowed: " + strings.Join(e.Allowed, ", ") + ")"
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrStateTransition
}

// EntityNotFoundError is returned when a referenced entity does not exist.
type EntityNotFoundError struct {
	Kind string
	ID   string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *EntityNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFound is a shorthand for *EntityNotFoundError.
func NewNotFound(kind, id string) error {
	return &EntityNotFoundError{Kind: kind, ID: id}
}

// RepositoryError wraps a storage failure (aborted transaction, lost
// connection). It is not recoverable inside the core.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func (e *RepositoryError) Is(target error) bool {
	return target == ErrRepository
}

// NewRepositoryError wraps err unless it is nil or already a domain-level error.
func NewRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) || IsNotFound(err) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRecoverable reports whether the caller can act on the error (refresh,
// shrink the batch, pick another slot) rather than treat it as an outage.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrIneligibleStudents) ||
		errors.Is(err, ErrStateTransition) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCompanyNotAccepted) ||
		errors.Is(err, ErrSlotInactive) ||
		IsValidation(err)
}
