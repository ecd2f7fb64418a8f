package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrTenantNotFound indicates that the referenced tenant does not exist.
var ErrTenantNotFound = fmt.Errorf("tenant: %w", ErrNotFound)

// ErrAccountNotFound indicates that the referenced account does not exist.
var ErrAccountNotFound = fmt.Errorf("account: %w", ErrNotFound)

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrConflict indicates that the requested operation conflicts with the current resource state.
var ErrConflict = errors.New("resource state conflict")

// ErrForbidden indicates that the principal is not allowed to perform the operation.
var ErrForbidden = errors.New("operation forbidden")

// ErrAccessDenied indicates a terminal denial by the access gate. Denials are audited.
var ErrAccessDenied = fmt.Errorf("access denied: %w", ErrForbidden)

// ErrInsufficientFunds indicates that an account's available balance cannot cover the operation.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrVersionConflict indicates that a guarded account update observed a stale version.
// The caller must re-read the account and retry.
var ErrVersionConflict = errors.New("account version conflict")

// ErrRetryExhausted indicates that the bounded retry policy gave up on version conflicts.
var ErrRetryExhausted = fmt.Errorf("conflict retries exhausted: %w", ErrConflict)

// ErrInvariantViolation indicates that committing the operation would break a ledger invariant.
var ErrInvariantViolation = errors.New("ledger invariant violation")

// ErrHierarchyCycle indicates that a tenant move would introduce a cycle.
var ErrHierarchyCycle = errors.New("tenant hierarchy cycle")

// ErrNotPosted indicates an operation that requires a posted ledger entry.
var ErrNotPosted = errors.New("ledger entry is not posted")

// ErrAlreadyReversed indicates an attempt to reverse an entry that is already
// reversed, or to reverse a reversal entry.
var ErrAlreadyReversed = errors.New("ledger entry already reversed")

// ErrStoreUnavailable indicates a transient persistence failure.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrInternal indicates an unexpected internal failure that should not leak details.
var ErrInternal = errors.New("internal error")

// AppError carries an error code and message alongside the underlying cause.
// Repositories wrap raw store failures in it so services can log a stable
// message while errors.Is still reaches the cause.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an AppError wrapping the given cause.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewNotFoundError creates an AppError that satisfies errors.Is(err, ErrNotFound).
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: 404, Message: message, Err: ErrNotFound}
}
