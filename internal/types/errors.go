package types

import "fmt"

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// Validation errors
	ErrValidation ErrorCode = "VALIDATION"

	// Binding errors
	ErrAlreadyBound   ErrorCode = "ALREADY_BOUND"
	ErrNotBound       ErrorCode = "NOT_BOUND"
	ErrHandleTaken    ErrorCode = "HANDLE_TAKEN"
	ErrHandleNotFound ErrorCode = "HANDLE_NOT_FOUND"

	// Ledger errors
	ErrInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrSameIdentity        ErrorCode = "SAME_IDENTITY"

	// Check-in errors
	ErrAlreadyCheckedIn ErrorCode = "ALREADY_CHECKED_IN"

	// Redemption errors
	ErrExternalUnavailable ErrorCode = "EXTERNAL_UNAVAILABLE"
	ErrRedemptionFailed    ErrorCode = "REDEMPTION_FAILED"
	ErrAmbiguousOutcome    ErrorCode = "AMBIGUOUS_OUTCOME"

	// System errors
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
	ErrStorageError  ErrorCode = "STORAGE_ERROR"
)

// EngineError represents an engine-related error
type EngineError struct {
	Code    ErrorCode
	Message string
	Err     error // Underlying error, if any
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError
func NewEngineError(code ErrorCode, message string) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error in an EngineError
func WrapError(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsEngineError checks if an error is an EngineError and has a specific code
func IsEngineError(err error, code ErrorCode) bool {
	var engineErr *EngineError
	if err == nil {
		return false
	}
	if ok := As(err, &engineErr); !ok {
		return false
	}
	return engineErr.Code == code
}

// Retryable reports whether re-invoking the failed operation is safe for the
// caller. Only a pre-request network failure qualifies: no remote state can
// have changed. An AMBIGUOUS_OUTCOME must go through reconciliation first.
func Retryable(err error) bool {
	return IsEngineError(err, ErrExternalUnavailable)
}

// As is a helper function to safely type assert an error to an EngineError
func As(err error, target **EngineError) bool {
	if target == nil {
		return false
	}
	for err != nil {
		if engineErr, ok := err.(*EngineError); ok {
			*target = engineErr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
