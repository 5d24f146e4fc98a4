// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Request outcome errors. Callers branch on these with errors.Is.
	ErrValidationFailed  = errors.New("validation failed")
	ErrCongested         = errors.New("store congested, try again")
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrUnavailable       = errors.New("store unavailable")
	ErrTooLarge          = errors.New("upload exceeds maximum size")
	ErrInvalidBatch      = errors.New("invalid batch")

	// Database errors.
	ErrNotFound = errors.New("not found")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable reports whether the caller may try the same request again.
// Only congestion qualifies; persistence and availability failures do not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCongested)
}
