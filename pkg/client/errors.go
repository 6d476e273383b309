package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when an operation fails MaxRetries times
	// in a row. It is terminal: callers are expected to stop the run.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrInvalidLookup is returned when a batch lookup has no ids or too many.
	ErrInvalidLookup = errors.New("invalid user lookup")

	// ErrMissingID is returned when a record has no numeric id field.
	ErrMissingID = errors.New("record has no id")
)

// RetryExhaustedError carries the context of a terminal failure.
type RetryExhaustedError struct {
	Operation  string
	Attempts   int
	LastStatus int // 0 when the last attempt failed in transport
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	if e.LastStatus == 0 {
		return fmt.Sprintf("%s: %v after %d attempts (last error: transport)",
			e.Operation, ErrRetryExhausted, e.Attempts)
	}
	return fmt.Sprintf("%s: %v after %d attempts (last status %d)",
		e.Operation, ErrRetryExhausted, e.Attempts, e.LastStatus)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RetryExhaustedError) Unwrap() error {
	return ErrRetryExhausted
}

// IsTerminal reports whether err means the run has to stop.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}
