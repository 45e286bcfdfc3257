package errors

import (
	"errors"
	"fmt"
)

// Standard errors
var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrValidation is returned when input is malformed, e.g. an embedding
	// with the wrong dimensionality
	ErrValidation = errors.New("validation failed")

	// ErrInfrastructureUnavailable is returned when the durable backend is
	// unreachable or the circuit breaker is open
	ErrInfrastructureUnavailable = errors.New("infrastructure unavailable")

	// ErrProvider is returned when an LLM or embedding provider call fails
	ErrProvider = errors.New("provider error")

	// ErrToolExecution is returned when a tool invocation raises an error
	ErrToolExecution = errors.New("tool execution error")

	// ErrTimeout is returned when a turn-level or per-operation deadline expires
	ErrTimeout = errors.New("operation timed out")
)

// Wrap wraps an error with additional context
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience function that wraps errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target, and if so, sets
// target to that error value and returns true. Otherwise, it returns false.
// This is a convenience function that wraps errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
// This is a convenience function that wraps errors.New
func New(text string) error {
	return errors.New(text)
}
