// Package errors provides error handling for Noculars.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrAgentTimeout) {
//	    // handle timeout
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

// Sentinel errors for the pipeline failure taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrConfig indicates an invalid agent registry or configuration
	// (unknown dependency, dependency cycle, bad policy values).
	// Fatal at startup, never retried.
	ErrConfig = New("invalid configuration")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrDependencyNotMet indicates an agent's prerequisite has not
	// succeeded recently enough. The agent is skipped, not retried.
	ErrDependencyNotMet = New("dependency not met")

	// ErrAgentExecution indicates an agent's unit of work reported failure.
	// Retried up to the agent's MaxRetries, then terminal Failed.
	ErrAgentExecution = New("agent execution failed")

	// ErrAgentTimeout indicates an agent attempt exceeded its deadline.
	// Retried up to the agent's MaxRetries, then terminal TimedOut.
	ErrAgentTimeout = New("agent timed out")

	// ErrStoreWrite indicates durable persistence of run state failed.
	// Bounded retry, then pipeline-level fatal abort: downstream correctness
	// depends on accurate state.
	ErrStoreWrite = New("run state write failed")

	// ErrRunLocked indicates another invocation holds the exclusive lock
	// for this pipeline run.
	ErrRunLocked = New("pipeline run is locked by another invocation")
)

// IsConfigError checks if an error is or wraps ErrConfig.
func IsConfigError(err error) bool {
	return err != nil && Is(err, ErrConfig)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsDependencyNotMetError checks if an error is or wraps ErrDependencyNotMet.
func IsDependencyNotMetError(err error) bool {
	return err != nil && Is(err, ErrDependencyNotMet)
}

// IsAgentTimeoutError checks if an error is or wraps ErrAgentTimeout.
func IsAgentTimeoutError(err error) bool {
	return err != nil && Is(err, ErrAgentTimeout)
}

// IsStoreWriteError checks if an error is or wraps ErrStoreWrite.
// Store failures abort the whole run and are surfaced distinctly from
// agent-level failures.
func IsStoreWriteError(err error) bool {
	return err != nil && Is(err, ErrStoreWrite)
}

// IsRunLockedError checks if an error is or wraps ErrRunLocked.
func IsRunLockedError(err error) bool {
	return err != nil && Is(err, ErrRunLocked)
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewConfigError creates a configuration error with a formatted message.
func NewConfigError(format string, args ...interface{}) error {
	return Wrap(ErrConfig, Newf(format, args...).Error())
}
