package domain

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for the resolution
// engine. Ordinary input and dependency failures cause a tier to decline
// and are never surfaced to live callers; only capacity failures are hard.
type ErrorCategory string

const (
	// ErrorInput indicates unparseable or missing required fields.
	ErrorInput ErrorCategory = "input"

	// ErrorDependency indicates an external lookup was unreachable or
	// timed out.
	ErrorDependency ErrorCategory = "dependency"

	// ErrorConsistency indicates a decision was already recorded for a
	// signal id with conflicting content. The prior decision wins.
	ErrorConsistency ErrorCategory = "consistency"

	// ErrorCapacity indicates an irrecoverable chunk or storage failure.
	// The only category surfaced as a hard failure.
	ErrorCapacity ErrorCategory = "capacity"
)

// ResolutionError wraps engine failures with their taxonomy category.
type ResolutionError struct {
	Category ErrorCategory
	Op       string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Category, e.Err)
	}
	return fmt.Sprintf("%s [%s]", e.Op, e.Category)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying. Only dependency
// and capacity failures are; bad input never heals on retry.
func (e *ResolutionError) Retryable() bool {
	return e.Category == ErrorDependency || e.Category == ErrorCapacity
}

// NewInputError wraps a field-level parse failure.
func NewInputError(op string, err error) *ResolutionError {
	return &ResolutionError{Category: ErrorInput, Op: op, Err: err}
}

// NewDependencyError wraps an external lookup failure.
func NewDependencyError(op string, err error) *ResolutionError {
	return &ResolutionError{Category: ErrorDependency, Op: op, Err: err}
}

// NewConsistencyError wraps a conflicting-replay detection.
func NewConsistencyError(op string, err error) *ResolutionError {
	return &ResolutionError{Category: ErrorConsistency, Op: op, Err: err}
}

// NewCapacityError wraps an irrecoverable batch/storage failure.
func NewCapacityError(op string, err error) *ResolutionError {
	return &ResolutionError{Category: ErrorCapacity, Op: op, Err: err}
}

// Category extracts the taxonomy category, defaulting to dependency for
// unclassified errors so callers err on the side of retrying.
func Category(err error) ErrorCategory {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Category
	}
	return ErrorDependency
}

// IsCapacity reports whether err is a hard capacity failure.
func IsCapacity(err error) bool {
	return Category(err) == ErrorCapacity
}
