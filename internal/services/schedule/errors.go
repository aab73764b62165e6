package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRule is wrapped by every ValidationError
	ErrInvalidRule = errors.New("invalid recurring rule")

	// ErrProrationInvariant means an occurrence started after the rule ended.
	// The generator stops before that can happen, so seeing it is a bug.
	ErrProrationInvariant = errors.New("proration invariant violated")

	// ErrAnchorLimit is returned when anchoring to today needs more than
	// MaxAnchorSteps advances
	ErrAnchorLimit = errors.New("anchor search exceeded step limit")
)

// ValidationError describes a bad rule or bad generation parameters
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidRule
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRule
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
