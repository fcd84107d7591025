package config

import (
	"errors"
	"fmt"
)

var (
	// ErrAgentNotFound indicates an agent id is not in the catalogue.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrProfileNotFound indicates a profile name is not defined.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrUnknownOverride indicates an override references an unknown agent.
	ErrUnknownOverride = errors.New("override references unknown agent")

	// ErrInvariantViolation indicates a change that would break an engine
	// invariant, e.g. disabling a core agent.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrConfigWrite indicates persisting the configuration document failed.
	// The in-memory state is left unchanged.
	ErrConfigWrite = errors.New("config write error")

	// ErrInvalidDocument indicates the catalogue or state JSON failed to parse.
	ErrInvalidDocument = errors.New("invalid configuration document")
)

// ValidationError wraps catalogue validation errors with context.
type ValidationError struct {
	Component string // component being validated (agent, profile, provider)
	ID        string // id of the component
	Field     string // field name (optional)
	Err       error  // underlying error
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %q: field %q: %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Component, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error.
func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{Component: component, ID: id, Field: field, Err: err}
}
