package services

import (
	"fmt"
	"strings"
)

// ValidationError reports request fields that failed pre-flight validation.
// It is raised before any carrier call is attempted.
type ValidationError struct {
	fields []string
}

// NewValidationError constructs a ValidationError for the named fields.
func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{fields: fields}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("rate request validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}
