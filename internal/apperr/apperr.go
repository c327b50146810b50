// Package apperr holds the error types shared across reviewgen packages and
// a classifier that maps any error onto the caller-facing taxonomy.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error by what the caller can do about it.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindExtraction    Kind = "extraction"
	KindGeneration    Kind = "generation"
	KindAudit         Kind = "audit"
	KindImageProvider Kind = "image_provider"
	KindInternal      Kind = "internal"
)

// Kinded is implemented by errors that know their own Kind.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf walks the error chain and returns the first Kind it finds.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// FieldError describes a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed caller input. No external call has been
// made when one of these is returned.
type ValidationError struct {
	Fields []FieldError
}

// Add records a violation.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns e if any violation was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// FieldNames returns the violated field names in the order they were recorded.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return names
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Kind() Kind { return KindValidation }
