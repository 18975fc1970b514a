// Package validation collects field-scoped problems with submitted forms.
package validation

import (
	"errors"
	"sort"
	"strings"
)

// Error captures field level validation issues that callers can surface to users.
// All problems are collected so a form can be redisplayed with every field flagged at once.
type Error struct {
	FieldErrors map[string]string `json:"fields"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil || len(e.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// Add records a field level error. A later message for the same field replaces the earlier one.
func (e *Error) Add(field, message string) {
	if e.FieldErrors == nil {
		e.FieldErrors = make(map[string]string)
	}
	e.FieldErrors[field] = message
}

// Has reports whether field has an error.
func (e *Error) Has(field string) bool {
	if e == nil {
		return false
	}
	_, ok := e.FieldErrors[field]
	return ok
}

// HasErrors reports whether any field level issues were recorded.
func (e *Error) HasErrors() bool {
	return e != nil && len(e.FieldErrors) > 0
}

// Merge copies entries from other into the receiver.
func (e *Error) Merge(other *Error) {
	if other == nil {
		return
	}
	for field, msg := range other.FieldErrors {
		e.Add(field, msg)
	}
}

// Err returns the receiver as an error when it holds problems, else nil.
func (e *Error) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// Fields extracts the field map from err if it is (or wraps) a *Error.
func Fields(err error) (map[string]string, bool) {
	var v *Error
	if errors.As(err, &v) {
		return v.FieldErrors, true
	}
	return nil, false
}
