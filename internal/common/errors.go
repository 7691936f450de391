// Package common defines sentinel errors shared across the client layers.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Validation errors raised by local mutations.
	ErrValidation = errors.New("validation error")
)
