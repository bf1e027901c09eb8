package types

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRole     = errors.New("role must be 'therapist' or 'patient'")
	ErrInvalidUsername = errors.New("username must be 1-80 characters")
	ErrInvalidEventType = errors.New("invalid event type")
)

// FieldError reports a missing or mistyped payload field. One malformed
// event fails alone; the connection and other rooms are unaffected.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("missing or invalid field %q", e.Field)
}
