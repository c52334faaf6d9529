package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidOrder   = errors.New("invalid order")
	ErrDuplicateItem  = errors.New("duplicate checklist item id")
	ErrInvalidCursor  = errors.New("cursor out of range")
	ErrEmptyContent   = errors.New("content is required")
	ErrContentTooLong = errors.New("content too long")
	ErrUnknownCommand = errors.New("unknown task command")
)

// ValidationError reports a rejected field of a mutation payload.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err was caused by caller input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
