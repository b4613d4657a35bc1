package store

import (
	"errors"
	"fmt"

	"qms/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrServiceNotFound   = fmt.Errorf("service %w", ErrNotFound)
	ErrCounterNotFound   = fmt.Errorf("counter %w", ErrNotFound)
	ErrTokenNotFound     = fmt.Errorf("token %w", ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidAssignment = errors.New("invalid counter assignment")
	ErrValidation        = errors.New("validation failed")
)

// TransitionError names the rejected status change.
type TransitionError struct {
	From models.TokenStatus
	To   models.TokenStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
