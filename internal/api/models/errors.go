package models

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the services wraps exactly one of them.
var (
	ErrMissingArgument = errors.New("missing argument")
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrWrongPassword   = errors.New("wrong password")
	ErrNotOwner        = errors.New("not owner")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidToken    = errors.New("invalid token")
	ErrEmpty           = errors.New("empty")
)

// Store level failures, returned by the repositories.
var (
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	ErrPostNotFound = fmt.Errorf("post %w", ErrNotFound)
	ErrNoUsers      = fmt.Errorf("no users: %w", ErrEmpty)
	ErrNoPosts      = fmt.Errorf("no posts: %w", ErrEmpty)
)

// Error is a failure reported back to the caller with a human-readable message.
type Error struct {
	Err     error
	Message string
}

// NewError creates an Error of the given kind.
func NewError(err error, message string) *Error {
	return &Error{Err: err, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
