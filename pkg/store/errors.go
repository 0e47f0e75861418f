package store

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrDuplicateUsername   = errors.New("username already taken")
	ErrDuplicateEmail      = errors.New("email already in use")

	// ErrTaskClosed is returned when a description task already reached a terminal state.
	ErrTaskClosed = errors.New("description task closed")
)
