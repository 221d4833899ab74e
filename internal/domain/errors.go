package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when the edit target is not visible in the caller's dashboard scope.
	ErrForbidden = errors.New("participant not visible in current scope")
	// ErrParticipantNotFound is returned when the participant row does not exist.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrStatsForbidden is returned when the caller's role may not view the dashboard.
	ErrStatsForbidden = errors.New("role may not view impact statistics")
)

// PersistenceError reports a failed write. The transaction has been rolled back
// and the caller may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failed write may be submitted again.
func (e *PersistenceError) Retryable() bool {
	return true
}
