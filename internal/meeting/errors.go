package meeting

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUserNotFound is returned when a requested user id is empty or has
	// no sightings. It is a notice, not a defect.
	ErrUserNotFound = errors.New("user not found")

	// ErrSameUser is returned when both requested ids are identical.
	ErrSameUser = errors.New("user ids must be distinct")

	// ErrForeignUser is returned when the input holds a sighting of a user
	// other than the two requested.
	ErrForeignUser = errors.New("sighting belongs to neither requested user")

	// ErrReconstructionInvariant marks a reconstructed record whose
	// counterpart state lies in its future. It indicates corrupted merge
	// order and is never filtered silently.
	ErrReconstructionInvariant = errors.New("reconstruction invariant violated")
)

// UserNotFoundError names the user id that could not be resolved.
type UserNotFoundError struct {
	UserID string
}

func (e *UserNotFoundError) Error() string {
	if e.UserID == "" {
		return "user not found: empty user id"
	}
	return fmt.Sprintf("user not found: %q", e.UserID)
}

func (e *UserNotFoundError) Unwrap() error { return ErrUserNotFound }

// InvariantViolationError reports the record that failed the elapsed-time
// check.
type InvariantViolationError struct {
	Record  Reconstructed
	Elapsed time.Duration
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%v: sighting of %s at %s has counterpart seen %s later",
		ErrReconstructionInvariant, e.Record.UserID,
		e.Record.Timestamp.Format(time.RFC3339Nano), -e.Elapsed)
}

func (e *InvariantViolationError) Unwrap() error { return ErrReconstructionInvariant }
