package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a unique constraint.
var ErrConflict = errors.New("conflict")

const uniqueViolation = "23505"

// mapWriteError turns unique violations into ErrConflict and keeps the constraint name.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
	}
	return err
}
