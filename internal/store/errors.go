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

const pqUniqueViolation = "23505"

// ConflictError reports the unique constraint a write collided with.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s", e.Constraint)
}

// Is makes errors.Is(err, ErrConflict) hold for every ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Unique constraint names declared by the migrations.
const (
	ConstraintUserEmail      = "users_email_key"
	ConstraintUserCardNumber = "users_library_card_number_key"
	ConstraintBookISBN       = "books_isbn_key"
	ConstraintCategoryKey    = "categories_name_key_key"
	ConstraintPendingRequest = "book_requests_one_pending_idx"
)

// IsConflictOn reports whether err is a unique violation of constraint.
func IsConflictOn(err error, constraint string) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict) && conflict.Constraint == constraint
}

func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return &ConflictError{Constraint: pqErr.Constraint}
	}
	return err
}
