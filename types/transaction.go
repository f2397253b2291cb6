package types

import "time"

// LoanStatus is the state of a loan transaction.
type LoanStatus string

// Loan states.
const (
	LoanActive   LoanStatus = "ACTIVE"
	LoanReturned LoanStatus = "RETURNED"
)

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	return s == LoanActive || s == LoanReturned
}

// Transaction is a loan created when a book request is approved.
type Transaction struct {
	// ID is the unique identifier of the loan.
	ID int `json:"id" db:"id"`

	// UserID identifies the borrowing patron.
	UserID int `json:"user_id" db:"user_id"`

	// BookID identifies the borrowed book.
	BookID int `json:"book_id" db:"book_id"`

	// RequestID identifies the approved request that created the loan.
	RequestID *int `json:"request_id,omitempty" db:"request_id"`

	// BorrowedAt is when the loan started.
	BorrowedAt time.Time `json:"borrowed_at" db:"borrowed_at"`

	// DueDate is when the book must be returned.
	DueDate time.Time `json:"due_date" db:"due_date"`

	// ReturnedAt is set when the book comes back.
	ReturnedAt *time.Time `json:"returned_at,omitempty" db:"returned_at"`

	// Status is the current loan state.
	Status LoanStatus `json:"status" db:"status"`

	// CreatedAt is the timestamp at which the loan row was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TransactionFilter narrows a loan listing. Zero values mean "any".
type TransactionFilter struct {
	UserID int
	Status LoanStatus
}
