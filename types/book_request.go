package types

import "time"

// RequestStatus is the lifecycle state of a book request.
type RequestStatus string

// Book request states. PENDING is initial; all others are terminal.
const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is permitted from s.
func (s RequestStatus) Terminal() bool {
	return s != RequestPending
}

// BookRequest is a patron's ask to borrow a book, subject to staff approval.
type BookRequest struct {
	// ID is the unique identifier of the request.
	ID int `json:"id" db:"id"`

	// UserID identifies the requesting patron.
	UserID int `json:"user_id" db:"user_id"`

	// BookID identifies the requested book.
	BookID int `json:"book_id" db:"book_id"`

	// Status is the current lifecycle state.
	Status RequestStatus `json:"status" db:"status"`

	// RequestDate is when the patron made the request.
	RequestDate time.Time `json:"request_date" db:"request_date"`

	// LibrarianID identifies the staff member who processed the request.
	LibrarianID *int `json:"librarian_id,omitempty" db:"librarian_id"`

	// ProcessedAt is when the request left PENDING.
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`

	// Notes holds an optional staff comment, used as the rejection reason.
	Notes *string `json:"notes,omitempty" db:"notes"`

	// CreatedAt is the timestamp at which the request row was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the request.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// User, Book, and Librarian are populated on reads.
	User      *UserSummary `json:"user,omitempty" db:"-"`
	Book      *BookSummary `json:"book,omitempty" db:"-"`
	Librarian *UserSummary `json:"librarian,omitempty" db:"-"`
}

// BookRequestFilter narrows a request listing. Zero values mean "any".
type BookRequestFilter struct {
	UserID int
	Status RequestStatus
}
