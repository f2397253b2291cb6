package types

import "time"

// BookRequestEvent is published whenever a book request changes state.
type BookRequestEvent struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type is "created", "processed", or "cancelled".
	Type string `json:"type"`

	// RequestID identifies the request.
	RequestID int `json:"request_id"`

	// UserID identifies the patron who owns the request.
	UserID int `json:"user_id"`

	// BookID identifies the requested book.
	BookID int `json:"book_id"`

	// Status is the request status after the change.
	Status RequestStatus `json:"status"`

	// Notes is the staff comment, when one was recorded.
	Notes string `json:"notes,omitempty"`

	// DueDate is set for approvals.
	DueDate *time.Time `json:"due_date,omitempty"`

	// OccurredAt is when the change was committed.
	OccurredAt time.Time `json:"occurred_at"`
}

// Book request event types.
const (
	EventRequestCreated   = "created"
	EventRequestProcessed = "processed"
	EventRequestCancelled = "cancelled"
)
