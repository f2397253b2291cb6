package services

import (
	"context"
	"time"

	"github.com/libranet/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	MarkVerified(ctx context.Context, id int) error
}

// OTPRepository defines persistence operations for verification codes.
type OTPRepository interface {
	Create(ctx context.Context, otp types.OTPVerification) (types.OTPVerification, error)
	FindValid(ctx context.Context, userID int, code string, now time.Time) (types.OTPVerification, error)
	Consume(ctx context.Context, id int) error
	InvalidateForUser(ctx context.Context, userID int) error
}

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	GetByKey(ctx context.Context, key string) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	List(ctx context.Context) ([]types.CategorySummary, error)
}

// BookRepository defines persistence operations for books.
type BookRepository interface {
	List(ctx context.Context, filter types.BookFilter) ([]types.Book, error)
	Get(ctx context.Context, id int) (types.Book, error)
	GetForUpdate(ctx context.Context, id int) (types.Book, error)
	GetByISBN(ctx context.Context, isbn string) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	Delete(ctx context.Context, id int) error
	DecrementAvailable(ctx context.Context, id int) error
	IncrementAvailable(ctx context.Context, id int) error
	CountOutstanding(ctx context.Context, id int) (int, error)
	CountActiveLoans(ctx context.Context, id int) (int, error)
}

// BookRequestRepository defines persistence operations for book requests.
type BookRequestRepository interface {
	Get(ctx context.Context, id int) (types.BookRequest, error)
	GetForUpdate(ctx context.Context, id int) (types.BookRequest, error)
	List(ctx context.Context, filter types.BookRequestFilter) ([]types.BookRequest, error)
	HasPending(ctx context.Context, userID, bookID int) (bool, error)
	Create(ctx context.Context, request types.BookRequest) (types.BookRequest, error)
	UpdateStatus(ctx context.Context, request types.BookRequest) error
}

// TransactionRepository defines persistence operations for loans.
type TransactionRepository interface {
	Create(ctx context.Context, loan types.Transaction) (types.Transaction, error)
	Get(ctx context.Context, id int) (types.Transaction, error)
	GetForUpdate(ctx context.Context, id int) (types.Transaction, error)
	List(ctx context.Context, filter types.TransactionFilter) ([]types.Transaction, error)
	MarkReturned(ctx context.Context, id int, returnedAt time.Time) error
}

// Repositories groups the repositories bound to one connection or
// transaction.
type Repositories struct {
	Users      UserRepository
	OTPs       OTPRepository
	Categories CategoryRepository
	Books      BookRepository
	Requests   BookRequestRepository
	Loans      TransactionRepository
}

// TxManager runs fn with repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// EventPublisher receives book request events after their transaction
// commits.
type EventPublisher interface {
	PublishBookRequestEvent(ctx context.Context, event types.BookRequestEvent) error
}

// Clock returns the current time.
type Clock func() time.Time
