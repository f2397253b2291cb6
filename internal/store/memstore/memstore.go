// Package memstore keeps every repository in process memory. Transactions
// are serialized and applied to a copy of the data that replaces the live
// copy on commit, so a failed transaction leaves no trace.
package memstore

import (
	"context"
	"maps"
	"sync"

	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/types"
)

type state struct {
	users      map[int]types.User
	otps       map[int]types.OTPVerification
	categories map[int]types.Category
	books      map[int]types.Book
	requests   map[int]types.BookRequest
	loans      map[int]types.Transaction
	nextID     int
}

func newState() *state {
	return &state{
		users:      make(map[int]types.User),
		otps:       make(map[int]types.OTPVerification),
		categories: make(map[int]types.Category),
		books:      make(map[int]types.Book),
		requests:   make(map[int]types.BookRequest),
		loans:      make(map[int]types.Transaction),
	}
}

func (s *state) clone() *state {
	return &state{
		users:      maps.Clone(s.users),
		otps:       maps.Clone(s.otps),
		categories: maps.Clone(s.categories),
		books:      maps.Clone(s.books),
		requests:   maps.Clone(s.requests),
		loans:      maps.Clone(s.loans),
		nextID:     s.nextID,
	}
}

func (s *state) id() int {
	s.nextID++
	return s.nextID
}

type execFunc func(fn func(st *state) error) error

// Store is an in-memory implementation of the service repositories and
// TxManager. Repository calls made outside WithinTx must not happen inside
// a WithinTx callback.
type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error
}

func New() *Store {
	return &Store{st: newState(), failures: make(map[string]error)}
}

// Operation names accepted by FailNext.
const (
	OpCreateLoan         = "loans.create"
	OpDecrementAvailable = "books.decrement"
	OpIncrementAvailable = "books.increment"
	OpMarkVerified       = "users.mark_verified"
	OpConsumeOTP         = "otps.consume"
	OpUpdateRequest      = "requests.update_status"
)

// FailNext makes the next call of op return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// fail must be called with mu held.
func (s *Store) fail(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

func (s *Store) direct(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Repositories returns repositories that apply each call immediately.
func (s *Store) Repositories() services.Repositories {
	return s.repositories(s.direct)
}

func (s *Store) repositories(exec execFunc) services.Repositories {
	return services.Repositories{
		Users:      &userRepo{store: s, exec: exec},
		OTPs:       &otpRepo{store: s, exec: exec},
		Categories: &categoryRepo{exec: exec},
		Books:      &bookRepo{store: s, exec: exec},
		Requests:   &requestRepo{store: s, exec: exec},
		Loans:      &loanRepo{store: s, exec: exec},
	}
}

// WithinTx runs fn against a private copy and publishes it when fn
// returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos services.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.st.clone()
	exec := func(op func(st *state) error) error {
		return op(working)
	}
	if err := fn(ctx, s.repositories(exec)); err != nil {
		return err
	}
	s.st = working
	return nil
}

// Book returns the committed copy of a book.
func (s *Store) Book(id int) (types.Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.st.books[id]
	return book, ok
}

// User returns the committed copy of a user.
func (s *Store) User(id int) (types.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.st.users[id]
	return user, ok
}

// Loans returns every committed loan.
func (s *Store) Loans() []types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	loans := make([]types.Transaction, 0, len(s.st.loans))
	for _, loan := range s.st.loans {
		loans = append(loans, loan)
	}
	return loans
}

// OTPs returns every committed code issued to userID.
func (s *Store) OTPs(userID int) []types.OTPVerification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var otps []types.OTPVerification
	for _, otp := range s.st.otps {
		if otp.UserID == userID {
			otps = append(otps, otp)
		}
	}
	return otps
}
