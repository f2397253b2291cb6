package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/libranet/apiserver/internal/auth"
	"github.com/libranet/apiserver/internal/store"
	"github.com/libranet/apiserver/types"
)

// LoanService exposes loans created by approvals and closes them on return.
type LoanService struct {
	repos  Repositories
	tx     TxManager
	logger *slog.Logger
	now    Clock
}

func NewLoanService(repos Repositories, tx TxManager, logger *slog.Logger) *LoanService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoanService{repos: repos, tx: tx, logger: logger, now: time.Now}
}

// SetClock replaces the time source.
func (s *LoanService) SetClock(now Clock) {
	s.now = now
}

// List returns loans newest first. Patrons only ever see their own.
func (s *LoanService) List(ctx context.Context, actor auth.Principal, filter types.TransactionFilter) ([]types.Transaction, error) {
	filter.Status = types.LoanStatus(strings.ToUpper(strings.TrimSpace(string(filter.Status))))
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("Invalid status filter")
	}
	if !actor.Role.IsStaff() {
		filter.UserID = actor.UserID
	}
	return s.repos.Loans.List(ctx, filter)
}

func (s *LoanService) Get(ctx context.Context, actor auth.Principal, id int) (types.Transaction, error) {
	loan, err := s.repos.Loans.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Transaction{}, ErrLoanNotFound
		}
		return types.Transaction{}, err
	}
	if !actor.Role.IsStaff() && loan.UserID != actor.UserID {
		return types.Transaction{}, ErrForbidden
	}
	return loan, nil
}

// Return closes an ACTIVE loan and puts the copy back on the shelf.
func (s *LoanService) Return(ctx context.Context, actor auth.Principal, id int) (types.Transaction, error) {
	if !actor.Role.IsStaff() {
		return types.Transaction{}, ErrForbidden
	}

	var returned types.Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		loan, err := repos.Loans.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrLoanNotFound
			}
			return err
		}
		if loan.Status != types.LoanActive {
			return ErrLoanNotActive
		}
		if _, err := repos.Books.GetForUpdate(ctx, loan.BookID); err != nil {
			return err
		}

		now := s.now()
		if err := repos.Loans.MarkReturned(ctx, id, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrLoanNotActive
			}
			return err
		}
		if err := repos.Books.IncrementAvailable(ctx, loan.BookID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			s.logger.WarnContext(ctx, "returned copy exceeds total copies", "book_id", loan.BookID, "transaction_id", id)
		}

		loan.Status = types.LoanReturned
		loan.ReturnedAt = &now
		returned = loan
		return nil
	})
	if err != nil {
		return types.Transaction{}, err
	}
	return returned, nil
}
