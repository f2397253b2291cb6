package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/auth"
	"github.com/libranet/apiserver/internal/store"
	"github.com/libranet/apiserver/types"
)

// DefaultLoanPeriod is the time a patron keeps an approved book.
const DefaultLoanPeriod = 14 * 24 * time.Hour

// BookRequestService runs the book request lifecycle. PENDING is the only
// state a request moves out of.
type BookRequestService struct {
	repos      Repositories
	tx         TxManager
	events     EventPublisher
	loanPeriod time.Duration
	logger     *slog.Logger
	now        Clock
}

// NewBookRequestService constructs a BookRequestService. events may be nil.
func NewBookRequestService(repos Repositories, tx TxManager, events EventPublisher, cfg config.LibraryConfig, logger *slog.Logger) *BookRequestService {
	if logger == nil {
		logger = slog.Default()
	}
	loanPeriod := cfg.LoanPeriod
	if loanPeriod <= 0 {
		loanPeriod = DefaultLoanPeriod
	}
	return &BookRequestService{
		repos:      repos,
		tx:         tx,
		events:     events,
		loanPeriod: loanPeriod,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (s *BookRequestService) SetClock(now Clock) {
	s.now = now
}

// Create opens a PENDING request for the acting patron. Copies are not
// reserved until approval.
func (s *BookRequestService) Create(ctx context.Context, actor auth.Principal, bookID int) (types.BookRequest, error) {
	if actor.Role != types.RolePatron {
		return types.BookRequest{}, ErrForbidden
	}
	if bookID < 1 {
		return types.BookRequest{}, invalid("Book ID is required")
	}

	var created types.BookRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		book, err := repos.Books.GetForUpdate(ctx, bookID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if book.AvailableCopies <= 0 {
			return ErrBookUnavailable
		}

		pending, err := repos.Requests.HasPending(ctx, actor.UserID, bookID)
		if err != nil {
			return err
		}
		if pending {
			return ErrDuplicatePendingRequest
		}

		created, err = repos.Requests.Create(ctx, types.BookRequest{
			UserID:      actor.UserID,
			BookID:      bookID,
			Status:      types.RequestPending,
			RequestDate: s.now(),
		})
		if store.IsConflictOn(err, store.ConstraintPendingRequest) {
			return ErrDuplicatePendingRequest
		}
		return err
	})
	if err != nil {
		return types.BookRequest{}, err
	}

	s.publish(ctx, types.EventRequestCreated, created, nil)
	return s.reload(ctx, created)
}

// Process moves a PENDING request to APPROVED, REJECTED, or CANCELLED on
// behalf of staff. Approval creates the loan and takes one copy in the
// same transaction.
func (s *BookRequestService) Process(ctx context.Context, actor auth.Principal, requestID int, status types.RequestStatus, notes string) (types.BookRequest, error) {
	if !actor.Role.IsStaff() {
		return types.BookRequest{}, ErrForbidden
	}
	switch status {
	case types.RequestApproved, types.RequestRejected, types.RequestCancelled:
	default:
		return types.BookRequest{}, invalid("Invalid status. Must be APPROVED, REJECTED, or CANCELLED")
	}

	var (
		processed types.BookRequest
		dueDate   *time.Time
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		request, err := repos.Requests.GetForUpdate(ctx, requestID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if request.Status != types.RequestPending {
			return ErrAlreadyProcessed
		}

		if status == types.RequestApproved {
			book, err := repos.Books.GetForUpdate(ctx, request.BookID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return ErrBookNotFound
				}
				return err
			}
			if book.AvailableCopies <= 0 {
				return ErrBookNoLongerAvailable
			}
		}

		now := s.now()
		librarianID := actor.UserID
		request.Status = status
		request.LibrarianID = &librarianID
		request.ProcessedAt = &now
		request.Notes = optionalString(notes)
		if err := repos.Requests.UpdateStatus(ctx, request); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrAlreadyProcessed
			}
			return err
		}

		if status == types.RequestApproved {
			due := now.Add(s.loanPeriod)
			requestRef := request.ID
			if _, err := repos.Loans.Create(ctx, types.Transaction{
				UserID:     request.UserID,
				BookID:     request.BookID,
				RequestID:  &requestRef,
				BorrowedAt: now,
				DueDate:    due,
				Status:     types.LoanActive,
			}); err != nil {
				return err
			}
			if err := repos.Books.DecrementAvailable(ctx, request.BookID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return ErrBookNoLongerAvailable
				}
				return err
			}
			dueDate = &due
		}

		processed = request
		return nil
	})
	if err != nil {
		return types.BookRequest{}, err
	}

	eventType := types.EventRequestProcessed
	if status == types.RequestCancelled {
		eventType = types.EventRequestCancelled
	}
	s.publish(ctx, eventType, processed, dueDate)
	return s.reload(ctx, processed)
}

// Cancel withdraws a PENDING request. Patrons may cancel only their own;
// staff may cancel any.
func (s *BookRequestService) Cancel(ctx context.Context, actor auth.Principal, requestID int) (types.BookRequest, error) {
	var cancelled types.BookRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		request, err := repos.Requests.GetForUpdate(ctx, requestID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if !actor.Role.IsStaff() && request.UserID != actor.UserID {
			return ErrForbidden
		}
		if request.Status != types.RequestPending {
			return ErrOnlyPendingCancellable
		}

		now := s.now()
		request.Status = types.RequestCancelled
		request.ProcessedAt = &now
		if actor.Role.IsStaff() {
			librarianID := actor.UserID
			request.LibrarianID = &librarianID
		}
		if err := repos.Requests.UpdateStatus(ctx, request); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrOnlyPendingCancellable
			}
			return err
		}
		cancelled = request
		return nil
	})
	if err != nil {
		return types.BookRequest{}, err
	}

	s.publish(ctx, types.EventRequestCancelled, cancelled, nil)
	return s.reload(ctx, cancelled)
}

// List returns requests newest first. Patrons only ever see their own.
func (s *BookRequestService) List(ctx context.Context, actor auth.Principal, filter types.BookRequestFilter) ([]types.BookRequest, error) {
	filter.Status = types.RequestStatus(strings.ToUpper(strings.TrimSpace(string(filter.Status))))
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("Invalid status filter")
	}
	if !actor.Role.IsStaff() {
		filter.UserID = actor.UserID
	}
	return s.repos.Requests.List(ctx, filter)
}

func (s *BookRequestService) Get(ctx context.Context, actor auth.Principal, requestID int) (types.BookRequest, error) {
	request, err := s.repos.Requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.BookRequest{}, ErrRequestNotFound
		}
		return types.BookRequest{}, err
	}
	if !actor.Role.IsStaff() && request.UserID != actor.UserID {
		return types.BookRequest{}, ErrForbidden
	}
	return request, nil
}

func (s *BookRequestService) reload(ctx context.Context, request types.BookRequest) (types.BookRequest, error) {
	loaded, err := s.repos.Requests.Get(ctx, request.ID)
	if err != nil {
		return types.BookRequest{}, err
	}
	return loaded, nil
}

func (s *BookRequestService) publish(ctx context.Context, eventType string, request types.BookRequest, dueDate *time.Time) {
	if s.events == nil {
		return
	}
	event := types.BookRequestEvent{
		Type:       eventType,
		RequestID:  request.ID,
		UserID:     request.UserID,
		BookID:     request.BookID,
		Status:     request.Status,
		DueDate:    dueDate,
		OccurredAt: s.now(),
	}
	if request.Notes != nil {
		event.Notes = *request.Notes
	}
	if err := s.events.PublishBookRequestEvent(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "book request event not published", "request_id", request.ID, "type", eventType, "error", err)
	}
}
