package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/libranet/apiserver/internal/mailer"
	"github.com/libranet/apiserver/types"
)

// NotificationService emails patrons when staff decide on their requests.
type NotificationService struct {
	repos  Repositories
	mailer mailer.Mailer
	logger *slog.Logger
}

func NewNotificationService(repos Repositories, m mailer.Mailer, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = mailer.NewLogMailer(logger)
	}
	return &NotificationService{repos: repos, mailer: m, logger: logger}
}

// HandleEvent sends the decision email for processed APPROVED and
// REJECTED requests and ignores every other event.
func (s *NotificationService) HandleEvent(ctx context.Context, event types.BookRequestEvent) error {
	if event.Type != types.EventRequestProcessed {
		return nil
	}
	if event.Status != types.RequestApproved && event.Status != types.RequestRejected {
		return nil
	}

	user, err := s.repos.Users.GetByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", event.UserID, err)
	}
	book, err := s.repos.Books.Get(ctx, event.BookID)
	if err != nil {
		return fmt.Errorf("load book %d: %w", event.BookID, err)
	}

	subject, body := decisionMessage(user, book, event)
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "decision email sent", "request_id", event.RequestID, "status", event.Status)
	return nil
}

func decisionMessage(user types.User, book types.Book, event types.BookRequestEvent) (string, string) {
	if event.Status == types.RequestApproved {
		body := fmt.Sprintf("Hello %s, your request for %q was approved.", user.Name, book.Title)
		if event.DueDate != nil {
			body += fmt.Sprintf(" Please return it by %s.", event.DueDate.Format("2006-01-02"))
		}
		return "Your book request was approved", body
	}

	body := fmt.Sprintf("Hello %s, your request for %q was rejected.", user.Name, book.Title)
	if event.Notes != "" {
		body += " Reason: " + event.Notes
	}
	return "Your book request was rejected", body
}
