package server

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/auth"
	"github.com/libranet/apiserver/internal/mailer"
	"github.com/libranet/apiserver/internal/mq"
	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/internal/storage"
)

// Services holds the use-case layer wired to Postgres and the configured
// collaborators.
type Services struct {
	Users         *services.UserService
	Books         *services.BookService
	Requests      *services.BookRequestService
	Loans         *services.LoanService
	Notifications *services.NotificationService

	Tokens *auth.Issuer
	MQ     *mq.MQ
}

// NewServices builds the service layer over dbConn. The message queue and
// cover storage are optional and stay nil when not configured.
func NewServices(ctx context.Context, cfg config.Config, dbConn *sql.DB, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repos := NewRepositories(dbConn)
	tx := NewTxManager(dbConn)
	tokens := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	m, err := mailer.New(cfg.SMTP, logger)
	if err != nil {
		return nil, err
	}

	covers, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	queue, err := mq.New(ctx, cfg.MQ)
	if err != nil {
		return nil, err
	}
	var events services.EventPublisher
	if queue != nil {
		events = mq.NewEventPublisher(queue, cfg.MQ.Channel)
	}

	return &Services{
		Users:         services.NewUserService(repos, tx, m, tokens, cfg.Library, logger),
		Books:         services.NewBookService(repos, tx, covers, logger),
		Requests:      services.NewBookRequestService(repos, tx, events, cfg.Library, logger),
		Loans:         services.NewLoanService(repos, tx, logger),
		Notifications: services.NewNotificationService(repos, m, logger),
		Tokens:        tokens,
		MQ:            queue,
	}, nil
}

// Close releases the message queue connection.
func (s *Services) Close() error {
	if s.MQ == nil {
		return nil
	}
	return s.MQ.Close()
}
