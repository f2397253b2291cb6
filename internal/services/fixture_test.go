package services_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/auth"
	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/internal/storage"
	"github.com/libranet/apiserver/internal/store/memstore"
	"github.com/libranet/apiserver/types"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *captureMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	code := codePattern.FindString(m.last(t).Body)
	require.NotEmpty(t, code, "no code in mail body")
	return code
}

type captureEvents struct {
	mu     sync.Mutex
	events []types.BookRequestEvent
	err    error
}

func (c *captureEvents) PublishBookRequestEvent(ctx context.Context, event types.BookRequestEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func (c *captureEvents) all() []types.BookRequestEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.BookRequestEvent(nil), c.events...)
}

type fixture struct {
	ctx      context.Context
	store    *memstore.Store
	mail     *captureMailer
	events   *captureEvents
	covers   *storage.MemoryBackend
	issuer   *auth.Issuer
	users    *services.UserService
	books    *services.BookService
	requests *services.BookRequestService
	loans    *services.LoanService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memstore.New()
	repos := st.Repositories()
	mail := &captureMailer{}
	events := &captureEvents{}
	covers := storage.NewMemoryBackend("covers")
	issuer := auth.NewIssuer("test-secret", time.Hour)
	library := config.LibraryConfig{OTPTTL: 10 * time.Minute, LoanPeriod: 14 * 24 * time.Hour}

	return &fixture{
		ctx:      context.Background(),
		store:    st,
		mail:     mail,
		events:   events,
		covers:   covers,
		issuer:   issuer,
		users:    services.NewUserService(repos, st, mail, issuer, library, nil),
		books:    services.NewBookService(repos, st, storage.NewStorage(covers), nil),
		requests: services.NewBookRequestService(repos, st, events, library, nil),
		loans:    services.NewLoanService(repos, st, nil),
	}
}

func (f *fixture) user(t *testing.T, email string, role types.Role) auth.Principal {
	t.Helper()
	user, err := f.users.CreateVerified(f.ctx, services.RegisterInput{
		Name:     "User " + email,
		Email:    email,
		Password: "secret123",
		Role:     role,
	})
	require.NoError(t, err)
	return auth.Principal{UserID: user.ID, Email: user.Email, Role: user.Role}
}

func (f *fixture) book(t *testing.T, isbn string, copies int) types.Book {
	t.Helper()
	book, err := f.books.Create(f.ctx, services.BookInput{
		Title:       "Title " + isbn,
		Author:      "Author",
		ISBN:        isbn,
		Category:    "Fiction",
		TotalCopies: copies,
	})
	require.NoError(t, err)
	return book
}

func (f *fixture) available(t *testing.T, bookID int) int {
	t.Helper()
	book, ok := f.store.Book(bookID)
	require.True(t, ok)
	return book.AvailableCopies
}
