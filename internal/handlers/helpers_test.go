package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/auth"
	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/internal/storage"
	"github.com/libranet/apiserver/internal/store/memstore"
	"github.com/libranet/apiserver/types"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu     sync.Mutex
	bodies []string
}

func (o *outbox) Send(ctx context.Context, to, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bodies = append(o.bodies, body)
	return nil
}

var otpPattern = regexp.MustCompile(`\b\d{6}\b`)

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.bodies)
	code := otpPattern.FindString(o.bodies[len(o.bodies)-1])
	require.NotEmpty(t, code)
	return code
}

type testAPI struct {
	router http.Handler
	store  *memstore.Store
	mail   *outbox
	issuer *auth.Issuer
	users  *services.UserService
	books  *services.BookService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	st := memstore.New()
	repos := st.Repositories()
	mail := &outbox{}
	issuer := auth.NewIssuer("handler-secret", time.Hour)
	library := config.LibraryConfig{OTPTTL: 10 * time.Minute, LoanPeriod: 14 * 24 * time.Hour}

	users := services.NewUserService(repos, st, mail, issuer, library, nil)
	books := services.NewBookService(repos, st, storage.NewStorage(storage.NewMemoryBackend("covers")), nil)
	requests := services.NewBookRequestService(repos, st, nil, library, nil)
	loans := services.NewLoanService(repos, st, nil)

	authn := NewAuthenticator(issuer)
	cookies := CookieConfig{MaxAge: issuer.TTL()}

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	UserRouter(r, users, authn, cookies)
	BookRouter(r, books, authn.RequireAuth)
	BookRequestRouter(r, requests, authn.RequireAuth)
	TransactionRouter(r, loans, authn.RequireAuth)
	PageRouter(r, "")

	return &testAPI{router: r, store: st, mail: mail, issuer: issuer, users: users, books: books}
}

// account creates a verified user and returns a bearer token for it.
func (a *testAPI) account(t *testing.T, email string, role types.Role) (types.User, string) {
	t.Helper()
	user, err := a.users.CreateVerified(context.Background(), services.RegisterInput{
		Name:     "User " + email,
		Email:    email,
		Password: "secret123",
		Role:     role,
	})
	require.NoError(t, err)
	token, err := a.issuer.Issue(user)
	require.NoError(t, err)
	return user, token
}

func (a *testAPI) book(t *testing.T, isbn string, copies int) types.Book {
	t.Helper()
	book, err := a.books.Create(context.Background(), services.BookInput{
		Title:       "Title " + isbn,
		Author:      "Author",
		ISBN:        isbn,
		Category:    "Fiction",
		TotalCopies: copies,
	})
	require.NoError(t, err)
	return book
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value), rec.Body.String())
	return value
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[ErrorResponse](t, rec).Error
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
