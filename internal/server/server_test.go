package server

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/auth"
	"github.com/libranet/apiserver/internal/mailer"
	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/internal/store/memstore"
	"github.com/libranet/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryServices(t *testing.T) *Services {
	t.Helper()
	st := memstore.New()
	repos := st.Repositories()
	tokens := auth.NewIssuer("router-secret", time.Hour)
	m := mailer.NewLogMailer(nil)
	library := config.LibraryConfig{OTPTTL: 10 * time.Minute, LoanPeriod: 14 * 24 * time.Hour}
	return &Services{
		Users:         services.NewUserService(repos, st, m, tokens, library, nil),
		Books:         services.NewBookService(repos, st, nil, nil),
		Requests:      services.NewBookRequestService(repos, st, nil, library, nil),
		Loans:         services.NewLoanService(repos, st, nil),
		Notifications: services.NewNotificationService(repos, m, nil),
		Tokens:        tokens,
	}
}

func TestNewRequiresJWTSecret(t *testing.T) {
	_, err := New(context.Background(), config.Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestRouterMountsRoutes(t *testing.T) {
	router := NewRouter(config.Config{}, memoryServices(t))

	cases := []struct {
		method string
		path   string
		status int
	}{
		{method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{method: http.MethodGet, path: "/books", status: http.StatusOK},
		{method: http.MethodGet, path: "/categories", status: http.StatusOK},
		{method: http.MethodGet, path: "/book-requests", status: http.StatusUnauthorized},
		{method: http.MethodGet, path: "/transactions", status: http.StatusUnauthorized},
		{method: http.MethodGet, path: "/users?me=true", status: http.StatusUnauthorized},
		{method: http.MethodGet, path: "/admin/dashboard", status: http.StatusTemporaryRedirect},
		{method: http.MethodGet, path: "/login", status: http.StatusOK},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.status, rec.Code, tc.path)
	}
}

func TestCoverUploadWithoutStorage(t *testing.T) {
	svc := memoryServices(t)
	router := NewRouter(config.Config{}, svc)

	book, err := svc.Books.Create(context.Background(), services.BookInput{
		Title: "T", Author: "A", ISBN: "1", Category: "C", TotalCopies: 1,
	})
	require.NoError(t, err)
	staff, err := svc.Users.CreateVerified(context.Background(), services.RegisterInput{
		Name: "Lib", Email: "l@x.com", Password: "secret123", Role: types.RoleLibrarian,
	})
	require.NoError(t, err)
	token, err := svc.Tokens.Issue(staff)
	require.NoError(t, err)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("cover", "cover.gif")
	require.NoError(t, err)
	_, err = part.Write([]byte("GIF89a\x01\x00\x01\x00"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	path := fmt.Sprintf("/books/%d/cover", book.ID)
	req := httptest.NewRequest(http.MethodPut, path, &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
