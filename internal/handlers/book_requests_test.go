package handlers

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/libranet/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type circulationAPI struct {
	*testAPI
	librarian string
	alice     string
	bob       string
	aliceID   int
	book      types.Book
}

func newCirculationAPI(t *testing.T, copies int) *circulationAPI {
	t.Helper()
	api := newTestAPI(t)
	_, librarian := api.account(t, "l@x.com", types.RoleLibrarian)
	alice, aliceToken := api.account(t, "alice@x.com", types.RolePatron)
	_, bobToken := api.account(t, "bob@x.com", types.RolePatron)
	return &circulationAPI{
		testAPI:   api,
		librarian: librarian,
		alice:     aliceToken,
		bob:       bobToken,
		aliceID:   alice.ID,
		book:      api.book(t, "9780000000001", copies),
	}
}

func (c *circulationAPI) request(t *testing.T, token string) types.BookRequest {
	t.Helper()
	rec := c.do(t, http.MethodPost, "/book-requests", token, map[string]int{"book_id": c.book.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[types.BookRequest](t, rec)
}

func requestPath(id int) string {
	return "/book-requests/" + strconv.Itoa(id)
}

func TestBookRequestApprovalCreatesLoan(t *testing.T) {
	api := newCirculationAPI(t, 1)
	aliceRequest := api.request(t, api.alice)
	bobRequest := api.request(t, api.bob)
	assert.Equal(t, types.RequestPending, aliceRequest.Status)

	rec := api.do(t, http.MethodPost, "/book-requests", api.alice, map[string]int{"book_id": api.book.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPatch, requestPath(aliceRequest.ID), api.librarian, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decodeBody[types.BookRequest](t, rec)
	assert.Equal(t, types.RequestApproved, approved.Status)
	require.NotNil(t, approved.LibrarianID)

	book, ok := api.store.Book(api.book.ID)
	require.True(t, ok)
	assert.Equal(t, 0, book.AvailableCopies)

	rec = api.do(t, http.MethodPatch, requestPath(bobRequest.ID), api.librarian, map[string]string{"status": "APPROVED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Book is no longer available", errorMessage(t, rec))

	rec = api.do(t, http.MethodGet, requestPath(bobRequest.ID), api.bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.RequestPending, decodeBody[types.BookRequest](t, rec).Status)

	rec = api.do(t, http.MethodPatch, requestPath(aliceRequest.ID), api.librarian, map[string]string{"status": "REJECTED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/transactions", api.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	loans := decodeBody[transactionsResponse](t, rec).Transactions
	require.Len(t, loans, 1)
	assert.Equal(t, types.LoanActive, loans[0].Status)

	rec = api.do(t, http.MethodGet, "/transactions", api.bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[transactionsResponse](t, rec).Transactions)

	returnPath := "/transactions/" + strconv.Itoa(loans[0].ID) + "/return"
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, returnPath, api.alice, nil).Code)

	rec = api.do(t, http.MethodPost, returnPath, api.librarian, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	returned := decodeBody[types.Transaction](t, rec)
	assert.Equal(t, types.LoanReturned, returned.Status)
	assert.NotNil(t, returned.ReturnedAt)

	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, returnPath, api.librarian, nil).Code)

	book, _ = api.store.Book(api.book.ID)
	assert.Equal(t, 1, book.AvailableCopies)
}

func TestBookRequestOwnershipIsolation(t *testing.T) {
	api := newCirculationAPI(t, 2)
	aliceRequest := api.request(t, api.alice)
	path := requestPath(aliceRequest.ID)

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, path, api.bob, nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPatch, path, api.bob, map[string]string{"status": "CANCELLED"}).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodDelete, path, api.bob, nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPatch, path, api.alice, map[string]string{"status": "APPROVED"}).Code)

	rec := api.do(t, http.MethodGet, "/book-requests?userId="+strconv.Itoa(api.aliceID), api.bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[bookRequestsResponse](t, rec).Requests)

	rec = api.do(t, http.MethodGet, "/book-requests?userId="+strconv.Itoa(api.aliceID)+"&status=pending", api.librarian, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[bookRequestsResponse](t, rec).Requests, 1)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, requestPath(999), api.librarian, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/book-requests", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/book-requests?status=LOST", api.librarian, nil).Code)
}

func TestBookRequestCancel(t *testing.T) {
	api := newCirculationAPI(t, 2)
	pending := api.request(t, api.alice)

	rec := api.do(t, http.MethodDelete, requestPath(pending.ID), api.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, types.RequestCancelled, decodeBody[types.BookRequest](t, rec).Status)

	book, _ := api.store.Book(api.book.ID)
	assert.Equal(t, 2, book.AvailableCopies)

	approved := api.request(t, api.alice)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPatch, requestPath(approved.ID), api.librarian, map[string]string{"status": "APPROVED"}).Code)

	rec = api.do(t, http.MethodDelete, requestPath(approved.ID), api.alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only pending requests can be cancelled", errorMessage(t, rec))
}

func TestBookRequestInputErrors(t *testing.T) {
	api := newCirculationAPI(t, 1)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/book-requests", api.alice, map[string]int{}).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/book-requests", api.alice, map[string]int{"book_id": 999}).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, "/book-requests", api.librarian, map[string]int{"book_id": api.book.ID}).Code)

	pending := api.request(t, api.alice)
	rec := api.do(t, http.MethodPatch, requestPath(pending.ID), api.librarian, map[string]string{"status": "PENDING"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPatch, "/book-requests/zero", api.librarian, map[string]string{"status": "APPROVED"}).Code)
}
