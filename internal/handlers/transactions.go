package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/types"
)

type TransactionHandler struct {
	svc *services.LoanService
}

func NewTransactionHandler(svc *services.LoanService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

func TransactionRouter(r chi.Router, svc *services.LoanService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTransactionHandler(svc)
	r.Route("/transactions", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.ListTransactions)
		r.Get("/{transactionID}", handler.GetTransaction)
		r.With(RequireStaff).Post("/{transactionID}/return", handler.ReturnTransaction)
	})
}

type transactionsResponse struct {
	Transactions []types.Transaction `json:"transactions"`
}

func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	userID, err := parseOptionalIDQuery(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid userId")
		return
	}

	loans, err := h.svc.List(r.Context(), principal, types.TransactionFilter{
		UserID: userID,
		Status: types.LoanStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if loans == nil {
		loans = []types.Transaction{}
	}
	writeJSON(w, http.StatusOK, transactionsResponse{Transactions: loans})
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := parseIDParam(r, "transactionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	loan, err := h.svc.Get(r.Context(), principal, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *TransactionHandler) ReturnTransaction(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := parseIDParam(r, "transactionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	loan, err := h.svc.Return(r.Context(), principal, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}
