package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/types"
)

type BookRequestHandler struct {
	svc *services.BookRequestService
}

func NewBookRequestHandler(svc *services.BookRequestService) *BookRequestHandler {
	return &BookRequestHandler{svc: svc}
}

// BookRequestRouter mounts the request lifecycle routes. Role and
// ownership rules are enforced by the service.
func BookRequestRouter(r chi.Router, svc *services.BookRequestService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewBookRequestHandler(svc)
	r.Route("/book-requests", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", handler.CreateRequest)
		r.Get("/", handler.ListRequests)
		r.Get("/{requestID}", handler.GetRequest)
		r.Patch("/{requestID}", handler.ProcessRequest)
		r.Delete("/{requestID}", handler.CancelRequest)
	})
}

type createBookRequestRequest struct {
	BookID int `json:"book_id"`
}

type processBookRequestRequest struct {
	Status types.RequestStatus `json:"status"`
	Notes  string              `json:"notes"`
}

type bookRequestsResponse struct {
	Requests []types.BookRequest `json:"requests"`
}

func (h *BookRequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req createBookRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.BookID < 1 {
		writeError(w, http.StatusBadRequest, "Book ID is required")
		return
	}

	request, err := h.svc.Create(r.Context(), principal, req.BookID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

func (h *BookRequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
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

	requests, err := h.svc.List(r.Context(), principal, types.BookRequestFilter{
		UserID: userID,
		Status: types.RequestStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if requests == nil {
		requests = []types.BookRequest{}
	}
	writeJSON(w, http.StatusOK, bookRequestsResponse{Requests: requests})
}

func (h *BookRequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := parseIDParam(r, "requestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request id")
		return
	}

	request, err := h.svc.Get(r.Context(), principal, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *BookRequestHandler) ProcessRequest(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := parseIDParam(r, "requestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request id")
		return
	}
	var req processBookRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status := types.RequestStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	request, err := h.svc.Process(r.Context(), principal, id, status, req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *BookRequestHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := parseIDParam(r, "requestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request id")
		return
	}

	request, err := h.svc.Cancel(r.Context(), principal, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}
