package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/types"
)

const coverFormField = "cover"

type BookHandler struct {
	svc *services.BookService
}

func NewBookHandler(svc *services.BookService) *BookHandler {
	return &BookHandler{svc: svc}
}

// BookRouter mounts catalog and category routes. Reads are public; writes
// require a librarian or admin.
func BookRouter(r chi.Router, svc *services.BookService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewBookHandler(svc)
	r.Route("/books", func(r chi.Router) {
		r.Get("/", handler.ListBooks)
		r.Get("/{bookID}", handler.GetBook)
		r.Get("/{bookID}/cover", handler.GetCover)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware, RequireStaff)
			r.Post("/", handler.CreateBook)
			r.Put("/{bookID}", handler.UpdateBook)
			r.Delete("/{bookID}", handler.DeleteBook)
			r.Put("/{bookID}/cover", handler.UploadCover)
		})
	})
	r.Get("/categories", handler.ListCategories)
}

// BookUpsertRequest is the JSON body of book create and update.
type BookUpsertRequest struct {
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	ISBN            string  `json:"isbn"`
	Category        string  `json:"category"`
	Publisher       string  `json:"publisher"`
	PublicationDate string  `json:"publication_date"`
	TotalCopies     *int    `json:"total_copies"`
	AvailableCopies *int    `json:"available_copies"`
	Description     string  `json:"description"`
	ImageURL        *string `json:"image_url"`
	EbookURL        *string `json:"ebook_url"`
}

type booksResponse struct {
	Books []types.Book `json:"books"`
}

type categoriesResponse struct {
	Categories []types.CategorySummary `json:"categories"`
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	books, err := h.svc.List(r.Context(), types.BookFilter{
		CategoryKey: query.Get("category"),
		Query:       query.Get("q"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if books == nil {
		books = []types.Book{}
	}
	writeJSON(w, http.StatusOK, booksResponse{Books: books})
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid book id")
		return
	}
	book, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeBookInput(w, r)
	if !ok {
		return
	}
	book, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid book id")
		return
	}
	in, ok := decodeBookInput(w, r)
	if !ok {
		return
	}
	book, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid book id")
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid book id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxCoverSize+(1<<20))
	if err := r.ParseMultipartForm(services.MaxCoverSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, _, err := r.FormFile(coverFormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Cover file is required")
		return
	}
	defer file.Close()

	data, err := readFileLimited(file, services.MaxCoverSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contentType := http.DetectContentType(data)

	book, err := h.svc.UploadCover(r.Context(), id, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid book id")
		return
	}
	obj, err := h.svc.OpenCover(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer obj.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, obj)
}

func (h *BookHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if categories == nil {
		categories = []types.CategorySummary{}
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: categories})
}

func decodeBookInput(w http.ResponseWriter, r *http.Request) (services.BookInput, bool) {
	var req BookUpsertRequest
	if !decodeJSON(w, r, &req) {
		return services.BookInput{}, false
	}
	if req.TotalCopies == nil {
		writeError(w, http.StatusBadRequest, "Total copies is required")
		return services.BookInput{}, false
	}
	published, err := parsePublicationDate(req.PublicationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid publication date")
		return services.BookInput{}, false
	}
	return services.BookInput{
		Title:           req.Title,
		Author:          req.Author,
		ISBN:            req.ISBN,
		Category:        req.Category,
		Publisher:       req.Publisher,
		PublicationDate: published,
		TotalCopies:     *req.TotalCopies,
		AvailableCopies: req.AvailableCopies,
		Description:     req.Description,
		ImageURL:        req.ImageURL,
		EbookURL:        req.EbookURL,
	}, true
}

// parsePublicationDate accepts a calendar date or an RFC 3339 timestamp.
func parsePublicationDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.New("invalid date")
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("Failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("Cover must be at most 5 MiB")
	}
	return data, nil
}
