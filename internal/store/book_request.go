package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/libranet/apiserver/types"
)

const bookRequestSelect = `
	SELECT r.id, r.user_id, r.book_id, r.status, r.request_date, r.librarian_id, r.processed_at,
		r.notes, r.created_at, r.updated_at,
		u.name, u.email, u.library_card_number,
		b.title, b.author, b.isbn, b.available_copies, b.total_copies, b.image_url,
		l.name, l.email
	FROM book_requests r
	JOIN users u ON u.id = r.user_id
	JOIN books b ON b.id = r.book_id
	LEFT JOIN users l ON l.id = r.librarian_id`

// BookRequestRepository handles persistence for book requests.
type BookRequestRepository struct {
	db Querier
}

func NewBookRequestRepository(db Querier) *BookRequestRepository {
	return &BookRequestRepository{db: db}
}

func (r *BookRequestRepository) Get(ctx context.Context, id int) (types.BookRequest, error) {
	return scanBookRequest(r.db.QueryRowContext(ctx, bookRequestSelect+` WHERE r.id = $1`, id))
}

// GetForUpdate reads a request and locks its row until the enclosing
// transaction ends.
func (r *BookRequestRepository) GetForUpdate(ctx context.Context, id int) (types.BookRequest, error) {
	return scanBookRequest(r.db.QueryRowContext(ctx, bookRequestSelect+` WHERE r.id = $1 FOR UPDATE OF r`, id))
}

// List returns requests newest first.
func (r *BookRequestRepository) List(ctx context.Context, filter types.BookRequestFilter) ([]types.BookRequest, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("r.user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)))
	}

	query := bookRequestSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.created_at DESC, r.id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]types.BookRequest, 0)
	for rows.Next() {
		request, err := scanBookRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *BookRequestRepository) HasPending(ctx context.Context, userID, bookID int) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM book_requests WHERE user_id = $1 AND book_id = $2 AND status = 'PENDING'
		)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, bookID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *BookRequestRepository) Create(ctx context.Context, request types.BookRequest) (types.BookRequest, error) {
	now := time.Now()
	if request.RequestDate.IsZero() {
		request.RequestDate = now
	}
	request.CreatedAt = now
	request.UpdatedAt = now

	const query = `
		INSERT INTO book_requests (user_id, book_id, status, request_date, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		request.UserID,
		request.BookID,
		request.Status,
		request.RequestDate,
		request.Notes,
		request.CreatedAt,
		request.UpdatedAt,
	).Scan(&request.ID); err != nil {
		return types.BookRequest{}, mapError(err)
	}
	return request, nil
}

// UpdateStatus moves a PENDING request to status. It returns ErrNotFound
// when the request does not exist or has already left PENDING.
func (r *BookRequestRepository) UpdateStatus(ctx context.Context, request types.BookRequest) error {
	const query = `
		UPDATE book_requests
		SET status = $1, librarian_id = $2, processed_at = $3, notes = $4, updated_at = $5
		WHERE id = $6 AND status = 'PENDING'`
	result, err := r.db.ExecContext(
		ctx,
		query,
		request.Status,
		request.LibrarianID,
		request.ProcessedAt,
		request.Notes,
		time.Now(),
		request.ID,
	)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func scanBookRequest(row rowScanner) (types.BookRequest, error) {
	var (
		request        types.BookRequest
		user           types.UserSummary
		book           types.BookSummary
		librarianName  sql.NullString
		librarianEmail sql.NullString
	)
	err := row.Scan(
		&request.ID,
		&request.UserID,
		&request.BookID,
		&request.Status,
		&request.RequestDate,
		&request.LibrarianID,
		&request.ProcessedAt,
		&request.Notes,
		&request.CreatedAt,
		&request.UpdatedAt,
		&user.Name,
		&user.Email,
		&user.LibraryCardNumber,
		&book.Title,
		&book.Author,
		&book.ISBN,
		&book.AvailableCopies,
		&book.TotalCopies,
		&book.ImageURL,
		&librarianName,
		&librarianEmail,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.BookRequest{}, ErrNotFound
		}
		return types.BookRequest{}, err
	}

	user.ID = request.UserID
	book.ID = request.BookID
	request.User = &user
	request.Book = &book
	if request.LibrarianID != nil {
		request.Librarian = &types.UserSummary{
			ID:    *request.LibrarianID,
			Name:  librarianName.String,
			Email: librarianEmail.String,
		}
	}
	return request, nil
}
