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

const bookSelect = `
	SELECT b.id, b.title, b.author, b.isbn, b.category_id, c.name, c.name_key,
		b.publisher, b.publication_date, b.total_copies, b.available_copies, b.description,
		b.image_url, b.ebook_url, b.cover_object_key, b.created_at, b.updated_at
	FROM books b
	JOIN categories c ON c.id = b.category_id`

// BookRepository handles persistence for catalog books.
type BookRepository struct {
	db Querier
}

func NewBookRepository(db Querier) *BookRepository {
	return &BookRepository{db: db}
}

func (r *BookRepository) List(ctx context.Context, filter types.BookFilter) ([]types.Book, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.CategoryKey != "" {
		args = append(args, filter.CategoryKey)
		conditions = append(conditions, fmt.Sprintf("c.name_key = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		conditions = append(conditions, fmt.Sprintf("(b.title ILIKE $%d OR b.author ILIKE $%d)", len(args), len(args)))
	}

	query := bookSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY b.title, b.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]types.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *BookRepository) Get(ctx context.Context, id int) (types.Book, error) {
	return scanBook(r.db.QueryRowContext(ctx, bookSelect+` WHERE b.id = $1`, id))
}

// GetForUpdate reads a book and locks its row until the enclosing
// transaction ends.
func (r *BookRepository) GetForUpdate(ctx context.Context, id int) (types.Book, error) {
	return scanBook(r.db.QueryRowContext(ctx, bookSelect+` WHERE b.id = $1 FOR UPDATE OF b`, id))
}

func (r *BookRepository) GetByISBN(ctx context.Context, isbn string) (types.Book, error) {
	return scanBook(r.db.QueryRowContext(ctx, bookSelect+` WHERE b.isbn = $1`, isbn))
}

func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	const query = `
		INSERT INTO books (title, author, isbn, category_id, publisher, publication_date, total_copies,
			available_copies, description, image_url, ebook_url, cover_object_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.ISBN,
		book.CategoryID,
		book.Publisher,
		book.PublicationDate,
		book.TotalCopies,
		book.AvailableCopies,
		book.Description,
		book.ImageURL,
		book.EbookURL,
		book.CoverObjectKey,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID); err != nil {
		return types.Book{}, mapError(err)
	}
	return book, nil
}

func (r *BookRepository) Update(ctx context.Context, book types.Book) (types.Book, error) {
	book.UpdatedAt = time.Now()

	const query = `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, category_id = $4, publisher = $5, publication_date = $6,
			total_copies = $7, available_copies = $8, description = $9, image_url = $10, ebook_url = $11,
			cover_object_key = $12, updated_at = $13
		WHERE id = $14`
	result, err := r.db.ExecContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.ISBN,
		book.CategoryID,
		book.Publisher,
		book.PublicationDate,
		book.TotalCopies,
		book.AvailableCopies,
		book.Description,
		book.ImageURL,
		book.EbookURL,
		book.CoverObjectKey,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		return types.Book{}, mapError(err)
	}
	if err := expectAffected(result); err != nil {
		return types.Book{}, err
	}
	return book, nil
}

func (r *BookRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// DecrementAvailable takes one copy off the shelf. It returns ErrNotFound
// when the book does not exist or has no copy left.
func (r *BookRepository) DecrementAvailable(ctx context.Context, id int) error {
	const query = `
		UPDATE books SET available_copies = available_copies - 1, updated_at = $1
		WHERE id = $2 AND available_copies > 0`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// IncrementAvailable puts one copy back, never above total_copies.
func (r *BookRepository) IncrementAvailable(ctx context.Context, id int) error {
	const query = `
		UPDATE books SET available_copies = available_copies + 1, updated_at = $1
		WHERE id = $2 AND available_copies < total_copies`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// CountOutstanding returns the number of PENDING requests and ACTIVE loans
// referencing the book.
func (r *BookRepository) CountOutstanding(ctx context.Context, id int) (int, error) {
	const query = `
		SELECT
			(SELECT COUNT(1) FROM book_requests WHERE book_id = $1 AND status = 'PENDING') +
			(SELECT COUNT(1) FROM transactions WHERE book_id = $1 AND status = 'ACTIVE')`
	var count int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountActiveLoans returns the number of copies of the book currently lent.
func (r *BookRepository) CountActiveLoans(ctx context.Context, id int) (int, error) {
	const query = `SELECT COUNT(1) FROM transactions WHERE book_id = $1 AND status = 'ACTIVE'`
	var count int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanBook(row rowScanner) (types.Book, error) {
	var (
		book     types.Book
		category types.Category
	)
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.ISBN,
		&book.CategoryID,
		&category.Name,
		&category.Key,
		&book.Publisher,
		&book.PublicationDate,
		&book.TotalCopies,
		&book.AvailableCopies,
		&book.Description,
		&book.ImageURL,
		&book.EbookURL,
		&book.CoverObjectKey,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	category.ID = book.CategoryID
	book.Category = &category
	return book, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
