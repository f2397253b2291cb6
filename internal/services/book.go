package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"github.com/libranet/apiserver/internal/storage"
	"github.com/libranet/apiserver/internal/store"
	"github.com/libranet/apiserver/types"
)

// Field limits enforced on create and update.
const (
	MaxDescriptionLength = 10_000
	MaxURLLength         = 2_000
	MaxCoverSize         = 5 << 20
)

// BookInput carries the writable fields of a book. A nil AvailableCopies
// means "all copies" on create and "shift by the change in total" on
// update.
type BookInput struct {
	Title           string
	Author          string
	ISBN            string
	Category        string
	Publisher       string
	PublicationDate *time.Time
	TotalCopies     int
	AvailableCopies *int
	Description     string
	ImageURL        *string
	EbookURL        *string
}

// ImportResult summarizes a catalog import.
type ImportResult struct {
	CategoriesCreated int
	BooksCreated      int
	BooksSkipped      int
}

// BookService encapsulates catalog use-cases.
type BookService struct {
	repos   Repositories
	tx      TxManager
	storage *storage.Storage
	logger  *slog.Logger
}

// NewBookService constructs a BookService. covers may be nil, which
// disables cover uploads.
func NewBookService(repos Repositories, tx TxManager, covers *storage.Storage, logger *slog.Logger) *BookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookService{repos: repos, tx: tx, storage: covers, logger: logger}
}

func (s *BookService) List(ctx context.Context, filter types.BookFilter) ([]types.Book, error) {
	filter.CategoryKey = NormalizeCategoryKey(filter.CategoryKey)
	filter.Query = strings.TrimSpace(filter.Query)
	return s.repos.Books.List(ctx, filter)
}

func (s *BookService) Get(ctx context.Context, id int) (types.Book, error) {
	book, err := s.repos.Books.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Book{}, ErrBookNotFound
	}
	return book, err
}

func (s *BookService) Create(ctx context.Context, in BookInput) (types.Book, error) {
	in = trimBookInput(in)
	available := in.TotalCopies
	if in.AvailableCopies != nil {
		available = *in.AvailableCopies
	}
	if err := validateBook(in, available); err != nil {
		return types.Book{}, err
	}

	var created types.Book
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		if _, err := repos.Books.GetByISBN(ctx, in.ISBN); err == nil {
			return ErrDuplicateISBN
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		category, _, err := ensureCategory(ctx, repos.Categories, in.Category)
		if err != nil {
			return err
		}

		book := applyBookInput(types.Book{}, in, available)
		book.CategoryID = category.ID
		created, err = repos.Books.Create(ctx, book)
		if err != nil {
			if store.IsConflictOn(err, store.ConstraintBookISBN) {
				return ErrDuplicateISBN
			}
			return err
		}
		created.Category = &category
		return nil
	})
	if err != nil {
		return types.Book{}, err
	}
	return created, nil
}

func (s *BookService) Update(ctx context.Context, id int, in BookInput) (types.Book, error) {
	in = trimBookInput(in)
	if err := validateBookFields(in); err != nil {
		return types.Book{}, err
	}

	var updated types.Book
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		current, err := repos.Books.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		available := current.AvailableCopies + (in.TotalCopies - current.TotalCopies)
		if in.AvailableCopies != nil {
			available = *in.AvailableCopies
		}
		if err := validateCopies(in.TotalCopies, available); err != nil {
			return err
		}
		onLoan, err := repos.Books.CountActiveLoans(ctx, id)
		if err != nil {
			return err
		}
		if in.TotalCopies < onLoan {
			return invalid(fmt.Sprintf("Total copies cannot be less than the %d copies on loan", onLoan))
		}
		if available > in.TotalCopies-onLoan {
			return invalid(fmt.Sprintf("Available copies cannot exceed %d while %d copies are on loan", in.TotalCopies-onLoan, onLoan))
		}

		category, _, err := ensureCategory(ctx, repos.Categories, in.Category)
		if err != nil {
			return err
		}

		book := applyBookInput(current, in, available)
		book.CategoryID = category.ID
		if book.CoverObjectKey != nil && book.ImageURL == nil {
			url := CoverURL(id)
			book.ImageURL = &url
		}
		updated, err = repos.Books.Update(ctx, book)
		if err != nil {
			if store.IsConflictOn(err, store.ConstraintBookISBN) {
				return ErrDuplicateISBN
			}
			return err
		}
		updated.Category = &category
		return nil
	})
	if err != nil {
		return types.Book{}, err
	}
	return updated, nil
}

// Delete removes a book that has no PENDING requests and no ACTIVE loans.
func (s *BookService) Delete(ctx context.Context, id int) error {
	var coverKey *string
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		book, err := repos.Books.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		outstanding, err := repos.Books.CountOutstanding(ctx, id)
		if err != nil {
			return err
		}
		if outstanding > 0 {
			return ErrBookInUse
		}
		coverKey = book.CoverObjectKey
		return repos.Books.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	if coverKey != nil && s.storage != nil {
		if err := s.storage.Delete(ctx, *coverKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.WarnContext(ctx, "failed to delete cover", "book_id", id, "key", *coverKey, "error", err)
		}
	}
	return nil
}

// CoverURL is the public path that serves a book's uploaded cover.
func CoverURL(bookID int) string {
	return fmt.Sprintf("/books/%d/cover", bookID)
}

// UploadCover stores r as the cover image of the book and points its
// image URL at the cover endpoint.
func (s *BookService) UploadCover(ctx context.Context, bookID int, r io.Reader, size int64, contentType string) (types.Book, error) {
	if s.storage == nil {
		return types.Book{}, ErrStorageDisabled
	}
	if _, ok := storage.CoverExtension(contentType); !ok {
		return types.Book{}, invalid("Cover must be a JPEG, PNG, WebP, or GIF image")
	}
	if size <= 0 || size > MaxCoverSize {
		return types.Book{}, invalid("Cover must be at most 5 MiB")
	}
	if _, err := s.Get(ctx, bookID); err != nil {
		return types.Book{}, err
	}

	key, err := s.storage.PutCover(ctx, bookID, r, size, contentType)
	if err != nil {
		return types.Book{}, fmt.Errorf("upload cover: %w", err)
	}

	var (
		updated  types.Book
		previous *string
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		book, err := repos.Books.GetForUpdate(ctx, bookID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		previous = book.CoverObjectKey
		url := CoverURL(bookID)
		book.CoverObjectKey = &key
		book.ImageURL = &url
		updated, err = repos.Books.Update(ctx, book)
		return err
	})
	if err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.logger.WarnContext(ctx, "failed to delete orphaned cover", "key", key, "error", delErr)
		}
		return types.Book{}, err
	}

	if previous != nil && *previous != key {
		if err := s.storage.Delete(ctx, *previous); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.WarnContext(ctx, "failed to delete replaced cover", "key", *previous, "error", err)
		}
	}
	return updated, nil
}

// OpenCover returns the stored cover of a book. The caller closes it.
func (s *BookService) OpenCover(ctx context.Context, bookID int) (storage.Object, error) {
	book, err := s.Get(ctx, bookID)
	if err != nil {
		return storage.Object{}, err
	}
	if book.CoverObjectKey == nil {
		return storage.Object{}, ErrCoverNotFound
	}
	if s.storage == nil {
		return storage.Object{}, ErrStorageDisabled
	}
	obj, err := s.storage.Get(ctx, *book.CoverObjectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return storage.Object{}, ErrCoverNotFound
	}
	return obj, err
}

// NormalizeCategoryKey maps a free-text category name to its registry key,
// so "Sci Fi", "sci-fi" and " SCI-FI " all resolve to "sci-fi".
func NormalizeCategoryKey(name string) string {
	return slug.Make(name)
}

// EnsureCategory finds a category by normalized name or creates it. The
// boolean reports whether a row was created.
func (s *BookService) EnsureCategory(ctx context.Context, name string) (types.Category, bool, error) {
	return ensureCategory(ctx, s.repos.Categories, name)
}

func ensureCategory(ctx context.Context, categories CategoryRepository, name string) (types.Category, bool, error) {
	key := NormalizeCategoryKey(name)
	if key == "" {
		return types.Category{}, false, invalid("Category is required")
	}

	category, err := categories.GetByKey(ctx, key)
	if err == nil {
		return category, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Category{}, false, err
	}

	display := strings.Join(strings.Fields(name), " ")
	category, err = categories.Create(ctx, types.Category{Name: display, Key: key})
	if err != nil {
		if store.IsConflictOn(err, store.ConstraintCategoryKey) {
			category, err = categories.GetByKey(ctx, key)
			return category, false, err
		}
		return types.Category{}, false, err
	}
	return category, true, nil
}

func (s *BookService) ListCategories(ctx context.Context) ([]types.CategorySummary, error) {
	return s.repos.Categories.List(ctx)
}

// Import creates the given categories and books, skipping books whose
// ISBN already exists.
func (s *BookService) Import(ctx context.Context, categories []string, books []BookInput) (ImportResult, error) {
	var result ImportResult
	for _, name := range categories {
		_, created, err := s.EnsureCategory(ctx, name)
		if err != nil {
			return result, fmt.Errorf("category %q: %w", name, err)
		}
		if created {
			result.CategoriesCreated++
		}
	}

	for _, in := range books {
		_, created, err := s.EnsureCategory(ctx, in.Category)
		if err != nil {
			return result, fmt.Errorf("book %q: %w", in.ISBN, err)
		}
		if created {
			result.CategoriesCreated++
		}
		_, err = s.Create(ctx, in)
		switch {
		case err == nil:
			result.BooksCreated++
		case errors.Is(err, ErrDuplicateISBN):
			result.BooksSkipped++
		default:
			return result, fmt.Errorf("book %q: %w", in.ISBN, err)
		}
	}
	return result, nil
}

func trimBookInput(in BookInput) BookInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Category = strings.TrimSpace(in.Category)
	in.Publisher = strings.TrimSpace(in.Publisher)
	in.ImageURL = optionalPtr(in.ImageURL)
	in.EbookURL = optionalPtr(in.EbookURL)
	return in
}

func validateBook(in BookInput, available int) error {
	if err := validateBookFields(in); err != nil {
		return err
	}
	return validateCopies(in.TotalCopies, available)
}

func validateBookFields(in BookInput) error {
	switch {
	case in.Title == "":
		return invalid("Title is required")
	case in.Author == "":
		return invalid("Author is required")
	case in.ISBN == "":
		return invalid("ISBN is required")
	case NormalizeCategoryKey(in.Category) == "":
		return invalid("Category is required")
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return invalid("Description is too long. Please keep it under 10,000 characters.")
	}
	if in.ImageURL != nil && utf8.RuneCountInString(*in.ImageURL) > MaxURLLength {
		return invalid("Image URL is too long. Please use a shorter URL (max 2,000 characters).")
	}
	if in.EbookURL != nil && utf8.RuneCountInString(*in.EbookURL) > MaxURLLength {
		return invalid("E-book URL is too long. Please use a shorter URL (max 2,000 characters).")
	}
	return nil
}

func validateCopies(total, available int) error {
	if total < 0 {
		return invalid("Total copies cannot be negative")
	}
	if available < 0 || available > total {
		return invalid("Available copies must be between 0 and total copies")
	}
	return nil
}

func applyBookInput(book types.Book, in BookInput, available int) types.Book {
	book.Title = in.Title
	book.Author = in.Author
	book.ISBN = in.ISBN
	book.Publisher = in.Publisher
	book.PublicationDate = in.PublicationDate
	book.TotalCopies = in.TotalCopies
	book.AvailableCopies = available
	book.Description = in.Description
	book.ImageURL = in.ImageURL
	book.EbookURL = in.EbookURL
	return book
}

func optionalPtr(value *string) *string {
	if value == nil {
		return nil
	}
	return optionalString(*value)
}
