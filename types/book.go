package types

import "time"

// Category groups books. Categories are shared by many books and are
// looked up by a normalized key so "Sci-Fi" and " sci-fi " are the same row.
type Category struct {
	// ID is the unique identifier of the category.
	ID int `json:"id" db:"id"`

	// Name is the display name as first written.
	Name string `json:"name" db:"name"`

	// Key is the normalized, unique lookup key derived from Name.
	Key string `json:"-" db:"name_key"`
}

// CategorySummary is a category with the number of books referencing it.
type CategorySummary struct {
	Category
	BookCount int `json:"book_count"`
}

// Book represents a catalog title with its copy counts.
// The invariant 0 <= AvailableCopies <= TotalCopies always holds.
type Book struct {
	// ID is the unique identifier of the book.
	ID int `json:"id" db:"id"`

	// Title is the book title.
	Title string `json:"title" db:"title"`

	// Author is the book author.
	Author string `json:"author" db:"author"`

	// ISBN is the unique International Standard Book Number.
	ISBN string `json:"isbn" db:"isbn"`

	// CategoryID references the owning category.
	CategoryID int `json:"category_id" db:"category_id"`

	// Category is the resolved category, populated on reads.
	Category *Category `json:"category,omitempty" db:"-"`

	// Publisher is the publishing house.
	Publisher string `json:"publisher" db:"publisher"`

	// PublicationDate is the date the edition was published.
	PublicationDate *time.Time `json:"publication_date,omitempty" db:"publication_date"`

	// TotalCopies is the number of physical copies the library owns.
	TotalCopies int `json:"total_copies" db:"total_copies"`

	// AvailableCopies is the number of copies not currently on loan.
	AvailableCopies int `json:"available_copies" db:"available_copies"`

	// Description is a free-form synopsis.
	Description string `json:"description" db:"description"`

	// ImageURL points at the cover image.
	ImageURL *string `json:"image_url,omitempty" db:"image_url"`

	// EbookURL points at an electronic edition, when one exists.
	EbookURL *string `json:"ebook_url,omitempty" db:"ebook_url"`

	// CoverObjectKey is the object storage key of an uploaded cover.
	CoverObjectKey *string `json:"-" db:"cover_object_key"`

	// CreatedAt is the timestamp at which the book was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the book.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BookSummary is the compact book view embedded in book requests.
type BookSummary struct {
	ID              int     `json:"id"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	ISBN            string  `json:"isbn"`
	AvailableCopies int     `json:"available_copies"`
	TotalCopies     int     `json:"total_copies"`
	ImageURL        *string `json:"image_url,omitempty"`
}

// Summary returns the compact view of b.
func (b Book) Summary() *BookSummary {
	return &BookSummary{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		AvailableCopies: b.AvailableCopies,
		TotalCopies:     b.TotalCopies,
		ImageURL:        b.ImageURL,
	}
}

// BookFilter narrows a catalog listing.
type BookFilter struct {
	// CategoryKey restricts results to one normalized category key.
	CategoryKey string

	// Query matches a case-insensitive substring of title or author.
	Query string
}
