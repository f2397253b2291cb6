package types

import "time"

// Role is the authorization level of an account.
type Role string

// Supported roles.
const (
	RoleAdmin     Role = "ADMIN"
	RoleLibrarian Role = "LIBRARIAN"
	RolePatron    Role = "PATRON"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RolePatron:
		return true
	default:
		return false
	}
}

// IsStaff reports whether r may process book requests and manage the catalog.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleLibrarian
}

// User represents a library account.
// It carries identity, contact details, role, and verification state.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's unique email address, also used as the login.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Phone is an optional contact number.
	Phone *string `json:"phone,omitempty" db:"phone"`

	// Address is an optional postal address.
	Address *string `json:"address,omitempty" db:"address"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// LibraryCardNumber is the unique card identifier issued at registration
	// (e.g. "LIB-482913").
	LibraryCardNumber string `json:"library_card_number" db:"library_card_number"`

	// IsVerified is set once the user proves control of their email address.
	IsVerified bool `json:"is_verified" db:"is_verified"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserSummary is the compact user view embedded in book requests.
type UserSummary struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	LibraryCardNumber string `json:"library_card_number,omitempty"`
}

// Summary returns the compact view of u.
func (u User) Summary() *UserSummary {
	return &UserSummary{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		LibraryCardNumber: u.LibraryCardNumber,
	}
}
