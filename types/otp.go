package types

import "time"

// OTPVerification is a short-lived numeric code sent to a user's email
// address to prove control of it. A code is consumed at most once.
type OTPVerification struct {
	// ID is the unique identifier of the code row.
	ID int `json:"id" db:"id"`

	// UserID identifies the user the code was issued to.
	UserID int `json:"user_id" db:"user_id"`

	// Code is the 6-digit numeric code.
	Code string `json:"-" db:"code"`

	// ExpiresAt is the instant after which the code is no longer accepted.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// Consumed is set when the code has been used or superseded.
	Consumed bool `json:"consumed" db:"consumed"`

	// CreatedAt is the timestamp when the code was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Valid reports whether the code can still be accepted at now.
func (o OTPVerification) Valid(now time.Time) bool {
	return !o.Consumed && now.Before(o.ExpiresAt)
}
