package services

import "errors"

// Service errors. Handlers map each one to a status code.
var (
	ErrEmailInUse              = errors.New("Email already in use")
	ErrUserNotFound            = errors.New("User not found")
	ErrAlreadyVerified         = errors.New("Already verified")
	ErrInvalidCredentials      = errors.New("Invalid credentials")
	ErrRoleMismatch            = errors.New("Role mismatch")
	ErrEmailNotVerified        = errors.New("Email not verified")
	ErrInvalidOTP              = errors.New("Invalid or expired OTP")
	ErrForbidden               = errors.New("Forbidden")
	ErrBookNotFound            = errors.New("Book not found")
	ErrBookUnavailable         = errors.New("Book is not available for request")
	ErrBookNoLongerAvailable   = errors.New("Book is no longer available")
	ErrDuplicatePendingRequest = errors.New("You already have a pending request for this book")
	ErrRequestNotFound         = errors.New("Book request not found")
	ErrAlreadyProcessed        = errors.New("Book request has already been processed")
	ErrOnlyPendingCancellable  = errors.New("Only pending requests can be cancelled")
	ErrDuplicateISBN           = errors.New("A book with this ISBN already exists.")
	ErrBookInUse               = errors.New("Book has pending requests or active loans")
	ErrLoanNotFound            = errors.New("Transaction not found")
	ErrLoanNotActive           = errors.New("Transaction is not active")
	ErrStorageDisabled         = errors.New("Cover storage is not configured")
	ErrCoverNotFound           = errors.New("Cover not found")
)

// ValidationError reports malformed, missing, or oversized input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}
