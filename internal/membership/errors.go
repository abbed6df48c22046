// internal/membership/errors.go
package membership

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidQRCode       = errors.New("qr code does not hold an account id")
	ErrInvalidStatus       = errors.New("invalid account status")
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrNoOutstandingLoans  = errors.New("account has no outstanding loans")
	ErrReservationNotFound = errors.New("reservation not held by account")
)
