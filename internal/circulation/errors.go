// internal/circulation/errors.go
package circulation

import (
	"errors"

	"librastacks/internal/membership"
)

var (
	ErrAccountNotFound      = membership.ErrAccountNotFound
	ErrCannotBorrow         = errors.New("account cannot borrow more books")
	ErrBookNotAvailable     = errors.New("book not available")
	ErrLoanNotFound         = errors.New("no active loan for copy")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationNotActive = errors.New("reservation is not active")
	ErrAlreadyReserved      = errors.New("account already has an active reservation for this book")
	ErrInvalidDates         = errors.New("due date must be after issue date")
)
