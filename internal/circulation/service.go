// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"librastacks/internal/book"
	"librastacks/internal/catalog"
	"librastacks/internal/membership"
)

// Service defines the interface for the circulation service.
type Service interface {
	CanBorrowMore(ctx context.Context, accountID uuid.UUID) (bool, error)
	IssueBook(ctx context.Context, accountID uuid.UUID, bookID string, issueDate, dueDate time.Time) (*Loan, error)
	CheckReturnBook(ctx context.Context, copyID string) (bool, error)
	ReturnBook(ctx context.Context, copyID string) (*Loan, error)
	ActiveLoans(ctx context.Context) []Loan

	ReserveBook(ctx context.Context, accountID uuid.UUID, bookID string) (*Reservation, error)
	CancelReservation(ctx context.Context, reservationID uuid.UUID) error
	ReservationPosition(ctx context.Context, bookID string, accountID uuid.UUID) int
	NotifyNextReader(ctx context.Context, bookID string) (*Reservation, error)
	ExpireReservations(ctx context.Context, now time.Time) ([]Reservation, error)
}

// Catalog is the part of the catalog circulation relies on. Both the in-process
// catalog service and the HTTP client satisfy it.
type Catalog interface {
	FindAvailableCopy(ctx context.Context, bookID string) (*catalog.CopyLocation, error)
	FindCopyByID(ctx context.Context, copyID string) (*catalog.CopyLocation, error)
	UpdateCopyStatus(ctx context.Context, copyID string, status book.Status, holderAccountID string) error
}

// Accounts is the membership bookkeeping circulation drives.
type Accounts interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*membership.Account, error)
	AddLoan(ctx context.Context, id uuid.UUID, copyID string) error
	RemoveLoan(ctx context.Context, id uuid.UUID, copyID string) error
	AddReservation(ctx context.Context, id uuid.UUID, reservationID uuid.UUID) error
	RemoveReservation(ctx context.Context, id uuid.UUID, reservationID uuid.UUID) error
}
