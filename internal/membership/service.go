// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	RegisterAccount(ctx context.Context, fullName, phone, email string) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	TryFindAccount(ctx context.Context, id uuid.UUID) bool
	Authenticate(ctx context.Context, login, password string) (*Account, error)
	ScanQRCode(ctx context.Context, qrData string) (uuid.UUID, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error

	// Bookkeeping hooks driven by circulation.
	AddLoan(ctx context.Context, id uuid.UUID, copyID string) error
	RemoveLoan(ctx context.Context, id uuid.UUID, copyID string) error
	AddReservation(ctx context.Context, id uuid.UUID, reservationID uuid.UUID) error
	RemoveReservation(ctx context.Context, id uuid.UUID, reservationID uuid.UUID) error
}
