// internal/membership/domain.go
package membership

import (
	"time"

	"github.com/google/uuid"
)

// Status says whether an account may use the library.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusBlocked
}

// Account represents a registered reader. The account id doubles as the
// payload of the reader's QR card.
type Account struct {
	ID                  uuid.UUID   `json:"id"`
	FullName            string      `json:"full_name"`
	Phone               string      `json:"phone"`
	Email               string      `json:"email"`
	Status              Status      `json:"status"`
	CurrentLoans        int         `json:"current_loans"`
	BooksOnHand         []string    `json:"books_on_hand"`
	CurrentReservations []uuid.UUID `json:"current_reservations"`
	FineBalance         float64     `json:"fine_balance"`
	CreatedAt           time.Time   `json:"created_at"`
}

func (a *Account) IsActive() bool { return a.Status == StatusActive }

// HasUnpaidFines is always false while fines are not charged.
func (a *Account) HasUnpaidFines() bool { return a.FineBalance > 0 }

func (a *Account) clone() *Account {
	out := *a
	out.BooksOnHand = append([]string(nil), a.BooksOnHand...)
	out.CurrentReservations = append([]uuid.UUID(nil), a.CurrentReservations...)
	return &out
}

const (
	aggregateAccount = "account"

	EventAccountRegistered    = "AccountRegistered"
	EventAccountStatusChanged = "AccountStatusChanged"
)

// AccountRegisteredEvent is recorded when a new reader registers.
type AccountRegisteredEvent struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
}

// AccountStatusChangedEvent is recorded when an account is blocked or reinstated.
type AccountStatusChangedEvent struct {
	ID   uuid.UUID `json:"id"`
	From Status    `json:"from"`
	To   Status    `json:"to"`
}
