// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
)

// Loan records a copy handed to a reader.
type Loan struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	CopyID    string    `json:"copy_id"`
	BookID    string    `json:"book_id"`
	IssueDate time.Time `json:"issue_date"`
	DueDate   time.Time `json:"due_date"`
}

// DaysOverdue counts whole days past the due date; it is zero or negative
// while the loan is on time.
func (l *Loan) DaysOverdue(now time.Time) int {
	return int(now.Sub(l.DueDate) / (24 * time.Hour))
}

func (l *Loan) IsOverdue(now time.Time) bool {
	return l.DaysOverdue(now) > 0
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation is a reader's place in the queue for a title. Once a returned
// copy is set aside for the reader, HeldCopyID names it.
type Reservation struct {
	ID         uuid.UUID         `json:"id"`
	AccountID  uuid.UUID         `json:"account_id"`
	BookID     string            `json:"book_id"`
	Status     ReservationStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	HeldCopyID string            `json:"held_copy_id,omitempty"`
}

func (r *Reservation) Active() bool { return r.Status == ReservationActive }

// ReservationQueue keeps a title's reservations in the order they were made.
type ReservationQueue struct {
	bookID       string
	reservations []*Reservation
}

func NewReservationQueue(bookID string) *ReservationQueue {
	return &ReservationQueue{bookID: bookID}
}

func (q *ReservationQueue) BookID() string { return q.bookID }

func (q *ReservationQueue) Add(r *Reservation) {
	q.reservations = append(q.reservations, r)
}

// Next returns the earliest active reservation, or nil.
func (q *ReservationQueue) Next() *Reservation {
	for _, r := range q.reservations {
		if r.Active() {
			return r
		}
	}
	return nil
}

// NextWaiting returns the earliest active reservation that has no copy set
// aside yet.
func (q *ReservationQueue) NextWaiting() *Reservation {
	for _, r := range q.reservations {
		if r.Active() && r.HeldCopyID == "" {
			return r
		}
	}
	return nil
}

// Position is the 1-based rank of the account among active reservations, or
// -1 when the account has none.
func (q *ReservationQueue) Position(accountID uuid.UUID) int {
	pos := 0
	for _, r := range q.reservations {
		if !r.Active() {
			continue
		}
		pos++
		if r.AccountID == accountID {
			return pos
		}
	}
	return -1
}

func (q *ReservationQueue) activeFor(accountID uuid.UUID) *Reservation {
	for _, r := range q.reservations {
		if r.Active() && r.AccountID == accountID {
			return r
		}
	}
	return nil
}

const (
	aggregateLoan        = "loan"
	aggregateReservation = "reservation"

	EventLoanIssued           = "LoanIssued"
	EventLoanReturned         = "LoanReturned"
	EventReservationPlaced    = "ReservationPlaced"
	EventReservationCancelled = "ReservationCancelled"
	EventReservationExpired   = "ReservationExpired"
	EventReservationFulfilled = "ReservationFulfilled"
	EventReservationHeld      = "ReservationCopyHeld"
)

// LoanIssuedEvent is recorded when a copy leaves the library.
type LoanIssuedEvent struct {
	LoanID    uuid.UUID `json:"loan_id"`
	AccountID uuid.UUID `json:"account_id"`
	CopyID    string    `json:"copy_id"`
	BookID    string    `json:"book_id"`
	IssueDate time.Time `json:"issue_date"`
	DueDate   time.Time `json:"due_date"`
}

// LoanReturnedEvent is recorded when a copy comes back.
type LoanReturnedEvent struct {
	LoanID      uuid.UUID `json:"loan_id"`
	AccountID   uuid.UUID `json:"account_id"`
	CopyID      string    `json:"copy_id"`
	ReturnedAt  time.Time `json:"returned_at"`
	DaysOverdue int       `json:"days_overdue"`
}

// ReservationEvent is recorded for every reservation state change.
type ReservationEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	AccountID     uuid.UUID `json:"account_id"`
	BookID        string    `json:"book_id"`
	CopyID        string    `json:"copy_id,omitempty"`
}
