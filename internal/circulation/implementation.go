// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"librastacks/internal/book"
	"librastacks/internal/journal"
	"librastacks/internal/membership"
	"librastacks/internal/notification"
	"librastacks/internal/telemetry"
)

const (
	instrumentationName = "librastacks/circulation"

	DefaultMaxLoans        = 5
	DefaultReservationHold = 7 * 24 * time.Hour
)

// service implements the Service interface. mu serializes every lending
// operation, so a copy found available is still available when it is marked
// loaned.
type service struct {
	mu sync.Mutex

	loans        map[uuid.UUID]*Loan
	loansByCopy  map[string]uuid.UUID
	loanOrder    []uuid.UUID
	queues       map[string]*ReservationQueue
	queueOrder   []string
	reservations map[uuid.UUID]*Reservation

	catalog  Catalog
	accounts Accounts
	notifier notification.Notifier
	journal  *journal.Journal

	maxLoans        int
	reservationHold time.Duration
	now             func() time.Time

	logger *slog.Logger
	tracer trace.Tracer

	issued   metric.Int64Counter
	returned metric.Int64Counter
	reserved metric.Int64Counter
}

type Option func(*service)

func WithMaxLoans(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.maxLoans = n
		}
	}
}

// WithReservationHold sets how long a reservation, and later a copy set aside
// for it, stays valid.
func WithReservationHold(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.reservationHold = d
		}
	}
}

func WithNotifier(n notification.Notifier) Option {
	return func(s *service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *service) { s.tracer = tp.Tracer(instrumentationName) }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *service) { s.initMetrics(mp.Meter(instrumentationName)) }
}

// NewService creates a new circulation service instance.
func NewService(cat Catalog, accounts Accounts, es *journal.Journal, opts ...Option) Service {
	s := &service{
		loans:           make(map[uuid.UUID]*Loan),
		loansByCopy:     make(map[string]uuid.UUID),
		queues:          make(map[string]*ReservationQueue),
		reservations:    make(map[uuid.UUID]*Reservation),
		catalog:         cat,
		accounts:        accounts,
		journal:         es,
		maxLoans:        DefaultMaxLoans,
		reservationHold: DefaultReservationHold,
		now:             time.Now,
		logger:          slog.Default(),
		tracer:          otel.Tracer(instrumentationName),
	}
	s.initMetrics(otel.Meter(instrumentationName))
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notification.NewLogNotifier(s.logger)
	}
	return s
}

func (s *service) initMetrics(meter metric.Meter) {
	s.issued = telemetry.Counter(meter, "circulation.loans.issued", "Loans issued")
	s.returned = telemetry.Counter(meter, "circulation.loans.returned", "Loans closed by a return")
	s.reserved = telemetry.Counter(meter, "circulation.reservations.placed", "Reservations placed")
}

// CanBorrowMore reports whether the account is active, below the loan limit,
// free of overdue loans and free of unpaid fines.
func (s *service) CanBorrowMore(ctx context.Context, accountID uuid.UUID) (bool, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canBorrowLocked(ctx, account), nil
}

func (s *service) canBorrowLocked(ctx context.Context, account *membership.Account) bool {
	active := account.IsActive()
	withinLimit := account.CurrentLoans < s.maxLoans
	overdue := s.hasOverdueLocked(account.ID)
	fines := account.HasUnpaidFines()

	ok := active && withinLimit && !overdue && !fines
	if !ok {
		s.logger.InfoContext(ctx, "account cannot borrow",
			"account_id", account.ID,
			"active", active,
			"current_loans", account.CurrentLoans,
			"max_loans", s.maxLoans,
			"overdue", overdue,
			"unpaid_fines", fines,
		)
	}
	return ok
}

func (s *service) hasOverdueLocked(accountID uuid.UUID) bool {
	now := s.now()
	for _, loan := range s.loans {
		if loan.AccountID == accountID && loan.IsOverdue(now) {
			return true
		}
	}
	return false
}

// IssueBook orchestrates the loan saga: pick a copy, mark it loaned, then book
// it against the account. If a later step fails the copy is restored.
func (s *service) IssueBook(ctx context.Context, accountID uuid.UUID, bookID string, issueDate, dueDate time.Time) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.issue_book",
		trace.WithAttributes(
			attribute.String("account.id", accountID.String()),
			attribute.String("book.id", bookID),
		),
	)
	defer span.End()

	if !dueDate.After(issueDate) {
		return nil, ErrInvalidDates
	}

	// Step 1: Validate the reader
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.canBorrowLocked(ctx, account) {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrCannotBorrow)
	}

	// Step 2: Pick a copy, preferring one set aside for this reader
	var reservation *Reservation
	if q := s.queues[bookID]; q != nil {
		reservation = q.activeFor(accountID)
	}

	var copyID string
	prevStatus, prevHolder := book.StatusAvailable, ""
	if reservation != nil && reservation.HeldCopyID != "" {
		copyID = reservation.HeldCopyID
		prevStatus, prevHolder = book.StatusReserved, accountID.String()
	} else {
		loc, err := s.catalog.FindAvailableCopy(ctx, bookID)
		if err != nil {
			return nil, fmt.Errorf("failed to find copy: %w", err)
		}
		if loc == nil {
			return nil, fmt.Errorf("book %s: %w", bookID, ErrBookNotAvailable)
		}
		copyID = loc.Copy.ID
	}
	span.SetAttributes(attribute.String("copy.id", copyID))

	// Step 3: Mark the copy loaned (with compensation)
	if err := s.catalog.UpdateCopyStatus(ctx, copyID, book.StatusLoaned, accountID.String()); err != nil {
		return nil, fmt.Errorf("failed to update copy status: %w", err)
	}

	compensation := func() {
		s.logger.WarnContext(ctx, "compensating for failed loan: restoring copy", "copy_id", copyID, "status", prevStatus)
		if err := s.catalog.UpdateCopyStatus(ctx, copyID, prevStatus, prevHolder); err != nil {
			s.logger.ErrorContext(ctx, "failed to compensate copy status", "copy_id", copyID, "error", err)
		}
	}

	// Step 4: Book the loan against the account
	if err := s.accounts.AddLoan(ctx, accountID, copyID); err != nil {
		compensation()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to record loan on account: %w", err)
	}

	// Step 5: The reader's reservation for this title is now fulfilled
	if reservation != nil {
		reservation.Status = ReservationFulfilled
		if err := s.accounts.RemoveReservation(ctx, accountID, reservation.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to detach fulfilled reservation", "reservation_id", reservation.ID, "error", err)
		}
		s.record(ctx, reservation.ID.String(), aggregateReservation, EventReservationFulfilled, ReservationEvent{
			ReservationID: reservation.ID,
			AccountID:     accountID,
			BookID:        bookID,
			CopyID:        copyID,
		})
	}

	loan := &Loan{
		ID:        uuid.New(),
		AccountID: accountID,
		CopyID:    copyID,
		BookID:    bookID,
		IssueDate: issueDate,
		DueDate:   dueDate,
	}
	s.loans[loan.ID] = loan
	s.loansByCopy[copyID] = loan.ID
	s.loanOrder = append(s.loanOrder, loan.ID)

	s.issued.Add(ctx, 1)
	s.logger.InfoContext(ctx, "loan issued", "loan_id", loan.ID, "account_id", accountID, "copy_id", copyID, "due", dueDate)
	s.record(ctx, loan.ID.String(), aggregateLoan, EventLoanIssued, LoanIssuedEvent{
		LoanID:    loan.ID,
		AccountID: accountID,
		CopyID:    copyID,
		BookID:    bookID,
		IssueDate: issueDate,
		DueDate:   dueDate,
	})

	out := *loan
	return &out, nil
}

// CheckReturnBook reports whether the copy's loan is overdue. A copy that is
// not on loan is never overdue.
func (s *service) CheckReturnBook(ctx context.Context, copyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.loansByCopy[copyID]
	if !ok {
		return false, nil
	}
	return s.loans[id].IsOverdue(s.now()), nil
}

// ReturnBook closes the copy's loan. The copy goes to the next waiting reader
// if the title has a queue, otherwise back to the shelf as available.
func (s *service) ReturnBook(ctx context.Context, copyID string) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_book",
		trace.WithAttributes(attribute.String("copy.id", copyID)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: Find the active loan
	loanID, ok := s.loansByCopy[copyID]
	if !ok {
		return nil, fmt.Errorf("copy %s: %w", copyID, ErrLoanNotFound)
	}
	loan := s.loans[loanID]
	now := s.now()

	// Step 2: Route the copy
	var next *Reservation
	var nextExpiry time.Time
	if q := s.queues[loan.BookID]; q != nil {
		next = q.NextWaiting()
	}
	if next != nil {
		nextExpiry = next.ExpiresAt
	}
	if err := s.releaseCopyLocked(ctx, copyID, next, now); err != nil {
		return nil, err
	}

	// Step 3: Update the reader's bookkeeping (with compensation)
	if err := s.accounts.RemoveLoan(ctx, loan.AccountID, copyID); err != nil {
		s.logger.WarnContext(ctx, "compensating for failed return: copy goes back on loan", "copy_id", copyID)
		if next != nil {
			next.HeldCopyID = ""
			next.ExpiresAt = nextExpiry
		}
		if cerr := s.catalog.UpdateCopyStatus(ctx, copyID, book.StatusLoaned, loan.AccountID.String()); cerr != nil {
			s.logger.ErrorContext(ctx, "failed to compensate copy status", "copy_id", copyID, "error", cerr)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to remove loan from account: %w", err)
	}

	delete(s.loans, loanID)
	delete(s.loansByCopy, copyID)
	s.loanOrder = removeID(s.loanOrder, loanID)

	overdue := loan.DaysOverdue(now)
	s.returned.Add(ctx, 1, metric.WithAttributes(attribute.Bool("overdue", overdue > 0)))
	s.logger.InfoContext(ctx, "loan returned", "loan_id", loan.ID, "copy_id", copyID, "days_overdue", overdue)
	s.record(ctx, loan.ID.String(), aggregateLoan, EventLoanReturned, LoanReturnedEvent{
		LoanID:      loan.ID,
		AccountID:   loan.AccountID,
		CopyID:      copyID,
		ReturnedAt:  now,
		DaysOverdue: overdue,
	})

	if next != nil {
		s.announceHeldLocked(ctx, next)
	}

	out := *loan
	return &out, nil
}

// releaseCopyLocked sets the copy aside for next, or shelves it as available
// when nobody is waiting. Callers announce the hold once it is final.
func (s *service) releaseCopyLocked(ctx context.Context, copyID string, next *Reservation, now time.Time) error {
	if next == nil {
		if err := s.catalog.UpdateCopyStatus(ctx, copyID, book.StatusAvailable, ""); err != nil {
			return fmt.Errorf("failed to update copy status: %w", err)
		}
		return nil
	}

	if err := s.catalog.UpdateCopyStatus(ctx, copyID, book.StatusReserved, next.AccountID.String()); err != nil {
		return fmt.Errorf("failed to hold copy: %w", err)
	}
	next.HeldCopyID = copyID
	next.ExpiresAt = now.Add(s.reservationHold)
	return nil
}

// announceHeldLocked journals a hold and tells the reader to pick the copy up.
func (s *service) announceHeldLocked(ctx context.Context, r *Reservation) {
	s.record(ctx, r.ID.String(), aggregateReservation, EventReservationHeld, ReservationEvent{
		ReservationID: r.ID,
		AccountID:     r.AccountID,
		BookID:        r.BookID,
		CopyID:        r.HeldCopyID,
	})
	s.notify(ctx, notification.Message{
		AccountID: r.AccountID,
		Subject:   "Reserved book is ready",
		Body: fmt.Sprintf("Copy %s of book %s is held for you until %s",
			r.HeldCopyID, r.BookID, r.ExpiresAt.Format(time.DateOnly)),
	})
}

// ActiveLoans returns a snapshot of open loans in issue order.
func (s *service) ActiveLoans(ctx context.Context) []Loan {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Loan, 0, len(s.loanOrder))
	for _, id := range s.loanOrder {
		out = append(out, *s.loans[id])
	}
	return out
}

// ReserveBook puts the reader at the back of the title's queue.
func (s *service) ReserveBook(ctx context.Context, accountID uuid.UUID, bookID string) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.reserve_book",
		trace.WithAttributes(
			attribute.String("account.id", accountID.String()),
			attribute.String("book.id", bookID),
		),
	)
	defer span.End()

	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[bookID]
	if !ok {
		q = NewReservationQueue(bookID)
		s.queues[bookID] = q
		s.queueOrder = append(s.queueOrder, bookID)
	}
	if q.activeFor(accountID) != nil {
		return nil, fmt.Errorf("book %s: %w", bookID, ErrAlreadyReserved)
	}

	now := s.now()
	r := &Reservation{
		ID:        uuid.New(),
		AccountID: accountID,
		BookID:    bookID,
		Status:    ReservationActive,
		CreatedAt: now,
		ExpiresAt: now.Add(s.reservationHold),
	}

	if err := s.accounts.AddReservation(ctx, accountID, r.ID); err != nil {
		return nil, fmt.Errorf("failed to record reservation on account: %w", err)
	}
	q.Add(r)
	s.reservations[r.ID] = r

	s.reserved.Add(ctx, 1)
	span.SetAttributes(attribute.Int("queue.position", q.Position(accountID)))
	s.record(ctx, r.ID.String(), aggregateReservation, EventReservationPlaced, ReservationEvent{
		ReservationID: r.ID,
		AccountID:     accountID,
		BookID:        bookID,
	})

	out := *r
	return &out, nil
}

func (s *service) CancelReservation(ctx context.Context, reservationID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "circulation.cancel_reservation",
		trace.WithAttributes(attribute.String("reservation.id", reservationID.String())),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[reservationID]
	if !ok {
		return fmt.Errorf("reservation %s: %w", reservationID, ErrReservationNotFound)
	}
	if !r.Active() {
		return fmt.Errorf("reservation %s is %s: %w", reservationID, r.Status, ErrReservationNotActive)
	}

	r.Status = ReservationCancelled
	s.closeReservationLocked(ctx, r, EventReservationCancelled)
	return nil
}

// closeReservationLocked detaches an ended reservation from its account and
// passes any copy it held to the next waiting reader.
func (s *service) closeReservationLocked(ctx context.Context, r *Reservation, eventType string) {
	if err := s.accounts.RemoveReservation(ctx, r.AccountID, r.ID); err != nil && !errors.Is(err, membership.ErrReservationNotFound) {
		s.logger.WarnContext(ctx, "failed to detach reservation from account", "reservation_id", r.ID, "error", err)
	}

	s.record(ctx, r.ID.String(), aggregateReservation, eventType, ReservationEvent{
		ReservationID: r.ID,
		AccountID:     r.AccountID,
		BookID:        r.BookID,
		CopyID:        r.HeldCopyID,
	})

	if r.HeldCopyID == "" {
		return
	}
	copyID := r.HeldCopyID
	next := s.queues[r.BookID].NextWaiting()
	if err := s.releaseCopyLocked(ctx, copyID, next, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "failed to release held copy", "copy_id", copyID, "error", err)
		return
	}
	if next != nil {
		s.announceHeldLocked(ctx, next)
	}
}

// ReservationPosition returns the reader's 1-based place among active
// reservations for the title, or -1.
func (s *service) ReservationPosition(ctx context.Context, bookID string, accountID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[bookID]
	if !ok {
		return -1
	}
	return q.Position(accountID)
}

// NotifyNextReader tells the first reader in the title's queue that the book
// is coming up. It returns that reservation, or nil when the queue is empty.
func (s *service) NotifyNextReader(ctx context.Context, bookID string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[bookID]
	if !ok {
		return nil, nil
	}
	next := q.Next()
	if next == nil {
		s.logger.DebugContext(ctx, "nobody to notify", "book_id", bookID)
		return nil, nil
	}

	s.notify(ctx, notification.Message{
		AccountID: next.AccountID,
		Subject:   "Your reservation is next",
		Body:      fmt.Sprintf("You are first in line for book %s", bookID),
	})
	out := *next
	return &out, nil
}

// ExpireReservations ends every active reservation whose deadline is before now
// and returns them.
func (s *service) ExpireReservations(ctx context.Context, now time.Time) ([]Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.expire_reservations")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*Reservation
	for _, bookID := range s.queueOrder {
		for _, r := range s.queues[bookID].reservations {
			if r.Active() && r.ExpiresAt.Before(now) {
				expired = append(expired, r)
			}
		}
	}

	out := make([]Reservation, 0, len(expired))
	for _, r := range expired {
		// An earlier expiry in this pass may have handed r a fresh hold.
		if !r.Active() || !r.ExpiresAt.Before(now) {
			continue
		}
		r.Status = ReservationExpired
		s.closeReservationLocked(ctx, r, EventReservationExpired)
		s.notify(ctx, notification.Message{
			AccountID: r.AccountID,
			Subject:   "Reservation expired",
			Body:      fmt.Sprintf("Your reservation for book %s has expired", r.BookID),
		})
		out = append(out, *r)
	}

	if len(out) > 0 {
		s.logger.InfoContext(ctx, "reservations expired", "count", len(out))
	}
	span.SetAttributes(attribute.Int("expired.count", len(out)))
	return out, nil
}

func (s *service) notify(ctx context.Context, msg notification.Message) {
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "failed to notify reader", "account_id", msg.AccountID, "subject", msg.Subject, "error", err)
	}
}

func (s *service) record(ctx context.Context, aggregateID, aggregateType, eventType string, payload interface{}) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, aggregateID, aggregateType, eventType, payload); err != nil {
		s.logger.ErrorContext(ctx, "failed to record event", "event_type", eventType, "aggregate_id", aggregateID, "error", err)
	}
}

func removeID(ids []uuid.UUID, target uuid.UUID) []uuid.UUID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
