// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"librastacks/internal/journal"
	"librastacks/internal/telemetry"
)

const instrumentationName = "librastacks/membership"

// service implements the Service interface.
type service struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*Account
	order    []uuid.UUID

	journal     *journal.Journal
	rateLimiter *rate.Limiter
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time

	registered metric.Int64Counter
}

type Option func(*service)

// WithRateLimit caps registrations and logins at perMinute with the given burst.
func WithRateLimit(perMinute, burst int) Option {
	return func(s *service) {
		if perMinute <= 0 {
			return
		}
		s.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *service) { s.tracer = tp.Tracer(instrumentationName) }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *service) {
		s.registered = telemetry.Counter(mp.Meter(instrumentationName), "membership.accounts.registered", "Accounts registered")
	}
}

// NewService creates a new membership service instance.
func NewService(es *journal.Journal, opts ...Option) Service {
	s := &service{
		accounts:    make(map[uuid.UUID]*Account),
		journal:     es,
		rateLimiter: rate.NewLimiter(rate.Every(time.Second), 10),
		logger:      slog.Default(),
		tracer:      otel.Tracer(instrumentationName),
		now:         time.Now,
		registered:  telemetry.Counter(otel.Meter(instrumentationName), "membership.accounts.registered", "Accounts registered"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterAccount creates an active account with no loans.
func (s *service) RegisterAccount(ctx context.Context, fullName, phone, email string) (*Account, error) {
	ctx, span := s.tracer.Start(ctx, "membership.register_account")
	defer span.End()

	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimitExceeded
	}

	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	if fullName == "" || email == "" {
		return nil, fmt.Errorf("full name and email are required: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByEmailLocked(email) != nil {
		return nil, fmt.Errorf("%s: %w", email, ErrDuplicateEmail)
	}

	account := &Account{
		ID:        uuid.New(),
		FullName:  fullName,
		Phone:     phone,
		Email:     email,
		Status:    StatusActive,
		CreatedAt: s.now().UTC(),
	}
	s.accounts[account.ID] = account
	s.order = append(s.order, account.ID)

	span.SetAttributes(attribute.String("account.id", account.ID.String()))
	s.registered.Add(ctx, 1)
	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID, "full_name", fullName)

	s.record(ctx, account.ID, EventAccountRegistered, AccountRegisteredEvent{
		ID:       account.ID,
		FullName: fullName,
		Email:    email,
	})
	return account.clone(), nil
}

// GetAccount retrieves an account by its ID.
func (s *service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrAccountNotFound)
	}
	return account.clone(), nil
}

func (s *service) TryFindAccount(ctx context.Context, id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[id]
	return ok
}

// Authenticate finds the account whose email matches login. Passwords are not
// checked; the library desk identifies readers by card.
func (s *service) Authenticate(ctx context.Context, login, password string) (*Account, error) {
	_, span := s.tracer.Start(ctx, "membership.authenticate")
	defer span.End()

	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimitExceeded
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	account := s.findByEmailLocked(strings.TrimSpace(login))
	if account == nil {
		return nil, fmt.Errorf("authentication failed: %w", ErrInvalidCredentials)
	}
	return account.clone(), nil
}

// ScanQRCode decodes a card. The payload is the account id itself.
func (s *service) ScanQRCode(ctx context.Context, qrData string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(qrData))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidQRCode, err)
	}
	return id, nil
}

func (s *service) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	ctx, span := s.tracer.Start(ctx, "membership.set_status",
		trace.WithAttributes(
			attribute.String("account.id", id.String()),
			attribute.String("account.status", string(status)),
		),
	)
	defer span.End()

	if !status.Valid() {
		return fmt.Errorf("%q: %w", status, ErrInvalidStatus)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, ErrAccountNotFound)
	}
	if account.Status == status {
		return nil
	}

	from := account.Status
	account.Status = status
	s.logger.InfoContext(ctx, "account status changed", "account_id", id, "from", from, "to", status)

	s.record(ctx, id, EventAccountStatusChanged, AccountStatusChangedEvent{ID: id, From: from, To: status})
	return nil
}

func (s *service) AddLoan(ctx context.Context, id uuid.UUID, copyID string) error {
	return s.update(id, func(a *Account) error {
		a.CurrentLoans++
		a.BooksOnHand = append(a.BooksOnHand, copyID)
		return nil
	})
}

func (s *service) RemoveLoan(ctx context.Context, id uuid.UUID, copyID string) error {
	return s.update(id, func(a *Account) error {
		if a.CurrentLoans == 0 {
			return fmt.Errorf("account %s: %w", id, ErrNoOutstandingLoans)
		}
		rest, removed := removeFirst(a.BooksOnHand, copyID)
		if !removed {
			return fmt.Errorf("account %s: copy %s not on hand: %w", id, copyID, ErrNoOutstandingLoans)
		}
		a.CurrentLoans--
		a.BooksOnHand = rest
		return nil
	})
}

func (s *service) AddReservation(ctx context.Context, id uuid.UUID, reservationID uuid.UUID) error {
	return s.update(id, func(a *Account) error {
		a.CurrentReservations = append(a.CurrentReservations, reservationID)
		return nil
	})
}

func (s *service) RemoveReservation(ctx context.Context, id uuid.UUID, reservationID uuid.UUID) error {
	return s.update(id, func(a *Account) error {
		for i, r := range a.CurrentReservations {
			if r == reservationID {
				a.CurrentReservations = append(a.CurrentReservations[:i], a.CurrentReservations[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("reservation %s: %w", reservationID, ErrReservationNotFound)
	})
}

func (s *service) update(id uuid.UUID, fn func(*Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, ErrAccountNotFound)
	}
	return fn(account)
}

// findByEmailLocked returns the earliest registered account with the email.
func (s *service) findByEmailLocked(email string) *Account {
	for _, id := range s.order {
		if a := s.accounts[id]; strings.EqualFold(a.Email, email) {
			return a
		}
	}
	return nil
}

func (s *service) record(ctx context.Context, id uuid.UUID, eventType string, payload interface{}) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, id.String(), aggregateAccount, eventType, payload); err != nil {
		s.logger.ErrorContext(ctx, "failed to record event", "event_type", eventType, "account_id", id, "error", err)
	}
}

func removeFirst(items []string, target string) ([]string, bool) {
	for i, item := range items {
		if item == target {
			return append(items[:i], items[i+1:]...), true
		}
	}
	return items, false
}
