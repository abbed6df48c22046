// internal/chaos/faults.go
package chaos

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"librastacks/internal/book"
	"librastacks/internal/catalog"
	"librastacks/internal/circulation"
	"librastacks/internal/membership"
)

var ErrInjected = errors.New("injected fault")

// Faults switches injected faults on the dependencies circulation drives.
// The zero value injects nothing.
type Faults struct {
	catalogLatency atomic.Int64
	failAccounts   atomic.Bool
}

func (f *Faults) SetCatalogLatency(d time.Duration) { f.catalogLatency.Store(int64(d)) }

// FailAccountUpdates makes every loan and reservation bookkeeping call fail
// with ErrInjected. Account lookups keep working.
func (f *Faults) FailAccountUpdates(fail bool) { f.failAccounts.Store(fail) }

func (f *Faults) Reset() {
	f.SetCatalogLatency(0)
	f.FailAccountUpdates(false)
}

func (f *Faults) delay(ctx context.Context) error {
	d := time.Duration(f.catalogLatency.Load())
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// WrapCatalog returns c with the catalog faults applied.
func (f *Faults) WrapCatalog(c circulation.Catalog) circulation.Catalog {
	return &faultyCatalog{next: c, faults: f}
}

// WrapAccounts returns a with the account faults applied.
func (f *Faults) WrapAccounts(a circulation.Accounts) circulation.Accounts {
	return &faultyAccounts{next: a, faults: f}
}

type faultyCatalog struct {
	next   circulation.Catalog
	faults *Faults
}

func (c *faultyCatalog) FindAvailableCopy(ctx context.Context, bookID string) (*catalog.CopyLocation, error) {
	if err := c.faults.delay(ctx); err != nil {
		return nil, err
	}
	return c.next.FindAvailableCopy(ctx, bookID)
}

func (c *faultyCatalog) FindCopyByID(ctx context.Context, copyID string) (*catalog.CopyLocation, error) {
	if err := c.faults.delay(ctx); err != nil {
		return nil, err
	}
	return c.next.FindCopyByID(ctx, copyID)
}

func (c *faultyCatalog) UpdateCopyStatus(ctx context.Context, copyID string, status book.Status, holderAccountID string) error {
	if err := c.faults.delay(ctx); err != nil {
		return err
	}
	return c.next.UpdateCopyStatus(ctx, copyID, status, holderAccountID)
}

type faultyAccounts struct {
	next   circulation.Accounts
	faults *Faults
}

func (a *faultyAccounts) GetAccount(ctx context.Context, id uuid.UUID) (*membership.Account, error) {
	return a.next.GetAccount(ctx, id)
}

func (a *faultyAccounts) AddLoan(ctx context.Context, id uuid.UUID, copyID string) error {
	if a.faults.failAccounts.Load() {
		return ErrInjected
	}
	return a.next.AddLoan(ctx, id, copyID)
}

func (a *faultyAccounts) RemoveLoan(ctx context.Context, id uuid.UUID, copyID string) error {
	if a.faults.failAccounts.Load() {
		return ErrInjected
	}
	return a.next.RemoveLoan(ctx, id, copyID)
}

func (a *faultyAccounts) AddReservation(ctx context.Context, id uuid.UUID, reservationID uuid.UUID) error {
	if a.faults.failAccounts.Load() {
		return ErrInjected
	}
	return a.next.AddReservation(ctx, id, reservationID)
}

func (a *faultyAccounts) RemoveReservation(ctx context.Context, id uuid.UUID, reservationID uuid.UUID) error {
	if a.faults.failAccounts.Load() {
		return ErrInjected
	}
	return a.next.RemoveReservation(ctx, id, reservationID)
}
