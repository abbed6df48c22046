// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"librastacks/internal/book"
	"librastacks/internal/catalog"
	"librastacks/internal/circulation"
	"librastacks/internal/journal"
	"librastacks/internal/membership"
	"librastacks/internal/storage"
)

// Library is an in-process library whose circulation runs through Faults.
type Library struct {
	Catalog     catalog.Service
	Accounts    membership.Service
	Circulation circulation.Service
	Journal     *journal.Journal
	Faults      *Faults
}

func NewLibrary(shelves, slotsPerShelf int, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	j := journal.New()
	faults := &Faults{}

	cat := catalog.NewService(storage.NewRoot("", shelves, slotsPerShelf), j, catalog.WithLogger(logger))
	accounts := membership.NewService(j, membership.WithLogger(logger), membership.WithRateLimit(60000, 1000))
	circ := circulation.NewService(faults.WrapCatalog(cat), faults.WrapAccounts(accounts), j, circulation.WithLogger(logger))

	return &Library{
		Catalog:     cat,
		Accounts:    accounts,
		Circulation: circ,
		Journal:     j,
		Faults:      faults,
	}
}

// RegisterDrills registers the standard drills. Shelving overflow fills the
// storage, so it runs last.
func RegisterDrills(e *Engine, lib *Library, window time.Duration) {
	e.RegisterExperiment(lib.CatalogLatencyExperiment(5*time.Millisecond, window))
	e.RegisterExperiment(lib.BookkeepingFailureExperiment(window))
	e.RegisterExperiment(lib.ConcurrentIssueExperiment(50, window))
	e.RegisterExperiment(lib.ShelvingOverflowExperiment(10, window))
}

// CatalogLatencyExperiment slows every catalog call circulation makes.
func (l *Library) CatalogLatencyExperiment(latency, window time.Duration) Experiment {
	const (
		bookID = "CHAOS-SLOW"
		copyID = "CHAOS-SLOW-1"
		cycles = 5
	)
	var attempts, successes atomic.Int64

	successRate := func(ctx context.Context) (float64, error) {
		if attempts.Load() == 0 {
			return 100, nil
		}
		return float64(successes.Load()) / float64(attempts.Load()) * 100, nil
	}

	return Experiment{
		Name:       "catalog-latency-injection",
		Hypothesis: "Lending slows down but keeps succeeding when the catalog is slow",
		SteadyState: []Metric{
			{Name: "lending_success_rate", Query: successRate, Threshold: Threshold{Operator: ">", Value: 99.0}},
			{Name: "lending_inconsistencies", Query: l.lendingInconsistencies(copyID), Threshold: Threshold{Operator: "==", Value: 0}},
		},
		Method: []Action{
			{
				Type:       "inject-latency",
				Target:     "catalog",
				Parameters: map[string]interface{}{"latency": latency, "cycles": cycles},
				Execute: func(ctx context.Context) error {
					if err := l.ensureCopy(ctx, bookID, copyID); err != nil {
						return err
					}
					readers, err := l.registerReaders(ctx, "slow", 1)
					if err != nil {
						return err
					}

					l.Faults.SetCatalogLatency(latency)
					var errs []error
					for i := 0; i < cycles; i++ {
						attempts.Add(1)
						now := time.Now()
						if _, err := l.Circulation.IssueBook(ctx, readers[0], bookID, now, now.Add(24*time.Hour)); err != nil {
							errs = append(errs, err)
							continue
						}
						if _, err := l.Circulation.ReturnBook(ctx, copyID); err != nil {
							errs = append(errs, err)
							continue
						}
						successes.Add(1)
					}
					return errors.Join(errs...)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "remove-latency",
				Target: "catalog",
				Execute: func(ctx context.Context) error {
					l.Faults.SetCatalogLatency(0)
					return nil
				},
			},
		},
		Validation: []Assertion{
			{Metric: "lending_success_rate", Condition: func(v float64) bool { return v > 99.0 }, Message: "Every issue and return should succeed under latency"},
			{Metric: "lending_inconsistencies", Condition: func(v float64) bool { return v == 0 }, Message: "Copy status should match the open loans"},
		},
		Duration:    window,
		BlastRadius: 1.0,
	}
}

// BookkeepingFailureExperiment breaks account bookkeeping mid-saga.
func (l *Library) BookkeepingFailureExperiment(window time.Duration) Experiment {
	const (
		bookID   = "CHAOS-COMP"
		copyID   = "CHAOS-COMP-1"
		attempts = 10
	)

	copyAvailable := func(ctx context.Context) (float64, error) {
		loc, err := l.Catalog.FindCopyByID(ctx, copyID)
		if err != nil {
			return 0, err
		}
		if loc == nil || loc.Available {
			return 1, nil
		}
		return 0, nil
	}

	return Experiment{
		Name:       "account-bookkeeping-failure",
		Hypothesis: "A loan that cannot be booked against the account is rolled back and the copy stays on the shelf",
		SteadyState: []Metric{
			{Name: "lending_inconsistencies", Query: l.lendingInconsistencies(copyID), Threshold: Threshold{Operator: "==", Value: 0}},
			{Name: "copy_available", Query: copyAvailable, Threshold: Threshold{Operator: "==", Value: 1}},
		},
		Method: []Action{
			{
				Type:       "failure",
				Target:     "membership",
				Parameters: map[string]interface{}{"attempts": attempts},
				Execute: func(ctx context.Context) error {
					if err := l.ensureCopy(ctx, bookID, copyID); err != nil {
						return err
					}
					readers, err := l.registerReaders(ctx, "comp", attempts)
					if err != nil {
						return err
					}

					l.Faults.FailAccountUpdates(true)
					for _, r := range readers {
						now := time.Now()
						_, err := l.Circulation.IssueBook(ctx, r, bookID, now, now.Add(24*time.Hour))
						if err == nil {
							return fmt.Errorf("issue to %s succeeded with bookkeeping down", r)
						}
						if !errors.Is(err, ErrInjected) {
							return err
						}
					}
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "restore-bookkeeping",
				Target: "membership",
				Execute: func(ctx context.Context) error {
					l.Faults.FailAccountUpdates(false)
					return nil
				},
			},
		},
		Validation: []Assertion{
			{Metric: "lending_inconsistencies", Condition: func(v float64) bool { return v == 0 }, Message: "No copy should be loaned without an open loan"},
			{Metric: "copy_available", Condition: func(v float64) bool { return v == 1 }, Message: "Compensation should put the copy back on the shelf"},
		},
		Duration:    window,
		BlastRadius: 0.5,
	}
}

// ConcurrentIssueExperiment has many readers borrow a single copy at once.
func (l *Library) ConcurrentIssueExperiment(concurrency int, window time.Duration) Experiment {
	const (
		bookID = "CHAOS-RACE"
		copyID = "CHAOS-RACE-1"
	)
	var issued atomic.Int64

	return Experiment{
		Name:       "concurrent-issue-race-condition",
		Hypothesis: "A single copy is never loaned twice when many readers borrow it simultaneously",
		SteadyState: []Metric{
			{Name: "lending_inconsistencies", Query: l.lendingInconsistencies(copyID), Threshold: Threshold{Operator: "==", Value: 0}},
			{
				Name:      "successful_issues",
				Query:     func(ctx context.Context) (float64, error) { return float64(issued.Load()), nil },
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
		},
		Method: []Action{
			{
				Type:       "concurrent-requests",
				Target:     "circulation",
				Parameters: map[string]interface{}{"concurrency": concurrency, "book_id": bookID},
				Execute: func(ctx context.Context) error {
					if err := l.ensureCopy(ctx, bookID, copyID); err != nil {
						return err
					}
					readers, err := l.registerReaders(ctx, "race", concurrency)
					if err != nil {
						return err
					}

					var (
						wg   sync.WaitGroup
						mu   sync.Mutex
						errs []error
					)
					for _, r := range readers {
						wg.Add(1)
						go func(r uuid.UUID) {
							defer wg.Done()
							now := time.Now()
							_, err := l.Circulation.IssueBook(ctx, r, bookID, now, now.Add(24*time.Hour))
							switch {
							case err == nil:
								issued.Add(1)
							case errors.Is(err, circulation.ErrBookNotAvailable):
							default:
								mu.Lock()
								errs = append(errs, err)
								mu.Unlock()
							}
						}(r)
					}
					wg.Wait()
					return errors.Join(errs...)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "return-copy",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					_, err := l.Circulation.ReturnBook(ctx, copyID)
					if errors.Is(err, circulation.ErrLoanNotFound) {
						return nil
					}
					return err
				},
			},
		},
		Validation: []Assertion{
			{Metric: "lending_inconsistencies", Condition: func(v float64) bool { return v == 0 }, Message: "No copy should be loaned twice"},
			{Metric: "successful_issues", Condition: func(v float64) bool { return v == 1 }, Message: "Exactly one reader should get the copy"},
		},
		Duration:    window,
		BlastRadius: 0.1,
	}
}

// ShelvingOverflowExperiment shelves more copies than there are free slots,
// all at once.
func (l *Library) ShelvingOverflowExperiment(extra int, window time.Duration) Experiment {
	const bookID = "CHAOS-SHELF"
	var placed, expected atomic.Int64

	return Experiment{
		Name:       "shelving-overflow",
		Hypothesis: "Concurrent shelving beyond capacity fills every free slot exactly once and rejects the rest",
		SteadyState: []Metric{
			{Name: "storage_inconsistencies", Query: l.storageInconsistencies, Threshold: Threshold{Operator: "==", Value: 0}},
			{
				Name:      "unexpected_placements",
				Query:     func(ctx context.Context) (float64, error) { return float64(placed.Load() - expected.Load()), nil },
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:       "overflow",
				Target:     "storage",
				Parameters: map[string]interface{}{"extra": extra},
				Execute: func(ctx context.Context) error {
					err := l.Catalog.RegisterBook(ctx, book.Metadata{ID: bookID, Title: "Chaos Shelf Filler", Author: "Game Day"})
					if err != nil && !errors.Is(err, catalog.ErrDuplicateID) {
						return err
					}
					stats, err := l.Catalog.Stats(ctx)
					if err != nil {
						return err
					}
					expected.Store(int64(stats.Free))

					var (
						wg   sync.WaitGroup
						mu   sync.Mutex
						errs []error
					)
					batch := uuid.NewString()[:8]
					for i := 0; i < stats.Free+extra; i++ {
						wg.Add(1)
						go func(i int) {
							defer wg.Done()
							id := fmt.Sprintf("%s-%s-%d", bookID, batch, i)
							_, err := l.Catalog.RegisterCopy(ctx, book.Copy{ID: id, BookID: bookID})
							switch {
							case err == nil:
								placed.Add(1)
							case errors.Is(err, catalog.ErrNoCapacity):
							default:
								mu.Lock()
								errs = append(errs, err)
								mu.Unlock()
							}
						}(i)
					}
					wg.Wait()
					return errors.Join(errs...)
				},
			},
		},
		Validation: []Assertion{
			{Metric: "storage_inconsistencies", Condition: func(v float64) bool { return v == 0 }, Message: "Occupied slots should match indexed copies and never exceed capacity"},
			{Metric: "unexpected_placements", Condition: func(v float64) bool { return v == 0 }, Message: "Exactly the free slots should be filled"},
		},
		Duration:    window,
		BlastRadius: 1.0,
	}
}

// storageInconsistencies counts slots whose occupancy disagrees with the
// index, plus any occupancy beyond capacity.
func (l *Library) storageInconsistencies(ctx context.Context) (float64, error) {
	stats, err := l.Catalog.Stats(ctx)
	if err != nil {
		return 0, err
	}
	diff := stats.Occupied - stats.Copies
	if diff < 0 {
		diff = -diff
	}
	if over := stats.Occupied - stats.Capacity; over > 0 {
		diff += over
	}
	return float64(diff), nil
}

// lendingInconsistencies compares the copies' catalog status with the open
// loans: a copy loaned twice, a loan on a copy not marked loaned, or a copy
// marked loaned without a loan.
func (l *Library) lendingInconsistencies(copyIDs ...string) func(context.Context) (float64, error) {
	return func(ctx context.Context) (float64, error) {
		loans := make(map[string]int)
		for _, loan := range l.Circulation.ActiveLoans(ctx) {
			loans[loan.CopyID]++
		}

		bad := 0
		for _, id := range copyIDs {
			loc, err := l.Catalog.FindCopyByID(ctx, id)
			if err != nil {
				return 0, err
			}
			n := loans[id]
			if n > 1 {
				bad += n - 1
			}
			if loc == nil {
				bad += n
				continue
			}
			loaned := loc.Copy.Status == book.StatusLoaned
			if (n > 0) != loaned {
				bad++
			}
		}
		return float64(bad), nil
	}
}

func (l *Library) ensureCopy(ctx context.Context, bookID, copyID string) error {
	err := l.Catalog.RegisterBook(ctx, book.Metadata{ID: bookID, Title: "Chaos Drill " + bookID, Author: "Game Day"})
	if err != nil && !errors.Is(err, catalog.ErrDuplicateID) {
		return err
	}
	_, err = l.Catalog.RegisterCopy(ctx, book.Copy{ID: copyID, BookID: bookID})
	if err != nil && !errors.Is(err, catalog.ErrDuplicateID) {
		return err
	}
	return nil
}

func (l *Library) registerReaders(ctx context.Context, prefix string, n int) ([]uuid.UUID, error) {
	batch := uuid.NewString()[:8]
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		acc, err := l.Accounts.RegisterAccount(ctx,
			fmt.Sprintf("Chaos Reader %s %d", prefix, i), "",
			fmt.Sprintf("%s-%s-%d@chaos.local", prefix, batch, i),
		)
		if err != nil {
			return nil, fmt.Errorf("register chaos reader: %w", err)
		}
		ids = append(ids, acc.ID)
	}
	return ids, nil
}
