// internal/catalog/catalog_test.go
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"librastacks/internal/book"
	"librastacks/internal/journal"
	"librastacks/internal/storage"
)

func newTestCatalog(t testing.TB, shelves, slots int, opts ...Option) (Service, *journal.Journal) {
	t.Helper()
	j := journal.New()
	return NewService(storage.NewRoot("", shelves, slots), j, opts...), j
}

func registerBooks(t testing.TB, svc Service, metas ...book.Metadata) {
	t.Helper()
	for _, m := range metas {
		require.NoError(t, svc.RegisterBook(context.Background(), m))
	}
}

var (
	b1 = book.Metadata{ID: "B1", Title: "Мастер и Маргарита", Author: "Михаил Булгаков", PublicationYear: 1967}
	b2 = book.Metadata{ID: "B2", Title: "Преступление и наказание", Author: "Фёдор Достоевский", PublicationYear: 1866}
)

func TestCatalogScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestCatalog(t, 2, 2)
	registerBooks(t, svc, b1, b2)

	want := []struct {
		copyID   string
		bookID   string
		location storage.Location
	}{
		{"C1", "B1", "MainCabinet-Shelf-0-Slot-0"},
		{"C2", "B1", "MainCabinet-Shelf-0-Slot-1"},
		{"C3", "B2", "MainCabinet-Shelf-1-Slot-0"},
		{"C4", "B1", "MainCabinet-Shelf-1-Slot-1"},
	}
	for _, w := range want {
		loc, err := svc.RegisterCopy(ctx, book.Copy{ID: w.copyID, BookID: w.bookID, Status: book.StatusAvailable})
		require.NoError(t, err, w.copyID)
		assert.Equal(t, w.location, loc, w.copyID)
	}

	loc, err := svc.RegisterCopy(ctx, book.Copy{ID: "C5", BookID: "B2", Status: book.StatusAvailable})
	require.ErrorIs(t, err, ErrNoCapacity)
	assert.Equal(t, storage.NoLocation, loc)

	missing, err := svc.FindCopyByID(ctx, "C5")
	require.NoError(t, err)
	assert.Nil(t, missing, "rejected copy must not be indexed")

	all, err := svc.Search(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	available, err := svc.FindAvailableCopy(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, available)
	assert.Equal(t, "C1", available.Copy.ID)
	assert.Equal(t, storage.Location("MainCabinet-Shelf-0-Slot-0"), available.Location)
	assert.True(t, available.Available)
	require.NotNil(t, available.Book)
	assert.Equal(t, b1.Title, available.Book.Title)

	free, err := svc.FindFreeLocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.NoLocation, free)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Capacity: 4, Occupied: 4, Free: 0, Books: 2, Copies: 4}, stats)
}

func TestSearchFilters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestCatalog(t, 2, 3)
	registerBooks(t, svc, b1, b2)

	for i, bookID := range []string{"B1", "B2", "B1"} {
		_, err := svc.RegisterCopy(ctx, book.Copy{ID: fmt.Sprintf("C%d", i+1), BookID: bookID})
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		title  string
		author string
		want   []string
	}{
		{name: "by title", title: "мастер", want: []string{"B1", "B1"}},
		{name: "by author", author: "ДОСТОЕВ", want: []string{"B2"}},
		{name: "both must match", title: "мастер", author: "Достоевский"},
		{name: "no match", title: "Идиот"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := svc.Search(ctx, tt.title, tt.author)
			require.NoError(t, err)
			var got []string
			for _, r := range results {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAvailabilityFollowsStatus(t *testing.T) {
	ctx := context.Background()
	svc, j := newTestCatalog(t, 1, 2)
	registerBooks(t, svc, b1)

	_, err := svc.RegisterCopy(ctx, book.Copy{ID: "C1", BookID: "B1"})
	require.NoError(t, err)
	_, err = svc.RegisterCopy(ctx, book.Copy{ID: "C2", BookID: "B1"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateCopyStatus(ctx, "C1", book.StatusLoaned, "reader-1"))

	next, err := svc.FindAvailableCopy(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "C2", next.Copy.ID)

	require.NoError(t, svc.UpdateCopyStatus(ctx, "C2", book.StatusReserved, "reader-2"))
	none, err := svc.FindAvailableCopy(ctx, "B1")
	require.NoError(t, err)
	assert.Nil(t, none)

	lent, err := svc.FindCopyByID(ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, lent)
	assert.False(t, lent.Available)
	assert.Equal(t, "reader-1", lent.Copy.HolderAccountID)

	require.NoError(t, svc.UpdateCopyStatus(ctx, "C1", book.StatusAvailable, ""))
	back, err := svc.FindAvailableCopy(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.Equal(t, "C1", back.Copy.ID)

	err = svc.UpdateCopyStatus(ctx, "C9", book.StatusLoaned, "x")
	assert.ErrorIs(t, err, ErrCopyNotFound)
	err = svc.UpdateCopyStatus(ctx, "C1", book.Status("lost"), "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	events, err := j.LoadEvents(ctx, "C1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventCopyPlaced, events[0].EventType)

	var change CopyStatusChangedEvent
	require.NoError(t, events[1].Decode(&change))
	assert.Equal(t, book.StatusAvailable, change.From)
	assert.Equal(t, book.StatusLoaned, change.To)
	assert.Equal(t, "reader-1", change.HolderAccountID)
}

func TestLookupReturnsSnapshots(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestCatalog(t, 1, 1)
	registerBooks(t, svc, b1)

	_, err := svc.RegisterCopy(ctx, book.Copy{ID: "C1", BookID: "B1"})
	require.NoError(t, err)

	first, err := svc.FindCopyByID(ctx, "C1")
	require.NoError(t, err)
	first.Copy.Status = book.StatusLoaned
	first.Book.Title = "changed"

	second, err := svc.FindCopyByID(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, book.StatusAvailable, second.Copy.Status)
	assert.Equal(t, b1.Title, second.Book.Title)

	meta, err := svc.GetBook(ctx, "B1")
	require.NoError(t, err)
	meta.Author = "changed"
	again, err := svc.GetBook(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, b1.Author, again.Author)

	unknown, err := svc.GetBook(ctx, "B404")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestUnknownBookLinking(t *testing.T) {
	ctx := context.Background()

	t.Run("soft policy shelves without metadata", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))
		svc, _ := newTestCatalog(t, 1, 2, WithLogger(logger))

		loc, err := svc.RegisterCopy(ctx, book.Copy{ID: "C1", BookID: "ghost"})
		require.NoError(t, err)
		assert.Equal(t, storage.Location("MainCabinet-Shelf-0-Slot-0"), loc)
		assert.Contains(t, logs.String(), "shelving copy without metadata")

		results, err := svc.Search(ctx, "", "")
		require.NoError(t, err)
		assert.Empty(t, results, "unlinked copies are invisible to search")

		found, err := svc.FindCopyByID(ctx, "C1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Nil(t, found.Book)
	})

	t.Run("strict policy rejects before placing", func(t *testing.T) {
		svc, _ := newTestCatalog(t, 1, 2, WithStrictBookLinking(true))

		_, err := svc.RegisterCopy(ctx, book.Copy{ID: "C1", BookID: "ghost"})
		require.ErrorIs(t, err, ErrUnknownBook)

		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Occupied)
		assert.Equal(t, 0, stats.Copies)
	})
}

func TestDuplicateIDsAreRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestCatalog(t, 1, 3)
	registerBooks(t, svc, b1)

	err := svc.RegisterBook(ctx, book.Metadata{ID: "B1", Title: "other"})
	require.ErrorIs(t, err, ErrDuplicateID)
	meta, err := svc.GetBook(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, b1.Title, meta.Title)

	_, err = svc.RegisterCopy(ctx, book.Copy{ID: "C1", BookID: "B1"})
	require.NoError(t, err)
	_, err = svc.RegisterCopy(ctx, book.Copy{ID: "C1", BookID: "B1"})
	require.ErrorIs(t, err, ErrDuplicateID)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Occupied)
}

func TestInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestCatalog(t, 1, 1)

	assert.ErrorIs(t, svc.RegisterBook(ctx, book.Metadata{Title: "no id"}), ErrInvalidInput)

	_, err := svc.RegisterCopy(ctx, book.Copy{BookID: "B1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.RegisterCopy(ctx, book.Copy{ID: "C1", Status: book.Status("burned")})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	free, err := svc.FindFreeLocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Location("MainCabinet-Shelf-0-Slot-0"), free)
}

func TestBooksKeepRegistrationOrder(t *testing.T) {
	svc, _ := newTestCatalog(t, 1, 1)
	registerBooks(t, svc, b2, b1)

	books, err := svc.Books(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "B2", books[0].ID)
	assert.Equal(t, "B1", books[1].ID)
}

// Every successfully registered copy can be looked up at the location it was
// given, and the number of placed copies never exceeds capacity.
func TestRegisteredCopiesRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		shelves := rapid.IntRange(1, 4).Draw(t, "shelves")
		slots := rapid.IntRange(1, 4).Draw(t, "slots")
		attempts := rapid.IntRange(0, 20).Draw(t, "attempts")

		svc := NewService(storage.NewRoot("", shelves, slots), nil)
		require.NoError(t, svc.RegisterBook(ctx, b1))

		placed := map[string]storage.Location{}
		seen := map[storage.Location]bool{}
		for i := 0; i < attempts; i++ {
			id := fmt.Sprintf("C%d", i)
			loc, err := svc.RegisterCopy(ctx, book.Copy{ID: id, BookID: "B1"})
			if len(placed) < shelves*slots {
				require.NoError(t, err)
				require.False(t, seen[loc], "location %s handed out twice", loc)
				seen[loc] = true
				placed[id] = loc
			} else {
				require.ErrorIs(t, err, ErrNoCapacity)
			}
		}

		for id, loc := range placed {
			found, err := svc.FindCopyByID(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, found)
			require.Equal(t, loc, found.Location)
		}

		results, err := svc.Search(ctx, "", "")
		require.NoError(t, err)
		require.Len(t, results, len(placed))
	})
}

func TestOperationsAreTraced(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	svc, _ := newTestCatalog(t, 1, 1, WithTracerProvider(tp))
	registerBooks(t, svc, b1)
	_, err := svc.RegisterCopy(ctx, book.Copy{ID: "C1", BookID: "B1"})
	require.NoError(t, err)
	_, err = svc.Search(ctx, "мастер", "")
	require.NoError(t, err)

	spans := exporter.GetSpans()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"catalog.register_book", "catalog.register_copy", "catalog.search"}, names)

	var location string
	for _, kv := range spans[1].Attributes {
		if kv.Key == "copy.location" {
			location = kv.Value.AsString()
		}
	}
	assert.Equal(t, "MainCabinet-Shelf-0-Slot-0", location)
}

func TestPlacementMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	svc, _ := newTestCatalog(t, 1, 1, WithMeterProvider(mp))
	registerBooks(t, svc, b1)
	_, err := svc.RegisterCopy(ctx, book.Copy{ID: "C1", BookID: "B1"})
	require.NoError(t, err)
	_, err = svc.RegisterCopy(ctx, book.Copy{ID: "C2", BookID: "B1"})
	require.ErrorIs(t, err, ErrNoCapacity)
	_, err = svc.RegisterCopy(ctx, book.Copy{ID: "C1", BookID: "B1"})
	require.ErrorIs(t, err, ErrDuplicateID)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(1), counterTotal(t, rm, "catalog.copies.placed"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "catalog.copies.rejected", attribute.String("reason", "no_capacity")))
	assert.Equal(t, int64(1), counterTotal(t, rm, "catalog.copies.rejected", attribute.String("reason", "duplicate")))
}

// counterTotal sums the named counter's data points, restricted to attrs when given.
func counterTotal(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	want := attribute.NewSet(attrs...)
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if len(attrs) == 0 || dp.Attributes.Equals(&want) {
					total += dp.Value
				}
			}
		}
	}
	return total
}
