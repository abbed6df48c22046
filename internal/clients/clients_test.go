// internal/clients/clients_test.go
package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librastacks/internal/book"
	"librastacks/internal/catalog"
	"librastacks/internal/circulation"
	"librastacks/internal/journal"
	"librastacks/internal/membership"
	"librastacks/internal/storage"
)

var (
	_ circulation.Catalog  = (*CatalogClient)(nil)
	_ circulation.Accounts = (*MembershipClient)(nil)
)

type remoteLibrary struct {
	catalog    catalog.Service
	membership membership.Service
	catalogURL string
	accountURL string
}

func startLibrary(t *testing.T) *remoteLibrary {
	t.Helper()
	ctx := context.Background()
	j := journal.New()

	cat := catalog.NewService(storage.NewRoot("", 1, 4), j)
	require.NoError(t, cat.RegisterBook(ctx, book.Metadata{ID: "B1", Title: "Мастер и Маргарита", Author: "Михаил Булгаков"}))
	_, err := cat.RegisterCopy(ctx, book.Copy{ID: "BI001", BookID: "B1"})
	require.NoError(t, err)

	members := membership.NewService(j)

	catRouter := chi.NewRouter()
	catalog.NewHandler(cat).Routes(catRouter)
	catSrv := httptest.NewServer(catRouter)
	t.Cleanup(catSrv.Close)

	memRouter := chi.NewRouter()
	membership.NewHandler(members).Routes(memRouter)
	memSrv := httptest.NewServer(memRouter)
	t.Cleanup(memSrv.Close)

	return &remoteLibrary{catalog: cat, membership: members, catalogURL: catSrv.URL, accountURL: memSrv.URL}
}

func TestCatalogClient(t *testing.T) {
	ctx := context.Background()
	lib := startLibrary(t)
	client := NewCatalogClient(lib.catalogURL)

	loc, err := client.FindAvailableCopy(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "BI001", loc.Copy.ID)
	assert.Equal(t, storage.Location("MainCabinet-Shelf-0-Slot-0"), loc.Location)

	require.NoError(t, client.UpdateCopyStatus(ctx, "BI001", book.StatusLoaned, "reader"))

	none, err := client.FindAvailableCopy(ctx, "B1")
	require.NoError(t, err)
	assert.Nil(t, none)

	byID, err := client.FindCopyByID(ctx, "BI001")
	require.NoError(t, err)
	assert.Equal(t, book.StatusLoaned, byID.Copy.Status)
	assert.Equal(t, "reader", byID.Copy.HolderAccountID)

	missing, err := client.FindCopyByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, client.UpdateCopyStatus(ctx, "nope", book.StatusAvailable, ""), catalog.ErrCopyNotFound)
	assert.ErrorIs(t, client.UpdateCopyStatus(ctx, "BI001", "lost", ""), catalog.ErrInvalidStatus)
}

func TestMembershipClient(t *testing.T) {
	ctx := context.Background()
	lib := startLibrary(t)
	client := NewMembershipClient(lib.accountURL)

	acc, err := lib.membership.RegisterAccount(ctx, "Анна Петрова", "+79161234567", "anna@mail.ru")
	require.NoError(t, err)

	got, err := client.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Анна Петрова", got.FullName)

	_, err = client.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, membership.ErrAccountNotFound)

	require.NoError(t, client.AddLoan(ctx, acc.ID, "BI001"))
	reservation := uuid.New()
	require.NoError(t, client.AddReservation(ctx, acc.ID, reservation))

	got, err = client.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"BI001"}, got.BooksOnHand)
	assert.Equal(t, []uuid.UUID{reservation}, got.CurrentReservations)

	require.NoError(t, client.RemoveLoan(ctx, acc.ID, "BI001"))
	assert.ErrorIs(t, client.RemoveLoan(ctx, acc.ID, "BI001"), membership.ErrNoOutstandingLoans)
	require.NoError(t, client.RemoveReservation(ctx, acc.ID, reservation))
	assert.ErrorIs(t, client.RemoveReservation(ctx, acc.ID, reservation), membership.ErrReservationNotFound)
	assert.ErrorIs(t, client.AddLoan(ctx, uuid.New(), "BI001"), membership.ErrAccountNotFound)
}

func TestCirculationOverHTTP(t *testing.T) {
	ctx := context.Background()
	lib := startLibrary(t)

	svc := circulation.NewService(
		NewCatalogClient(lib.catalogURL),
		NewMembershipClient(lib.accountURL),
		journal.New(),
	)

	anna, err := lib.membership.RegisterAccount(ctx, "Анна Петрова", "", "anna@mail.ru")
	require.NoError(t, err)
	sergey, err := lib.membership.RegisterAccount(ctx, "Сергей Иванов", "", "sergey@mail.ru")
	require.NoError(t, err)

	now := time.Now()
	loan, err := svc.IssueBook(ctx, anna.ID, "B1", now, now.Add(14*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "BI001", loan.CopyID)

	_, err = svc.IssueBook(ctx, sergey.ID, "B1", now, now.Add(14*24*time.Hour))
	assert.ErrorIs(t, err, circulation.ErrBookNotAvailable)

	_, err = svc.ReserveBook(ctx, sergey.ID, "B1")
	require.NoError(t, err)
	_, err = svc.ReturnBook(ctx, "BI001")
	require.NoError(t, err)

	held, err := lib.catalog.FindCopyByID(ctx, "BI001")
	require.NoError(t, err)
	assert.Equal(t, book.StatusReserved, held.Copy.Status)
	assert.Equal(t, sergey.ID.String(), held.Copy.HolderAccountID)

	acc, err := lib.membership.GetAccount(ctx, anna.ID)
	require.NoError(t, err)
	assert.Zero(t, acc.CurrentLoans)

	_, err = svc.IssueBook(ctx, uuid.New(), "B1", now, now.Add(time.Hour))
	assert.ErrorIs(t, err, circulation.ErrAccountNotFound)
}

func TestTransportRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	client := NewCatalogClient(srv.URL)
	require.NoError(t, client.UpdateCopyStatus(context.Background(), "BI001", book.StatusAvailable, ""))
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransportDoesNotRetryPost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewMembershipClient(srv.URL)
	err := client.AddLoan(context.Background(), uuid.New(), "BI001")
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransportDoesNotRepeatLoanRelease(t *testing.T) {
	ctx := context.Background()
	lib := startLibrary(t)
	acc, err := lib.membership.RegisterAccount(ctx, "Reader", "", "reader@mail.ru")
	require.NoError(t, err)
	require.NoError(t, lib.membership.AddLoan(ctx, acc.ID, "C1"))
	require.NoError(t, lib.membership.AddLoan(ctx, acc.ID, "C2"))

	memRouter := chi.NewRouter()
	membership.NewHandler(lib.membership).Routes(memRouter)
	var deletes atomic.Int32
	lossy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			memRouter.ServeHTTP(w, r)
			return
		}
		// Apply the release, then lose the response.
		deletes.Add(1)
		memRouter.ServeHTTP(httptest.NewRecorder(), r)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(lossy.Close)

	client := NewMembershipClient(lossy.URL)
	assert.ErrorIs(t, client.RemoveLoan(ctx, acc.ID, "C1"), ErrServerError)
	assert.Equal(t, int32(1), deletes.Load())

	got, err := lib.membership.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentLoans)
	assert.Equal(t, []string{"C2"}, got.BooksOnHand)
}

func TestTransportOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	client := NewCatalogClient(srv.URL, WithMaxTries(1))
	for i := 0; i < 5; i++ {
		_, err := client.FindCopyByID(ctx, "BI001")
		require.ErrorIs(t, err, ErrServerError)
	}

	_, err := client.FindCopyByID(ctx, "BI001")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "got %v", err)
	assert.Equal(t, int32(5), calls.Load())
}
