// cmd/demo/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"librastacks/internal/book"
	"librastacks/internal/catalog"
	"librastacks/internal/circulation"
	"librastacks/internal/journal"
	"librastacks/internal/membership"
	"librastacks/internal/notification"
	"librastacks/internal/storage"
)

func main() {
	if err := run(context.Background(), os.Stdout); err != nil {
		log.Fatalf("Demo failed: %v", err)
	}
}

// printNotifier shows reader notifications inline with the walkthrough.
type printNotifier struct {
	w io.Writer
}

func (p printNotifier) Notify(ctx context.Context, msg notification.Message) error {
	_, err := fmt.Fprintf(p.w, "  📨 to %s: %s (%s)\n", msg.AccountID, msg.Subject, msg.Body)
	return err
}

// run walks a small library through registration, shelving, search, lending,
// reservations and returns.
func run(ctx context.Context, w io.Writer) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	es := journal.New()
	cat := catalog.NewService(storage.NewRoot(storage.DefaultRootID, 2, 3), es, catalog.WithLogger(logger))
	accounts := membership.NewService(es, membership.WithLogger(logger))
	circ := circulation.NewService(cat, accounts, es,
		circulation.WithLogger(logger),
		circulation.WithNotifier(printNotifier{w: w}),
	)

	fmt.Fprintln(w, "📚 LibraStacks walkthrough")

	fmt.Fprintln(w, "\nStep 1: Register readers")
	anna, err := accounts.RegisterAccount(ctx, "Анна Петрова", "+79161234567", "anna@mail.ru")
	if err != nil {
		return err
	}
	sergey, err := accounts.RegisterAccount(ctx, "Сергей Иванов", "+79039876543", "sergey@mail.ru")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Reader 1: %s, ID: %s\n", anna.FullName, anna.ID)
	fmt.Fprintf(w, "  Reader 2: %s, ID: %s\n", sergey.FullName, sergey.ID)

	fmt.Fprintln(w, "\nStep 2: Build the catalog and shelve copies")
	books := []book.Metadata{
		{ID: "B001", Title: "Мастер и Маргарита", Author: "Михаил Булгаков", PublicationYear: 1967, Description: "Роман"},
		{ID: "B002", Title: "Преступление и наказание", Author: "Фёдор Достоевский", PublicationYear: 1866, Description: "Роман"},
		{ID: "B003", Title: "Война и мир", Author: "Лев Толстой", PublicationYear: 1869, Description: "Роман-эпопея"},
	}
	for _, b := range books {
		if err := cat.RegisterBook(ctx, b); err != nil {
			return err
		}
	}
	copies := []book.Copy{
		{ID: "BI001", BookID: "B001"},
		{ID: "BI002", BookID: "B001"},
		{ID: "BI003", BookID: "B002"},
		{ID: "BI004", BookID: "B003"},
	}
	for _, c := range copies {
		loc, err := cat.RegisterCopy(ctx, c)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s shelved at %s\n", c.ID, loc)
	}
	fmt.Fprintf(w, "  Titles: %d, copies: %d\n", len(books), len(copies))

	fmt.Fprintln(w, "\nStep 3: Search the catalog")
	for _, q := range []struct{ title, author string }{{"мастер", ""}, {"", "толстой"}} {
		found, err := cat.Search(ctx, q.title, q.author)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  title=%q author=%q:\n", q.title, q.author)
		for _, b := range found {
			fmt.Fprintf(w, "    Found: %s - %s (%d)\n", b.Title, b.Author, b.PublicationYear)
		}
	}
	all, err := cat.Search(ctx, "", "")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  All titles: %d\n", len(all))

	fmt.Fprintln(w, "\nStep 4: Scan a reader's QR card")
	scanned, err := accounts.ScanQRCode(ctx, anna.ID.String())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Account ID: %s, exists: %t\n", scanned, accounts.TryFindAccount(ctx, scanned))
	info, err := accounts.GetAccount(ctx, scanned)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Reader: %s, status: %s\n", info.FullName, info.Status)

	fmt.Fprintln(w, "\nStep 5: Check borrowing eligibility")
	canBorrow, err := circ.CanBorrowMore(ctx, anna.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Unpaid fines: %t, can borrow: %t\n", info.HasUnpaidFines(), canBorrow)

	fmt.Fprintln(w, "\nStep 6: Issue books")
	now := time.Now()
	for _, bookID := range []string{"B001", "B002"} {
		if loc, err := cat.FindAvailableCopy(ctx, bookID); err == nil && loc != nil {
			fmt.Fprintf(w, "  %s available at %s\n", bookID, loc.Location)
		}
		loan, err := circ.IssueBook(ctx, anna.ID, bookID, now, now.AddDate(0, 0, 14))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  Loan %s: copy %s due %s\n", loan.ID, loan.CopyID, loan.DueDate.Format("02.01.2006"))
	}
	info, err = accounts.GetAccount(ctx, anna.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Books on hand: %d\n", info.CurrentLoans)

	fmt.Fprintln(w, "\nStep 7: Reserve a book when every copy is out")
	_, err = circ.IssueBook(ctx, sergey.ID, "B002", now, now.AddDate(0, 0, 14))
	if !errors.Is(err, circulation.ErrBookNotAvailable) {
		return fmt.Errorf("expected B002 to be out, got %v", err)
	}
	fmt.Fprintln(w, "  All copies of B002 are out, offering a reservation")
	reservation, err := circ.ReserveBook(ctx, sergey.ID, "B002")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Reservation %s, position %d\n", reservation.ID, circ.ReservationPosition(ctx, "B002", sergey.ID))

	fmt.Fprintln(w, "\nStep 8: The reservation queue")
	var others []*membership.Account
	for i := 1; i <= 2; i++ {
		acc, err := accounts.RegisterAccount(ctx, fmt.Sprintf("Reader ACC00%d", i), "", fmt.Sprintf("acc00%d@mail.ru", i))
		if err != nil {
			return err
		}
		if _, err := circ.ReserveBook(ctx, acc.ID, "B002"); err != nil {
			return err
		}
		others = append(others, acc)
	}
	fmt.Fprintf(w, "  %s position %d\n", sergey.FullName, circ.ReservationPosition(ctx, "B002", sergey.ID))
	for _, acc := range others {
		fmt.Fprintf(w, "  %s position %d\n", acc.FullName, circ.ReservationPosition(ctx, "B002", acc.ID))
	}
	if _, err := circ.NotifyNextReader(ctx, "B002"); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nStep 9: Return a book")
	overdue, err := circ.CheckReturnBook(ctx, "BI003")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  BI003 overdue: %t\n", overdue)
	if _, err := circ.ReturnBook(ctx, "BI003"); err != nil {
		return err
	}
	held, err := cat.FindCopyByID(ctx, "BI003")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  BI003 is now %s for %s\n", held.Copy.Status, held.Copy.HolderAccountID)
	info, err = accounts.GetAccount(ctx, anna.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s has %d book(s) on hand\n", info.FullName, info.CurrentLoans)

	pickup, err := circ.IssueBook(ctx, sergey.ID, "B002", now, now.AddDate(0, 0, 21))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s picked up %s, due %s\n", sergey.FullName, pickup.CopyID, pickup.DueDate.Format("02.01.2006"))

	fmt.Fprintln(w, "\nStep 10: Storage")
	free, err := cat.FindFreeLocation(ctx)
	if err != nil {
		return err
	}
	if free == storage.NoLocation {
		fmt.Fprintln(w, "  No free slots")
	} else {
		fmt.Fprintf(w, "  Free slot found at %s\n", free)
	}
	stats, err := cat.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Slots: %d occupied of %d\n", stats.Occupied, stats.Capacity)

	fmt.Fprintln(w, "\n✅ Walkthrough complete")
	return nil
}
