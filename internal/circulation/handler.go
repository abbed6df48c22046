// internal/circulation/handler.go
package circulation

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service    Service
	loanPeriod time.Duration
	now        func() time.Time
}

// NewHandler serves the lending API. Loans requested without dates run from
// now for loanPeriod.
func NewHandler(service Service, loanPeriod time.Duration) *Handler {
	return &Handler{service: service, loanPeriod: loanPeriod, now: time.Now}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/loans", h.handleActiveLoans)
	r.Post("/loans", h.handleIssue)
	r.Post("/returns", h.handleReturn)
	r.Get("/returns/{copyID}/overdue", h.handleCheckReturn)
	r.Get("/accounts/{id}/can-borrow", h.handleCanBorrow)
	r.Post("/reservations", h.handleReserve)
	r.Delete("/reservations/{id}", h.handleCancelReservation)
	r.Get("/reservations/position", h.handlePosition)
	r.Post("/reservations/{bookID}/notify", h.handleNotifyNext)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID uuid.UUID  `json:"account_id"`
		BookID    string     `json:"book_id"`
		IssueDate *time.Time `json:"issue_date"`
		DueDate   *time.Time `json:"due_date"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	issue := h.now()
	if req.IssueDate != nil {
		issue = *req.IssueDate
	}
	due := issue.Add(h.loanPeriod)
	if req.DueDate != nil {
		due = *req.DueDate
	}

	loan, err := h.service.IssueBook(r.Context(), req.AccountID, req.BookID, issue, due)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CopyID string `json:"copy_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := h.service.ReturnBook(r.Context(), req.CopyID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, loan)
}

func (h *Handler) handleCheckReturn(w http.ResponseWriter, r *http.Request) {
	overdue, err := h.service.CheckReturnBook(r.Context(), chi.URLParam(r, "copyID"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]bool{"overdue": overdue})
}

func (h *Handler) handleActiveLoans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.service.ActiveLoans(r.Context()))
}

func (h *Handler) handleCanBorrow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid account ID", http.StatusBadRequest)
		return
	}

	ok, err := h.service.CanBorrowMore(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]bool{"can_borrow": ok})
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID uuid.UUID `json:"account_id"`
		BookID    string    `json:"book_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reservation, err := h.service.ReserveBook(r.Context(), req.AccountID, req.BookID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(reservation)
}

func (h *Handler) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid reservation ID", http.StatusBadRequest)
		return
	}

	if err := h.service.CancelReservation(r.Context(), id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePosition(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(r.URL.Query().Get("account_id"))
	if err != nil {
		http.Error(w, "invalid account ID", http.StatusBadRequest)
		return
	}

	pos := h.service.ReservationPosition(r.Context(), r.URL.Query().Get("book_id"), accountID)
	writeJSON(w, map[string]int{"position": pos})
}

func (h *Handler) handleNotifyNext(w http.ResponseWriter, r *http.Request) {
	next, err := h.service.NotifyNextReader(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if next == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, next)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrLoanNotFound), errors.Is(err, ErrReservationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCannotBorrow):
		return http.StatusForbidden
	case errors.Is(err, ErrBookNotAvailable), errors.Is(err, ErrAlreadyReserved), errors.Is(err, ErrReservationNotActive):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidDates):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
