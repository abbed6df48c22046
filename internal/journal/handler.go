// internal/journal/handler.go
package journal

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type Handler struct {
	journal *Journal
}

func NewHandler(j *Journal) *Handler {
	return &Handler{journal: j}
}

// Routes mounts the event feed. GET /events?from=<id>&limit=<n> pages through
// the log in append order; clients pass the last id they saw as from.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/events", h.handleEvents)
	r.Get("/events/{aggregateID}", h.handleAggregate)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := intParam(q.Get("from"), 0)
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	limit, err := intParam(q.Get("limit"), defaultPageSize)
	if err != nil {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	events, err := h.journal.StreamEvents(r.Context(), int64(from), limit)
	if err != nil {
		if errors.Is(err, ErrInvalidBatchSize) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeEvents(w, events)
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	events, err := h.journal.LoadEvents(r.Context(), chi.URLParam(r, "aggregateID"), 0, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeEvents(w, events)
}

func writeEvents(w http.ResponseWriter, events []Event) {
	if events == nil {
		events = []Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	codec.NewEncoder(w).Encode(events)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
