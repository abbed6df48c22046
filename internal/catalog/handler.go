// internal/catalog/handler.go
package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"librastacks/internal/book"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the catalog API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/books", func(r chi.Router) {
		r.Post("/", h.handleRegisterBook)
		r.Get("/", h.handleListBooks)
		r.Get("/{id}", h.handleGetBook)
		r.Get("/{id}/available-copy", h.handleFindAvailableCopy)
	})
	r.Route("/copies", func(r chi.Router) {
		r.Post("/", h.handleRegisterCopy)
		r.Get("/{id}", h.handleGetCopy)
		r.Patch("/{id}/status", h.handleUpdateCopyStatus)
	})
	r.Get("/search", h.handleSearch)
	r.Get("/storage/free-location", h.handleFreeLocation)
	r.Get("/storage/stats", h.handleStats)
}

func (h *Handler) handleRegisterBook(w http.ResponseWriter, r *http.Request) {
	var req book.Metadata
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.RegisterBook(r.Context(), req); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req)
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.Books(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, books)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	meta, err := h.service.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if meta == nil {
		http.Error(w, "book not found", http.StatusNotFound)
		return
	}
	writeJSON(w, meta)
}

func (h *Handler) handleFindAvailableCopy(w http.ResponseWriter, r *http.Request) {
	loc, err := h.service.FindAvailableCopy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if loc == nil {
		http.Error(w, "no available copy", http.StatusNotFound)
		return
	}
	writeJSON(w, loc)
}

func (h *Handler) handleRegisterCopy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string      `json:"id"`
		BookID string      `json:"book_id"`
		Status book.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	location, err := h.service.RegisterCopy(r.Context(), book.Copy{
		ID:     req.ID,
		BookID: req.BookID,
		Status: req.Status,
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"id":       req.ID,
		"location": location.String(),
	})
}

func (h *Handler) handleGetCopy(w http.ResponseWriter, r *http.Request) {
	loc, err := h.service.FindCopyByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if loc == nil {
		http.Error(w, "copy not found", http.StatusNotFound)
		return
	}
	writeJSON(w, loc)
}

func (h *Handler) handleUpdateCopyStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status          book.Status `json:"status"`
		HolderAccountID string      `json:"holder_account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.service.UpdateCopyStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.HolderAccountID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := h.service.Search(r.Context(), q.Get("title"), q.Get("author"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []book.Metadata{}
	}
	writeJSON(w, results)
}

func (h *Handler) handleFreeLocation(w http.ResponseWriter, r *http.Request) {
	location, err := h.service.FindFreeLocation(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if location == "" {
		http.Error(w, ErrNoCapacity.Error(), http.StatusInsufficientStorage)
		return
	}
	writeJSON(w, map[string]string{"location": location.String()})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, ErrNoCapacity):
		return http.StatusInsufficientStorage
	case errors.Is(err, ErrUnknownBook), errors.Is(err, ErrInvalidStatus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCopyNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
