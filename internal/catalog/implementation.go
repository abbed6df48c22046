// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"librastacks/internal/book"
	"librastacks/internal/journal"
	"librastacks/internal/storage"
	"librastacks/internal/telemetry"
)

const instrumentationName = "librastacks/catalog"

// service implements the Service interface. One mutex guards the storage tree
// and both indexes; slots are never touched outside it.
type service struct {
	mu sync.Mutex

	root      *storage.Cabinet
	books     map[string]*book.Metadata
	bookOrder []string
	copies    []*book.Copy
	copyIndex map[string]int

	strictLinking bool

	journal *journal.Journal
	logger  *slog.Logger
	tracer  trace.Tracer

	placed   metric.Int64Counter
	rejected metric.Int64Counter
	searches metric.Int64Counter
}

// Option configures the catalog service.
type Option func(*service)

// WithStrictBookLinking rejects copies whose book is not registered instead of
// shelving them without metadata.
func WithStrictBookLinking(strict bool) Option {
	return func(s *service) { s.strictLinking = strict }
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

// NewService creates a catalog that owns root and records its changes in es.
func NewService(root *storage.Cabinet, es *journal.Journal, opts ...Option) Service {
	s := &service{
		root:      root,
		books:     make(map[string]*book.Metadata),
		copyIndex: make(map[string]int),
		journal:   es,
		logger:    slog.Default(),
		tracer:    otel.Tracer(instrumentationName),
	}
	s.initMetrics(otel.Meter(instrumentationName))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) initMetrics(meter metric.Meter) {
	s.placed = telemetry.Counter(meter, "catalog.copies.placed", "Copies placed into storage")
	s.rejected = telemetry.Counter(meter, "catalog.copies.rejected", "Copies refused by the catalog")
	s.searches = telemetry.Counter(meter, "catalog.searches", "Searches run against storage")
}

// RegisterBook adds a title. Ids are unique; a second registration is rejected.
func (s *service) RegisterBook(ctx context.Context, meta book.Metadata) error {
	ctx, span := s.tracer.Start(ctx, "catalog.register_book",
		trace.WithAttributes(attribute.String("book.id", meta.ID)),
	)
	defer span.End()

	if meta.ID == "" {
		return fmt.Errorf("book id is required: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.books[meta.ID]; exists {
		span.SetAttributes(attribute.Bool("duplicate", true))
		return fmt.Errorf("book %s: %w", meta.ID, ErrDuplicateID)
	}

	stored := meta
	s.books[meta.ID] = &stored
	s.bookOrder = append(s.bookOrder, meta.ID)

	s.record(ctx, meta.ID, aggregateBook, EventBookRegistered, BookRegisteredEvent{
		ID:     meta.ID,
		Title:  meta.Title,
		Author: meta.Author,
	})
	return nil
}

// RegisterCopy links the copy to its metadata and shelves it in the first free
// slot. A copy that cannot be placed is not indexed and the catalog is left as
// it was.
func (s *service) RegisterCopy(ctx context.Context, c book.Copy) (storage.Location, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.register_copy",
		trace.WithAttributes(
			attribute.String("copy.id", c.ID),
			attribute.String("book.id", c.BookID),
		),
	)
	defer span.End()

	if c.ID == "" {
		return storage.NoLocation, fmt.Errorf("copy id is required: %w", ErrInvalidInput)
	}
	status := c.Status
	if status == "" {
		status = book.StatusAvailable
	}
	if !status.Valid() {
		return storage.NoLocation, fmt.Errorf("copy %s status %q: %w", c.ID, c.Status, ErrInvalidStatus)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.copyIndex[c.ID]; exists {
		s.reject(ctx, "duplicate")
		return storage.NoLocation, fmt.Errorf("copy %s: %w", c.ID, ErrDuplicateID)
	}

	meta := s.books[c.BookID]
	if meta == nil {
		if s.strictLinking {
			s.reject(ctx, "unknown_book")
			return storage.NoLocation, fmt.Errorf("copy %s references %q: %w", c.ID, c.BookID, ErrUnknownBook)
		}
		s.logger.WarnContext(ctx, "shelving copy without metadata", "copy_id", c.ID, "book_id", c.BookID)
	}

	bc := &book.Copy{
		ID:              c.ID,
		BookID:          c.BookID,
		Status:          status,
		HolderAccountID: c.HolderAccountID,
		Book:            meta,
	}
	if !s.root.Place(bc) {
		s.reject(ctx, "no_capacity")
		s.logger.WarnContext(ctx, "no free slot for copy", "copy_id", c.ID, "book_id", c.BookID)
		return storage.NoLocation, fmt.Errorf("copy %s: %w", c.ID, ErrNoCapacity)
	}

	s.copyIndex[bc.ID] = len(s.copies)
	s.copies = append(s.copies, bc)
	s.placed.Add(ctx, 1)
	span.SetAttributes(attribute.String("copy.location", bc.Location))
	s.logger.DebugContext(ctx, "copy placed", "copy_id", bc.ID, "location", bc.Location)

	s.record(ctx, bc.ID, aggregateCopy, EventCopyPlaced, CopyPlacedEvent{
		CopyID:   bc.ID,
		BookID:   bc.BookID,
		Location: bc.Location,
		Linked:   meta != nil,
	})
	return storage.Location(bc.Location), nil
}

// Search returns one entry per occupied slot that matches, in slot order.
func (s *service) Search(ctx context.Context, title, author string) ([]book.Metadata, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.search",
		trace.WithAttributes(
			attribute.String("filter.title", title),
			attribute.String("filter.author", author),
		),
	)
	defer span.End()

	s.mu.Lock()
	result := s.root.Search(title, author)
	s.mu.Unlock()

	s.searches.Add(ctx, 1)
	span.SetAttributes(attribute.Int("result.count", len(result)))
	return result, nil
}

// FindAvailableCopy returns the earliest registered copy of the book that can be lent.
func (s *service) FindAvailableCopy(ctx context.Context, bookID string) (*CopyLocation, error) {
	_, span := s.tracer.Start(ctx, "catalog.find_available_copy",
		trace.WithAttributes(attribute.String("book.id", bookID)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.copies {
		if c.BookID == bookID && c.IsAvailable() {
			span.SetAttributes(attribute.String("copy.id", c.ID))
			return locationOf(c), nil
		}
	}
	return nil, nil
}

func (s *service) FindCopyByID(ctx context.Context, copyID string) (*CopyLocation, error) {
	_, span := s.tracer.Start(ctx, "catalog.find_copy",
		trace.WithAttributes(attribute.String("copy.id", copyID)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.copyIndex[copyID]
	if !ok {
		return nil, nil
	}
	return locationOf(s.copies[idx]), nil
}

// FindFreeLocation probes for capacity without placing anything.
func (s *service) FindFreeLocation(ctx context.Context) (storage.Location, error) {
	_, span := s.tracer.Start(ctx, "catalog.find_free_location")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.root.FindFreeLocation()
	if !ok {
		return storage.NoLocation, nil
	}
	return slot.Location(), nil
}

// UpdateCopyStatus changes a copy's lending state and holder.
func (s *service) UpdateCopyStatus(ctx context.Context, copyID string, status book.Status, holderAccountID string) error {
	ctx, span := s.tracer.Start(ctx, "catalog.update_copy_status",
		trace.WithAttributes(
			attribute.String("copy.id", copyID),
			attribute.String("copy.status", string(status)),
		),
	)
	defer span.End()

	if !status.Valid() {
		return fmt.Errorf("copy %s status %q: %w", copyID, status, ErrInvalidStatus)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.copyIndex[copyID]
	if !ok {
		return fmt.Errorf("copy %s: %w", copyID, ErrCopyNotFound)
	}

	c := s.copies[idx]
	from := c.Status
	c.Status = status
	c.HolderAccountID = holderAccountID

	s.record(ctx, c.ID, aggregateCopy, EventCopyStatusChange, CopyStatusChangedEvent{
		CopyID:          c.ID,
		From:            from,
		To:              status,
		HolderAccountID: holderAccountID,
	})
	return nil
}

func (s *service) GetBook(ctx context.Context, id string) (*book.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.books[id]
	if !ok {
		return nil, nil
	}
	out := *meta
	return &out, nil
}

// Books lists titles in registration order.
func (s *service) Books(ctx context.Context) ([]book.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]book.Metadata, 0, len(s.bookOrder))
	for _, id := range s.bookOrder {
		out = append(out, *s.books[id])
	}
	return out, nil
}

func (s *service) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := s.root.Capacity()
	occupied := s.root.Occupied()
	return Stats{
		Capacity: capacity,
		Occupied: occupied,
		Free:     capacity - occupied,
		Books:    len(s.books),
		Copies:   len(s.copies),
	}, nil
}

func (s *service) reject(ctx context.Context, reason string) {
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// record appends to the journal. The catalog state is authoritative, so a
// journal failure is logged rather than undoing the change.
func (s *service) record(ctx context.Context, aggregateID, aggregateType, eventType string, payload interface{}) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, aggregateID, aggregateType, eventType, payload); err != nil {
		s.logger.ErrorContext(ctx, "failed to record event", "event_type", eventType, "aggregate_id", aggregateID, "error", err)
	}
}

func locationOf(c *book.Copy) *CopyLocation {
	snapshot := *c
	snapshot.Book = nil
	loc := &CopyLocation{
		Location:  storage.Location(c.Location),
		Copy:      snapshot,
		Available: c.IsAvailable(),
	}
	if c.Book != nil {
		meta := *c.Book
		loc.Book = &meta
	}
	return loc
}
