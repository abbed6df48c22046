// internal/journal/journal.go
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
	ErrEmptyAggregateID    = errors.New("aggregate id must not be empty")
	ErrInvalidBatchSize    = errors.New("batch size must be positive")
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is a domain event recorded against an aggregate
type Event struct {
	ID            int64                  `json:"id"`
	AggregateID   string                 `json:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type"`
	EventType     string                 `json:"event_type"`
	EventData     json.RawMessage        `json:"event_data"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NewEvent encodes payload as the event data of a new event
func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{EventType: eventType, EventData: data}, nil
}

// Decode unmarshals the event data into v
func (e Event) Decode(v interface{}) error {
	if err := codec.Unmarshal(e.EventData, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.EventType, err)
	}
	return nil
}

// Journal is an append-only, in-process event log with per-aggregate
// optimistic concurrency
type Journal struct {
	mu       sync.RWMutex
	events   []Event
	versions map[string]int
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates an empty journal
func New() *Journal {
	return &Journal{
		versions: make(map[string]int),
		tracer:   otel.Tracer("librastacks/journal"),
		now:      time.Now,
	}
}

// AppendEvents atomically appends events when the aggregate is still at expectedVersion
func (j *Journal) AppendEvents(ctx context.Context, aggregateID string, aggregateType string, expectedVersion int, events []Event) error {
	_, span := j.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if aggregateID == "" {
		return ErrEmptyAggregateID
	}
	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	currentVersion := j.versions[aggregateID]
	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	for _, event := range j.appendLocked(aggregateID, aggregateType, events) {
		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", event.ID),
			attribute.Int("event.version", event.Version),
			attribute.String("event.type", event.EventType),
		))
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// Record appends a single event at whatever version the aggregate has reached
func (j *Journal) Record(ctx context.Context, aggregateID, aggregateType, eventType string, payload interface{}) error {
	_, span := j.tracer.Start(ctx, "journal.record",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.String("event.type", eventType),
		),
	)
	defer span.End()

	if aggregateID == "" {
		return ErrEmptyAggregateID
	}
	event, err := NewEvent(eventType, payload)
	if err != nil {
		span.RecordError(err)
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.appendLocked(aggregateID, aggregateType, []Event{event})
	return nil
}

func (j *Journal) appendLocked(aggregateID, aggregateType string, events []Event) []Event {
	base := j.versions[aggregateID]
	appended := make([]Event, 0, len(events))
	for i, event := range events {
		event.ID = int64(len(j.events) + 1)
		event.AggregateID = aggregateID
		event.AggregateType = aggregateType
		event.Version = base + i + 1
		event.CreatedAt = j.now().UTC()
		j.events = append(j.events, event)
		appended = append(appended, event)
	}
	j.versions[aggregateID] = base + len(events)
	return appended
}

// LoadEvents retrieves the events of an aggregate; toVersion <= 0 means no upper bound
func (j *Journal) LoadEvents(ctx context.Context, aggregateID string, fromVersion, toVersion int) ([]Event, error) {
	_, span := j.tracer.Start(ctx, "journal.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	j.mu.RLock()
	defer j.mu.RUnlock()

	var events []Event
	for _, event := range j.events {
		if event.AggregateID != aggregateID || event.Version < fromVersion {
			continue
		}
		if toVersion > 0 && event.Version > toVersion {
			continue
		}
		events = append(events, event)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// GetCurrentVersion returns the latest version for an aggregate, 0 if unknown
func (j *Journal) GetCurrentVersion(ctx context.Context, aggregateID string) (int, error) {
	_, span := j.tracer.Start(ctx, "journal.get_version",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
		),
	)
	defer span.End()

	j.mu.RLock()
	version := j.versions[aggregateID]
	j.mu.RUnlock()

	span.SetAttributes(attribute.Int("current.version", version))
	return version, nil
}

// StreamEvents returns up to batchSize events with an ID greater than fromID
func (j *Journal) StreamEvents(ctx context.Context, fromID int64, batchSize int) ([]Event, error) {
	_, span := j.tracer.Start(ctx, "journal.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	if batchSize <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidBatchSize, batchSize)
	}
	if fromID < 0 {
		fromID = 0
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	// IDs are dense and 1-based, so fromID is also the slice offset.
	if fromID >= int64(len(j.events)) {
		return nil, nil
	}
	end := fromID + int64(batchSize)
	if end > int64(len(j.events)) {
		end = int64(len(j.events))
	}
	events := make([]Event, end-fromID)
	copy(events, j.events[fromID:end])

	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}
