// internal/catalog/domain.go
package catalog

import (
	"librastacks/internal/book"
	"librastacks/internal/storage"
)

// CopyLocation tells a caller where a copy sits and whether it can be lent.
type CopyLocation struct {
	Location  storage.Location `json:"location"`
	Copy      book.Copy        `json:"copy"`
	Book      *book.Metadata   `json:"book,omitempty"`
	Available bool             `json:"available"`
}

// Stats summarises storage usage and index size.
type Stats struct {
	Capacity int `json:"capacity"`
	Occupied int `json:"occupied"`
	Free     int `json:"free"`
	Books    int `json:"books"`
	Copies   int `json:"copies"`
}

const (
	aggregateBook = "book"
	aggregateCopy = "copy"

	EventBookRegistered   = "BookRegistered"
	EventCopyPlaced       = "CopyPlaced"
	EventCopyStatusChange = "CopyStatusChanged"
)

// BookRegisteredEvent is recorded when a title enters the catalog.
type BookRegisteredEvent struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// CopyPlacedEvent is recorded when a copy lands in a slot.
type CopyPlacedEvent struct {
	CopyID   string `json:"copy_id"`
	BookID   string `json:"book_id"`
	Location string `json:"location"`
	Linked   bool   `json:"linked"`
}

// CopyStatusChangedEvent is recorded whenever a copy's lending state changes.
type CopyStatusChangedEvent struct {
	CopyID          string      `json:"copy_id"`
	From            book.Status `json:"from"`
	To              book.Status `json:"to"`
	HolderAccountID string      `json:"holder_account_id,omitempty"`
}
