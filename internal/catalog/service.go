// internal/catalog/service.go
package catalog

import (
	"context"

	"librastacks/internal/book"
	"librastacks/internal/storage"
)

// Service defines the interface for the catalog index.
//
// Lookups that find nothing return a nil result and a nil error.
type Service interface {
	RegisterBook(ctx context.Context, meta book.Metadata) error
	RegisterCopy(ctx context.Context, c book.Copy) (storage.Location, error)
	Search(ctx context.Context, title, author string) ([]book.Metadata, error)
	FindAvailableCopy(ctx context.Context, bookID string) (*CopyLocation, error)
	FindCopyByID(ctx context.Context, copyID string) (*CopyLocation, error)
	FindFreeLocation(ctx context.Context) (storage.Location, error)
	UpdateCopyStatus(ctx context.Context, copyID string, status book.Status, holderAccountID string) error
	GetBook(ctx context.Context, id string) (*book.Metadata, error)
	Books(ctx context.Context) ([]book.Metadata, error)
	Stats(ctx context.Context) (Stats, error)
}
