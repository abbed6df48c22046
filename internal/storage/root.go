// internal/storage/root.go
package storage

// DefaultRootID names the facility cabinet when none is configured.
const DefaultRootID = "MainCabinet"

// NewRoot builds the facility's top-level cabinet. Its shape never changes
// after construction.
func NewRoot(id string, shelves, slotsPerShelf int) *Cabinet {
	if id == "" {
		id = DefaultRootID
	}
	return NewCabinet(id, shelves, slotsPerShelf)
}
