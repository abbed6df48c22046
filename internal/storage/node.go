// internal/storage/node.go

// Package storage models the physical hierarchy that holds book copies:
// slots grouped into shelves, shelves grouped into cabinets. Every level
// answers the same three questions (where is a free slot, place this copy,
// what matches this search) so callers never care how deep the tree is.
//
// Nodes are not safe for concurrent use; the owner serialises access.
package storage

import "librastacks/internal/book"

// Location identifies a single slot. It is an opaque handle for display and
// lookups; the zero value means "nowhere".
type Location string

// NoLocation is returned when the hierarchy has no free slot.
const NoLocation Location = ""

func (l Location) String() string {
	return string(l)
}

// Node is the capability set shared by slots and containers.
type Node interface {
	ID() string
	// FindFreeLocation returns the first free slot, depth-first and leftmost-first.
	FindFreeLocation() (*Slot, bool)
	// Place puts the copy into the first free slot of the subtree.
	Place(c *book.Copy) bool
	// Search returns the metadata of every occupant matching both filters.
	// An empty filter matches anything.
	Search(title, author string) []book.Metadata
	Capacity() int
	Occupied() int
	// EachSlot visits every slot of the subtree in placement order.
	EachSlot(fn func(*Slot))
}
