// internal/storage/container.go
package storage

import (
	"fmt"

	"librastacks/internal/book"
)

// Container aggregates child nodes of a single kind. Children are fixed at
// construction and their order decides placement and search order.
type Container[C Node] struct {
	id       string
	children []C
}

// Shelf is a row of slots.
type Shelf = Container[*Slot]

// Cabinet is a stack of shelves.
type Cabinet = Container[*Shelf]

// NewContainer builds a container over the given children.
func NewContainer[C Node](id string, children ...C) *Container[C] {
	return &Container[C]{id: id, children: children}
}

// NewShelf creates a shelf with slotCount empty slots named <id>-Slot-<n>.
func NewShelf(id string, slotCount int) *Shelf {
	slots := make([]*Slot, 0, slotCount)
	for i := 0; i < slotCount; i++ {
		slots = append(slots, NewSlot(fmt.Sprintf("%s-Slot-%d", id, i)))
	}
	return NewContainer(id, slots...)
}

// NewCabinet creates a cabinet of shelfCount shelves, each with slotsPerShelf slots.
func NewCabinet(id string, shelfCount, slotsPerShelf int) *Cabinet {
	shelves := make([]*Shelf, 0, shelfCount)
	for i := 0; i < shelfCount; i++ {
		shelves = append(shelves, NewShelf(fmt.Sprintf("%s-Shelf-%d", id, i), slotsPerShelf))
	}
	return NewContainer(id, shelves...)
}

func (c *Container[C]) ID() string { return c.id }

// Children returns the child nodes in placement order.
func (c *Container[C]) Children() []C {
	out := make([]C, len(c.children))
	copy(out, c.children)
	return out
}

func (c *Container[C]) FindFreeLocation() (*Slot, bool) {
	for _, child := range c.children {
		if slot, ok := child.FindFreeLocation(); ok {
			return slot, true
		}
	}
	return nil, false
}

// Place rescans the subtree for the first free slot on every call.
func (c *Container[C]) Place(bc *book.Copy) bool {
	slot, ok := c.FindFreeLocation()
	if !ok {
		return false
	}
	return slot.Place(bc)
}

func (c *Container[C]) Search(title, author string) []book.Metadata {
	var result []book.Metadata
	for _, child := range c.children {
		result = append(result, child.Search(title, author)...)
	}
	return result
}

func (c *Container[C]) Capacity() int {
	total := 0
	for _, child := range c.children {
		total += child.Capacity()
	}
	return total
}

func (c *Container[C]) Occupied() int {
	total := 0
	for _, child := range c.children {
		total += child.Occupied()
	}
	return total
}

func (c *Container[C]) EachSlot(fn func(*Slot)) {
	for _, child := range c.children {
		child.EachSlot(fn)
	}
}
