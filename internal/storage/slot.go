// internal/storage/slot.go
package storage

import (
	"strings"

	"librastacks/internal/book"
)

// Slot is the smallest storage unit and holds at most one copy.
type Slot struct {
	id       string
	occupant *book.Copy
}

func NewSlot(id string) *Slot {
	return &Slot{id: id}
}

func (s *Slot) ID() string { return s.id }

// Location returns the handle callers use to refer to this slot.
func (s *Slot) Location() Location { return Location(s.id) }

// Occupant returns the copy stored in the slot, or nil.
func (s *Slot) Occupant() *book.Copy { return s.occupant }

func (s *Slot) FindFreeLocation() (*Slot, bool) {
	if s.occupant != nil {
		return nil, false
	}
	return s, true
}

// Place stores the copy and records the slot on it. An occupied slot is left
// untouched.
func (s *Slot) Place(c *book.Copy) bool {
	if s.occupant != nil || c == nil {
		return false
	}
	s.occupant = c
	c.Location = s.id
	return true
}

// Search matches only occupants whose metadata is linked.
func (s *Slot) Search(title, author string) []book.Metadata {
	if s.occupant == nil || s.occupant.Book == nil {
		return nil
	}
	meta := s.occupant.Book
	if !containsFold(meta.Title, title) || !containsFold(meta.Author, author) {
		return nil
	}
	return []book.Metadata{*meta}
}

func (s *Slot) Capacity() int { return 1 }

func (s *Slot) Occupied() int {
	if s.occupant == nil {
		return 0
	}
	return 1
}

func (s *Slot) EachSlot(fn func(*Slot)) { fn(s) }

func containsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
