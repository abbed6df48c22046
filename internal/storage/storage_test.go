// internal/storage/storage_test.go
package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"librastacks/internal/book"
)

func newCopy(id string, meta *book.Metadata) *book.Copy {
	c := &book.Copy{ID: id, Status: book.StatusAvailable, Book: meta}
	if meta != nil {
		c.BookID = meta.ID
	}
	return c
}

func TestSlotPlace(t *testing.T) {
	slot := NewSlot("s-0")

	free, ok := slot.FindFreeLocation()
	require.True(t, ok)
	assert.Same(t, slot, free)

	first := newCopy("c1", nil)
	require.True(t, slot.Place(first))
	assert.Equal(t, "s-0", first.Location)
	assert.Same(t, first, slot.Occupant())

	_, ok = slot.FindFreeLocation()
	assert.False(t, ok)

	second := newCopy("c2", nil)
	assert.False(t, slot.Place(second))
	assert.Empty(t, second.Location, "failed placement must not touch the copy")
	assert.Same(t, first, slot.Occupant())
}

func TestSlotSearch(t *testing.T) {
	meta := &book.Metadata{ID: "B1", Title: "Мастер и Маргарита", Author: "Михаил Булгаков"}
	slot := NewSlot("s-0")

	assert.Empty(t, slot.Search("", ""), "empty slot never matches")

	require.True(t, slot.Place(newCopy("c1", meta)))

	tests := []struct {
		name   string
		title  string
		author string
		match  bool
	}{
		{name: "no filters", match: true},
		{name: "title case-insensitive", title: "мастер", match: true},
		{name: "author substring", author: "БУЛГАК", match: true},
		{name: "both filters", title: "маргарита", author: "михаил", match: true},
		{name: "title miss", title: "война"},
		{name: "author miss", title: "мастер", author: "толстой"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slot.Search(tt.title, tt.author)
			if tt.match {
				require.Len(t, got, 1)
				assert.Equal(t, *meta, got[0])
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestSlotSearchSkipsUnlinkedCopies(t *testing.T) {
	slot := NewSlot("s-0")
	require.True(t, slot.Place(newCopy("c1", nil)))
	assert.Empty(t, slot.Search("", ""))
}

func TestCabinetTopology(t *testing.T) {
	root := NewRoot("", 3, 4)

	assert.Equal(t, DefaultRootID, root.ID())
	assert.Equal(t, 12, root.Capacity())
	assert.Equal(t, 0, root.Occupied())

	shelves := root.Children()
	require.Len(t, shelves, 3)
	assert.Equal(t, "MainCabinet-Shelf-1", shelves[1].ID())

	slots := shelves[1].Children()
	require.Len(t, slots, 4)
	assert.Equal(t, Location("MainCabinet-Shelf-1-Slot-2"), slots[2].Location())
}

func TestContainerPlacesLeftmostFirst(t *testing.T) {
	root := NewRoot("Hall", 2, 2)

	want := []string{
		"Hall-Shelf-0-Slot-0",
		"Hall-Shelf-0-Slot-1",
		"Hall-Shelf-1-Slot-0",
		"Hall-Shelf-1-Slot-1",
	}
	for i, loc := range want {
		c := newCopy(fmt.Sprintf("c%d", i), nil)
		require.True(t, root.Place(c))
		assert.Equal(t, loc, c.Location)
	}

	_, ok := root.FindFreeLocation()
	assert.False(t, ok)
	assert.False(t, root.Place(newCopy("overflow", nil)))
	assert.Equal(t, 4, root.Occupied())
}

func TestContainerSearchKeepsSlotOrder(t *testing.T) {
	war := &book.Metadata{ID: "B3", Title: "Война и мир", Author: "Лев Толстой"}
	anna := &book.Metadata{ID: "B4", Title: "Анна Каренина", Author: "Лев Толстой"}
	crime := &book.Metadata{ID: "B2", Title: "Преступление и наказание", Author: "Фёдор Достоевский"}

	root := NewRoot("", 2, 2)
	for i, meta := range []*book.Metadata{war, crime, anna, war} {
		require.True(t, root.Place(newCopy(fmt.Sprintf("c%d", i), meta)))
	}

	all := root.Search("", "")
	require.Len(t, all, 4)
	assert.Equal(t, []string{"B3", "B2", "B4", "B3"}, ids(all))

	tolstoy := root.Search("", "толстой")
	assert.Equal(t, []string{"B3", "B4", "B3"}, ids(tolstoy))

	assert.Empty(t, root.Search("чайка", ""))
}

func TestEachSlotVisitsInPlacementOrder(t *testing.T) {
	root := NewRoot("R", 2, 3)

	var visited []Location
	root.EachSlot(func(s *Slot) { visited = append(visited, s.Location()) })

	require.Len(t, visited, 6)
	assert.Equal(t, Location("R-Shelf-0-Slot-0"), visited[0])
	assert.Equal(t, Location("R-Shelf-1-Slot-2"), visited[5])
}

func TestCapacityInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		shelves := rapid.IntRange(0, 6).Draw(t, "shelves")
		slots := rapid.IntRange(0, 6).Draw(t, "slots")
		attempts := rapid.IntRange(0, 50).Draw(t, "attempts")

		root := NewRoot("", shelves, slots)
		placed := 0
		for i := 0; i < attempts; i++ {
			if root.Place(newCopy(fmt.Sprintf("c%d", i), nil)) {
				placed++
			}
		}

		capacity := shelves * slots
		expected := attempts
		if expected > capacity {
			expected = capacity
		}
		if placed != expected {
			t.Fatalf("placed %d copies, want %d (capacity %d)", placed, expected, capacity)
		}
		if root.Occupied() != placed {
			t.Fatalf("occupied %d, placed %d", root.Occupied(), placed)
		}
	})
}

func TestPlacementIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		shelves := rapid.IntRange(1, 5).Draw(t, "shelves")
		slots := rapid.IntRange(1, 5).Draw(t, "slots")
		n := rapid.IntRange(0, shelves*slots).Draw(t, "copies")

		a := NewRoot("", shelves, slots)
		b := NewRoot("", shelves, slots)
		for i := 0; i < n; i++ {
			ca := newCopy(fmt.Sprintf("c%d", i), nil)
			cb := newCopy(fmt.Sprintf("c%d", i), nil)
			a.Place(ca)
			b.Place(cb)
			if ca.Location != cb.Location {
				t.Fatalf("copy %d landed in %q and %q", i, ca.Location, cb.Location)
			}
		}
	})
}

func ids(metas []book.Metadata) []string {
	out := make([]string, 0, len(metas))
	for _, m := range metas {
		out = append(out, m.ID)
	}
	return out
}
