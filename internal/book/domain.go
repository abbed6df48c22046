// internal/book/domain.go
package book

// Status is the lending state of a physical copy.
type Status string

const (
	StatusAvailable Status = "available"
	StatusLoaned    Status = "loaned"
	// StatusReserved marks a copy held at the desk for a reader's pickup.
	StatusReserved Status = "reserved"
)

// Valid reports whether s is one of the known copy statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusLoaned, StatusReserved:
		return true
	}
	return false
}

// Metadata describes a title shared by all of its copies.
type Metadata struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationYear int    `json:"publication_year,omitempty"`
	Description     string `json:"description,omitempty"`
}

// Copy is one physical instance of a book.
type Copy struct {
	ID              string    `json:"id"`
	BookID          string    `json:"book_id"`
	Status          Status    `json:"status"`
	Location        string    `json:"location,omitempty"`
	HolderAccountID string    `json:"holder_account_id,omitempty"`
	Book            *Metadata `json:"-"`
}

// IsAvailable reports whether the copy can be handed to a reader.
func (c *Copy) IsAvailable() bool {
	return c.Status == StatusAvailable && c.HolderAccountID == ""
}

// Placed reports whether the copy sits in a storage slot.
func (c *Copy) Placed() bool {
	return c.Location != ""
}
