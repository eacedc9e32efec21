package ledger

import (
	"slices"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Transaction is a dated set of entries that must balance to zero on commit.
type Transaction struct {
	ID   string
	Date civil.Date

	entries []*Entry
}

// NewTransaction builds a detached transaction, used by stores when restoring
// a ledger. Importers create transactions through a Changeset.
func NewTransaction(id string, date civil.Date) *Transaction {
	return &Transaction{ID: id, Date: date}
}

// CreateEntry appends an empty entry with a fresh ID.
func (t *Transaction) CreateEntry() *Entry {
	e := &Entry{ID: uuid.NewString(), tx: t}
	t.entries = append(t.entries, e)
	return e
}

// AddEntry attaches an entry built with NewEntry.
func (t *Transaction) AddEntry(e *Entry) {
	e.tx = t
	t.entries = append(t.entries, e)
}

// Entries returns the entries in insertion order.
func (t *Transaction) Entries() []*Entry {
	return slices.Clone(t.entries)
}

// Len is the number of entries.
func (t *Transaction) Len() int { return len(t.entries) }

// Balance is the sum of all entry amounts.
func (t *Transaction) Balance() int64 {
	var sum int64
	for _, e := range t.entries {
		sum += e.Amount
	}
	return sum
}

// IsSplit reports whether the transaction has more than two entries.
func (t *Transaction) IsSplit() bool { return len(t.entries) > 2 }

// Other returns the opposite entry of a simple two-entry transaction, or nil.
func (t *Transaction) Other(e *Entry) *Entry {
	if len(t.entries) != 2 {
		return nil
	}
	switch e {
	case t.entries[0]:
		return t.entries[1]
	case t.entries[1]:
		return t.entries[0]
	}
	return nil
}

func (t *Transaction) removeEntry(e *Entry) bool {
	i := slices.Index(t.entries, e)
	if i < 0 {
		return false
	}
	t.entries = slices.Delete(t.entries, i, i+1)
	e.tx = nil
	return true
}

// Clone deep-copies the transaction and its entries.
func (t *Transaction) Clone() *Transaction {
	c := &Transaction{ID: t.ID, Date: t.Date, entries: make([]*Entry, len(t.entries))}
	for i, e := range t.entries {
		c.entries[i] = e.clone(c)
	}
	return c
}

func (t *Transaction) equal(o *Transaction) bool {
	if t.ID != o.ID || t.Date != o.Date || len(t.entries) != len(o.entries) {
		return false
	}
	for i := range t.entries {
		if !t.entries[i].equal(o.entries[i]) {
			return false
		}
	}
	return true
}
