package ledger

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/ledger-import/internal/logger"
)

// Changeset is the working copy of the ledger for one import batch.
// It is not safe for concurrent use.
type Changeset struct {
	ID string

	book    *Book
	txs     map[string]*Transaction
	order   []string
	created map[string]bool
	done    bool
}

// Account looks up an account by ID. Accounts are fixed for the life of a book.
func (c *Changeset) Account(id string) (*Account, bool) {
	return c.book.account(id)
}

// PlaceholderAccount returns the first account flagged as placeholder.
func (c *Changeset) PlaceholderAccount() (*Account, bool) {
	for _, id := range c.book.acctIDs {
		if a := c.book.accounts[id]; a.Placeholder {
			return a, true
		}
	}
	return nil, false
}

// CreateTransaction adds an empty transaction dated date.
func (c *Changeset) CreateTransaction(date civil.Date) *Transaction {
	t := NewTransaction(uuid.NewString(), date)
	c.txs[t.ID] = t
	c.order = append(c.order, t.ID)
	c.created[t.ID] = true
	return t
}

// Transaction looks up a live transaction by ID.
func (c *Changeset) Transaction(id string) (*Transaction, bool) {
	t, ok := c.txs[id]
	return t, ok
}

// Transactions returns the live transactions in insertion order.
func (c *Changeset) Transactions() []*Transaction {
	out := make([]*Transaction, 0, len(c.txs))
	for _, id := range c.order {
		if t, ok := c.txs[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// IsNew reports whether t was created in this changeset.
func (c *Changeset) IsNew(t *Transaction) bool {
	return t != nil && c.created[t.ID]
}

// DeleteTransaction removes t and all its entries.
func (c *Changeset) DeleteTransaction(t *Transaction) error {
	if t == nil {
		return fmt.Errorf("DeleteTransaction: nil transaction: %w", ErrNotFound)
	}
	cur, ok := c.txs[t.ID]
	if !ok || cur != t {
		return fmt.Errorf("DeleteTransaction: %s: %w", t.ID, ErrNotFound)
	}
	delete(c.txs, t.ID)
	delete(c.created, t.ID)
	return nil
}

// DeleteEntry removes e from its transaction. A transaction left without
// entries is dropped on commit.
func (c *Changeset) DeleteEntry(e *Entry) error {
	t := e.Transaction()
	if t == nil {
		return fmt.Errorf("DeleteEntry: %s: %w", e.ID, ErrEntryNotInLedger)
	}
	if cur, ok := c.txs[t.ID]; !ok || cur != t {
		return fmt.Errorf("DeleteEntry: %s: %w", e.ID, ErrEntryNotInLedger)
	}
	if !t.removeEntry(e) {
		return fmt.Errorf("DeleteEntry: %s: %w", e.ID, ErrEntryNotInLedger)
	}
	return nil
}

// EntriesFor returns every live entry posted to accountID, ordered by
// transaction date and then by insertion.
func (c *Changeset) EntriesFor(accountID string) []*Entry {
	var out []*Entry
	for _, t := range c.Transactions() {
		for _, e := range t.entries {
			if e.AccountID == accountID {
				out = append(out, e)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b *Entry) int {
		return compareDates(a.Date(), b.Date())
	})
	return out
}

// EntriesTagged returns every live entry whose field f equals value, in
// insertion order.
func (c *Changeset) EntriesTagged(f Field, value string) []*Entry {
	var out []*Entry
	for _, t := range c.Transactions() {
		for _, e := range t.entries {
			if v, ok := e.tags[f]; ok && v == value {
				out = append(out, e)
			}
		}
	}
	return out
}

// Changes diffs the working copy against the committed book.
func (c *Changeset) Changes() Changes {
	var ch Changes
	for _, t := range c.Transactions() {
		if t.Len() == 0 {
			continue
		}
		if c.created[t.ID] {
			ch.Created = append(ch.Created, t)
			continue
		}
		if orig, ok := c.book.txs[t.ID]; ok && !orig.equal(t) {
			ch.Updated = append(ch.Updated, t)
		}
	}
	for _, id := range c.book.order {
		t, ok := c.txs[id]
		if !ok || t.Len() == 0 {
			ch.Deleted = append(ch.Deleted, id)
		}
	}
	return ch
}

// Commit validates and persists the changeset, then makes it the book's
// committed state. Nothing is written when validation or the store fails, and
// the changeset stays open so the caller can Discard it.
func (c *Changeset) Commit(ctx context.Context) (Changes, error) {
	if c.done {
		return Changes{}, ErrChangesetClosed
	}
	ch := c.Changes()
	for _, t := range slices.Concat(ch.Created, ch.Updated) {
		if bal := t.Balance(); bal != 0 {
			return Changes{}, fmt.Errorf("Commit: transaction %s on %s off by %d: %w", t.ID, t.Date, bal, ErrUnbalanced)
		}
		for _, e := range t.entries {
			if _, ok := c.book.account(e.AccountID); !ok {
				return Changes{}, fmt.Errorf("Commit: entry %s account %q: %w", e.ID, e.AccountID, ErrUnknownAccount)
			}
		}
	}

	b := c.book
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.store != nil && !ch.Empty() {
		if err := b.store.Apply(ctx, ch); err != nil {
			return Changes{}, fmt.Errorf("Commit: applying changes: %w", err)
		}
	}
	b.publish(c)
	b.active = false
	c.done = true

	log := logger.FromContext(ctx)
	log.Debug().
		Str("changeset_id", c.ID).
		Int("created", len(ch.Created)).
		Int("updated", len(ch.Updated)).
		Int("deleted", len(ch.Deleted)).
		Msg("Changeset committed")
	return ch, nil
}

// Discard abandons the changeset. It is a no-op after Commit.
func (c *Changeset) Discard() {
	if c.done {
		return
	}
	c.done = true
	c.book.mu.Lock()
	c.book.active = false
	c.book.mu.Unlock()
}

func compareDates(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	}
	return 0
}
