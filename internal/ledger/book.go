// Package ledger is the in-process double-entry book importers write into.
//
// The committed state lives in a Book. Every import batch works on a
// Changeset, a private copy of the book that is either committed as one
// atomic unit or discarded without trace.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-import/internal/logger"
)

// Book holds the committed ledger and serialises import batches.
type Book struct {
	mu       sync.Mutex
	store    Store
	accounts map[string]*Account
	acctIDs  []string
	txs      map[string]*Transaction
	order    []string
	active   bool
}

// Open loads the ledger from store.
func Open(ctx context.Context, store Store) (*Book, error) {
	accounts, txs, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("Open: loading ledger: %w", err)
	}
	b := NewBook(store, accounts, txs)
	log := logger.FromContext(ctx)
	log.Debug().
		Int("accounts", len(accounts)).
		Int("transactions", len(txs)).
		Msg("Ledger opened")
	return b, nil
}

// NewBook builds a book from already-loaded state. A nil store keeps the
// book purely in memory.
func NewBook(store Store, accounts []*Account, txs []*Transaction) *Book {
	b := &Book{
		store:    store,
		accounts: make(map[string]*Account, len(accounts)),
		txs:      make(map[string]*Transaction, len(txs)),
	}
	for _, a := range accounts {
		acct := *a
		if _, dup := b.accounts[a.ID]; !dup {
			b.acctIDs = append(b.acctIDs, a.ID)
		}
		b.accounts[a.ID] = &acct
	}
	for _, t := range txs {
		if _, dup := b.txs[t.ID]; !dup {
			b.order = append(b.order, t.ID)
		}
		b.txs[t.ID] = t.Clone()
	}
	return b
}

// Account looks up an account by ID.
func (b *Book) Account(id string) (*Account, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accounts[id]
	if !ok {
		return nil, false
	}
	acct := *a
	return &acct, true
}

// Accounts returns all accounts in load order.
func (b *Book) Accounts() []*Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Account, 0, len(b.acctIDs))
	for _, id := range b.acctIDs {
		acct := *b.accounts[id]
		out = append(out, &acct)
	}
	return out
}

// Transactions returns copies of the committed transactions in insertion order.
func (b *Book) Transactions() []*Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Transaction, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.txs[id].Clone())
	}
	return out
}

// EntriesFor returns copies of the committed entries posted to accountID,
// ordered by transaction date and then by insertion. Each entry's
// Transaction is a copy too.
func (b *Book) EntriesFor(accountID string) []*Entry {
	var out []*Entry
	for _, t := range b.Transactions() {
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

// Begin opens the single changeset allowed at a time. It fails with
// ErrBatchInProgress while another changeset is neither committed nor
// discarded.
func (b *Book) Begin() (*Changeset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return nil, ErrBatchInProgress
	}
	b.active = true

	cs := &Changeset{
		ID:      uuid.NewString(),
		book:    b,
		txs:     make(map[string]*Transaction, len(b.txs)),
		order:   make([]string, 0, len(b.order)),
		created: make(map[string]bool),
	}
	for _, id := range b.order {
		cs.txs[id] = b.txs[id].Clone()
		cs.order = append(cs.order, id)
	}
	return cs, nil
}

func (b *Book) account(id string) (*Account, bool) {
	a, ok := b.accounts[id]
	return a, ok
}

// publish swaps in the changeset's state. Caller holds b.mu.
func (b *Book) publish(cs *Changeset) {
	txs := make(map[string]*Transaction, len(cs.txs))
	order := make([]string, 0, len(cs.order))
	for _, id := range cs.order {
		t, ok := cs.txs[id]
		if !ok || t.Len() == 0 {
			continue
		}
		txs[id] = t.Clone()
		order = append(order, id)
	}
	b.txs = txs
	b.order = order
}
