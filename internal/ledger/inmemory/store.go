package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dvloznov/ledger-import/internal/ledger"
)

// Store is an in-memory implementation of ledger.Store.
// It is safe for concurrent use. Data is lost on restart; use the sqlite or
// bigquery store for persistence.
type Store struct {
	mu       sync.RWMutex
	accounts []*ledger.Account
	txs      map[string]*ledger.Transaction
	order    []string

	// FailNext makes the next Apply fail with the given error, for tests
	// exercising rollback.
	FailNext error
}

// NewStore creates a store seeded with accounts.
func NewStore(accounts ...*ledger.Account) *Store {
	s := &Store{txs: make(map[string]*ledger.Transaction)}
	for _, a := range accounts {
		acct := *a
		s.accounts = append(s.accounts, &acct)
	}
	return s
}

// Load implements ledger.Store.
func (s *Store) Load(ctx context.Context) ([]*ledger.Account, []*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]*ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		acct := *a
		accounts = append(accounts, &acct)
	}
	txs := make([]*ledger.Transaction, 0, len(s.order))
	for _, id := range s.order {
		txs = append(txs, s.txs[id].Clone())
	}
	return accounts, txs, nil
}

// Apply implements ledger.Store. All changes are validated before any is
// applied.
func (s *Store) Apply(ctx context.Context, changes ledger.Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailNext; err != nil {
		s.FailNext = nil
		return err
	}
	for _, t := range changes.Created {
		if _, exists := s.txs[t.ID]; exists {
			return fmt.Errorf("transaction already exists: %s", t.ID)
		}
	}
	for _, t := range changes.Updated {
		if _, exists := s.txs[t.ID]; !exists {
			return fmt.Errorf("transaction not found: %s", t.ID)
		}
	}

	for _, t := range changes.Created {
		s.txs[t.ID] = t.Clone()
		s.order = append(s.order, t.ID)
	}
	for _, t := range changes.Updated {
		s.txs[t.ID] = t.Clone()
	}
	for _, id := range changes.Deleted {
		delete(s.txs, id)
	}
	s.order = slices.DeleteFunc(s.order, func(id string) bool {
		_, ok := s.txs[id]
		return !ok
	})
	return nil
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

// Ensure Store implements ledger.Store interface.
var _ ledger.Store = (*Store)(nil)
