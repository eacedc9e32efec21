package inmemory

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-import/internal/ledger"
)

func TestStore_RoundTripThroughBook(t *testing.T) {
	ctx := context.Background()
	store := NewStore(
		&ledger.Account{ID: "card", Kind: ledger.KindCapital},
		&ledger.Account{ID: "food", Kind: ledger.KindCategory},
	)

	book, err := ledger.Open(ctx, store)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	cs, _ := book.Begin()
	tx := cs.CreateTransaction(civil.Date{Year: 2023, Month: 1, Day: 2})
	a := tx.CreateEntry()
	a.AccountID, a.Amount = "card", -250
	a.SetTag(ledger.FieldUniqueID, "FIT-9")
	b := tx.CreateEntry()
	b.AccountID, b.Amount = "food", 250
	if _, err := cs.Commit(ctx); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", store.Len())
	}

	reopened, err := ledger.Open(ctx, store)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	txs := reopened.Transactions()
	if len(txs) != 1 {
		t.Fatalf("reopened book has %d transactions, want 1", len(txs))
	}
	if got := txs[0].Entries()[0].Tag(ledger.FieldUniqueID); got != "FIT-9" {
		t.Errorf("unique_id tag = %q, want FIT-9", got)
	}

	cs, _ = reopened.Begin()
	cur, _ := cs.Transaction(tx.ID)
	if err := cs.DeleteTransaction(cur); err != nil {
		t.Fatalf("DeleteTransaction() error: %v", err)
	}
	if _, err := cs.Commit(ctx); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after delete, want 0", store.Len())
	}
}

func TestStore_FailNext(t *testing.T) {
	boom := errors.New("boom")
	store := NewStore()
	store.FailNext = boom
	if err := store.Apply(context.Background(), ledger.Changes{}); !errors.Is(err, boom) {
		t.Fatalf("Apply() error = %v, want %v", err, boom)
	}
	if err := store.Apply(context.Background(), ledger.Changes{}); err != nil {
		t.Fatalf("second Apply() error = %v, want nil", err)
	}
}

func TestStore_ApplyRejectsDuplicateCreate(t *testing.T) {
	store := NewStore()
	tx := ledger.NewTransaction("t1", civil.Date{Year: 2023, Month: 1, Day: 1})
	ctx := context.Background()
	if err := store.Apply(ctx, ledger.Changes{Created: []*ledger.Transaction{tx}}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if err := store.Apply(ctx, ledger.Changes{Created: []*ledger.Transaction{tx}}); err == nil {
		t.Fatal("Apply() should reject duplicate create")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}
