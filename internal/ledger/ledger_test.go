package ledger

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
)

// mockStore is a mock implementation of Store for testing.
type mockStore struct {
	LoadFunc  func(ctx context.Context) ([]*Account, []*Transaction, error)
	ApplyFunc func(ctx context.Context, changes Changes) error
	applied   []Changes
}

func (m *mockStore) Load(ctx context.Context) ([]*Account, []*Transaction, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	return nil, nil, nil
}

func (m *mockStore) Apply(ctx context.Context, changes Changes) error {
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, changes)
	}
	m.applied = append(m.applied, changes)
	return nil
}

func day(d int) civil.Date { return civil.Date{Year: 2023, Month: 3, Day: d} }

func testAccounts() []*Account {
	return []*Account{
		{ID: "card", Name: "Credit Card", Currency: "USD", Kind: KindCapital},
		{ID: "unclassified", Name: "Unclassified", Currency: "USD", Kind: KindCategory, Placeholder: true},
		{ID: "groceries", Name: "Groceries", Currency: "USD", Kind: KindCategory},
	}
}

func addSimple(cs *Changeset, date civil.Date, amount int64, category string) *Transaction {
	t := cs.CreateTransaction(date)
	e := t.CreateEntry()
	e.AccountID = "card"
	e.Amount = amount
	o := t.CreateEntry()
	o.AccountID = category
	o.Amount = -amount
	return t
}

func TestBook_BeginIsExclusive(t *testing.T) {
	b := NewBook(nil, testAccounts(), nil)

	cs, err := b.Begin()
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if _, err := b.Begin(); !errors.Is(err, ErrBatchInProgress) {
		t.Fatalf("second Begin() error = %v, want ErrBatchInProgress", err)
	}
	cs.Discard()
	if _, err := b.Begin(); err != nil {
		t.Fatalf("Begin() after Discard error: %v", err)
	}
}

func TestChangeset_CommitPublishesAndPersists(t *testing.T) {
	store := &mockStore{}
	b := NewBook(store, testAccounts(), nil)

	cs, _ := b.Begin()
	tx := addSimple(cs, day(1), -1999, "groceries")

	changes, err := cs.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if len(changes.Created) != 1 || changes.Created[0].ID != tx.ID {
		t.Errorf("Commit() created = %v, want [%s]", changes.Created, tx.ID)
	}
	if len(store.applied) != 1 {
		t.Fatalf("store.Apply called %d times, want 1", len(store.applied))
	}

	got := b.Transactions()
	if len(got) != 1 || got[0].Balance() != 0 || got[0].Len() != 2 {
		t.Fatalf("Transactions() = %v, want one balanced 2-entry transaction", got)
	}

	// committed state is a copy
	tx.Entries()[0].Amount = 1
	if b.Transactions()[0].Entries()[0].Amount != -1999 {
		t.Error("book state aliased the changeset")
	}
}

func TestChangeset_CommitRejectsUnbalanced(t *testing.T) {
	store := &mockStore{}
	b := NewBook(store, testAccounts(), nil)

	cs, _ := b.Begin()
	tx := cs.CreateTransaction(day(1))
	e := tx.CreateEntry()
	e.AccountID = "card"
	e.Amount = 100

	if _, err := cs.Commit(context.Background()); !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("Commit() error = %v, want ErrUnbalanced", err)
	}
	if len(store.applied) != 0 {
		t.Error("store.Apply called for unbalanced changeset")
	}
	cs.Discard()
	if n := len(b.Transactions()); n != 0 {
		t.Errorf("book has %d transactions after rejected commit, want 0", n)
	}
}

func TestChangeset_CommitRejectsUnknownAccount(t *testing.T) {
	b := NewBook(nil, testAccounts(), nil)
	cs, _ := b.Begin()
	addSimple(cs, day(1), 100, "nope")

	if _, err := cs.Commit(context.Background()); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("Commit() error = %v, want ErrUnknownAccount", err)
	}
}

func TestChangeset_StoreFailureLeavesBookUntouched(t *testing.T) {
	boom := errors.New("disk full")
	store := &mockStore{
		ApplyFunc: func(ctx context.Context, changes Changes) error { return boom },
	}
	b := NewBook(store, testAccounts(), nil)

	cs, _ := b.Begin()
	addSimple(cs, day(1), 100, "groceries")
	if _, err := cs.Commit(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Commit() error = %v, want %v", err, boom)
	}
	cs.Discard()
	if n := len(b.Transactions()); n != 0 {
		t.Errorf("book has %d transactions, want 0", n)
	}
}

func TestChangeset_DiffUpdatesAndDeletes(t *testing.T) {
	b := NewBook(nil, testAccounts(), nil)
	cs, _ := b.Begin()
	keep := addSimple(cs, day(1), -500, "groceries")
	edit := addSimple(cs, day(2), -700, "unclassified")
	drop := addSimple(cs, day(3), -900, "groceries")
	if _, err := cs.Commit(context.Background()); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	cs, _ = b.Begin()
	tx, _ := cs.Transaction(edit.ID)
	tx.Entries()[1].AccountID = "groceries"
	d, _ := cs.Transaction(drop.ID)
	if err := cs.DeleteTransaction(d); err != nil {
		t.Fatalf("DeleteTransaction() error: %v", err)
	}

	changes := cs.Changes()
	want := struct{ Created, Updated, Deleted []string }{
		Updated: []string{edit.ID},
		Deleted: []string{drop.ID},
	}
	got := struct{ Created, Updated, Deleted []string }{
		Created: ids(changes.Created),
		Updated: ids(changes.Updated),
		Deleted: changes.Deleted,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Changes() mismatch (-want +got):\n%s", diff)
	}
	_ = keep
}

func TestChangeset_EmptiedTransactionIsDeleted(t *testing.T) {
	b := NewBook(nil, testAccounts(), nil)
	cs, _ := b.Begin()
	tx := addSimple(cs, day(1), -500, "groceries")
	cs.Commit(context.Background())

	cs, _ = b.Begin()
	cur, _ := cs.Transaction(tx.ID)
	for _, e := range cur.Entries() {
		if err := cs.DeleteEntry(e); err != nil {
			t.Fatalf("DeleteEntry() error: %v", err)
		}
	}
	changes, err := cs.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if diff := cmp.Diff([]string{tx.ID}, changes.Deleted); diff != "" {
		t.Errorf("Deleted mismatch (-want +got):\n%s", diff)
	}
	if n := len(b.Transactions()); n != 0 {
		t.Errorf("book has %d transactions, want 0", n)
	}
}

func TestChangeset_DeleteTwice(t *testing.T) {
	b := NewBook(nil, testAccounts(), nil)
	cs, _ := b.Begin()
	tx := addSimple(cs, day(1), -500, "groceries")
	if err := cs.DeleteTransaction(tx); err != nil {
		t.Fatalf("DeleteTransaction() error: %v", err)
	}
	if err := cs.DeleteTransaction(tx); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteTransaction() error = %v, want ErrNotFound", err)
	}
}

func TestChangeset_EntriesForOrdersByDate(t *testing.T) {
	b := NewBook(nil, testAccounts(), nil)
	cs, _ := b.Begin()
	addSimple(cs, day(5), -1, "groceries")
	addSimple(cs, day(2), -2, "groceries")
	addSimple(cs, day(5), -3, "groceries")
	addSimple(cs, day(1), -4, "unclassified")

	var got []int64
	for _, e := range cs.EntriesFor("card") {
		got = append(got, e.Amount)
	}
	if diff := cmp.Diff([]int64{-4, -2, -1, -3}, got); diff != "" {
		t.Errorf("EntriesFor() mismatch (-want +got):\n%s", diff)
	}
}

func TestChangeset_EntriesTaggedAndIsNew(t *testing.T) {
	b := NewBook(nil, testAccounts(), nil)
	cs, _ := b.Begin()
	old := addSimple(cs, day(1), -1, "groceries")
	old.Entries()[0].SetTag(FieldUniqueID, "FIT-1")
	cs.Commit(context.Background())

	cs, _ = b.Begin()
	fresh := addSimple(cs, day(2), -2, "groceries")

	tagged := cs.EntriesTagged(FieldUniqueID, "FIT-1")
	if len(tagged) != 1 || tagged[0].Transaction().ID != old.ID {
		t.Fatalf("EntriesTagged() = %v, want entry of %s", tagged, old.ID)
	}
	if cs.IsNew(tagged[0].Transaction()) {
		t.Error("IsNew() = true for committed transaction")
	}
	if !cs.IsNew(fresh) {
		t.Error("IsNew() = false for transaction created in changeset")
	}
}

func TestOpen(t *testing.T) {
	stored := NewTransaction("t1", day(1))
	a := NewEntry("e1", "card", -100)
	a.SetTag(FieldUniqueID, "X")
	stored.AddEntry(a)
	stored.AddEntry(NewEntry("e2", "groceries", 100))

	store := &mockStore{
		LoadFunc: func(ctx context.Context) ([]*Account, []*Transaction, error) {
			return testAccounts(), []*Transaction{stored}, nil
		},
	}
	b, err := Open(context.Background(), store)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, ok := b.Account("groceries"); !ok {
		t.Error("Account(groceries) not found")
	}
	txs := b.Transactions()
	if len(txs) != 1 || txs[0].Entries()[0].Tag(FieldUniqueID) != "X" {
		t.Errorf("Transactions() = %v, want restored t1", txs)
	}

	loadErr := errors.New("unreachable")
	store.LoadFunc = func(ctx context.Context) ([]*Account, []*Transaction, error) { return nil, nil, loadErr }
	if _, err := Open(context.Background(), store); !errors.Is(err, loadErr) {
		t.Errorf("Open() error = %v, want %v", err, loadErr)
	}
}

func TestTransaction_Other(t *testing.T) {
	tx := NewTransaction("t", day(1))
	a := tx.CreateEntry()
	b := tx.CreateEntry()
	if tx.Other(a) != b || tx.Other(b) != a {
		t.Error("Other() did not return the opposite entry")
	}
	tx.CreateEntry()
	if !tx.IsSplit() {
		t.Error("IsSplit() = false for 3 entries")
	}
	if tx.Other(a) != nil {
		t.Error("Other() on split transaction should be nil")
	}
}

func TestEntry_Tags(t *testing.T) {
	e := NewEntry("e", "card", 1)
	if e.HasExternalKey() {
		t.Error("HasExternalKey() = true on untagged entry")
	}
	e.SetTag(FieldASIN, "B000")
	if e.HasExternalKey() {
		t.Error("HasExternalKey() = true for non-key field")
	}
	e.SetTag(FieldOrderID, "111")
	if !e.HasExternalKey() {
		t.Error("HasExternalKey() = false with order_id")
	}
	e.SetTag(FieldOrderID, "")
	if e.HasTag(FieldOrderID) {
		t.Error("SetTag(\"\") did not remove the tag")
	}
}

func ids(txs []*Transaction) []string {
	var out []string
	for _, t := range txs {
		out = append(out, t.ID)
	}
	return out
}

func TestBook_EntriesFor(t *testing.T) {
	b := NewBook(&mockStore{}, testAccounts(), nil)
	cs, _ := b.Begin()
	addSimple(cs, day(4), -100, "groceries")
	addSimple(cs, day(2), -200, "unclassified")
	addSimple(cs, day(4), -300, "groceries")
	if _, err := cs.Commit(context.Background()); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	var card []int64
	for _, e := range b.EntriesFor("card") {
		card = append(card, e.Amount)
	}
	if diff := cmp.Diff([]int64{-200, -100, -300}, card); diff != "" {
		t.Errorf("EntriesFor(card) mismatch (-want +got):\n%s", diff)
	}

	groceries := b.EntriesFor("groceries")
	if len(groceries) != 2 || groceries[0].Transaction() == nil {
		t.Fatalf("EntriesFor(groceries) = %v", groceries)
	}
	groceries[0].Amount = 1
	if b.EntriesFor("groceries")[0].Amount != 100 {
		t.Error("EntriesFor() aliased book state")
	}

	if got := b.EntriesFor("missing"); len(got) != 0 {
		t.Errorf("EntriesFor(missing) = %v, want none", got)
	}
}
