package ledger

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnbalanced       = errors.New("transaction does not balance")
	ErrUnknownAccount   = errors.New("unknown account")
	ErrBatchInProgress  = errors.New("another import batch is in progress")
	ErrChangesetClosed  = errors.New("changeset already committed or discarded")
	ErrEntryNotInLedger = errors.New("entry does not belong to this changeset")
)

// Store persists the ledger.
type Store interface {
	// Load returns every account and transaction.
	Load(ctx context.Context) ([]*Account, []*Transaction, error)
	// Apply persists one committed changeset atomically: either all of
	// changes is stored or none of it.
	Apply(ctx context.Context, changes Changes) error
}

// Changes is the diff a changeset produces against the committed ledger.
type Changes struct {
	Created []*Transaction
	Updated []*Transaction
	Deleted []string
}

// Empty reports whether there is nothing to persist.
func (c Changes) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}
