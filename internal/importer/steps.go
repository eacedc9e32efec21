package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/match"
	"github.com/dvloznov/ledger-import/internal/merge"
	"github.com/dvloznov/ledger-import/internal/orders"
	"github.com/dvloznov/ledger-import/internal/record"
)

// ImportStep is a single step of the import pipeline.
type ImportStep interface {
	Execute(ctx context.Context, state *ImportState) error
}

// ImportState is shared by all steps of one batch.
type ImportState struct {
	Batch      *record.Batch
	Config     Config
	Changeset  *ledger.Changeset
	Decomposer *orders.Decomposer

	Finder      *match.Finder
	Merger      *merge.Merger
	Accounts    orders.Accounts
	Placeholder string

	Records     []*record.Record
	Statements  []*record.Record
	OrderKeys   []string
	OrderGroups map[string][]*record.Record

	Summary *Summary

	// matched holds entries already merged in this batch; no second record
	// may claim them.
	matched map[*ledger.Entry]bool
}

// exclude builds the match predicate for records whose key lives in field.
func (s *ImportState) exclude(field ledger.Field) match.Exclude {
	return match.Any(
		match.ClaimedBy(field),
		func(e *ledger.Entry) bool { return s.Changeset.IsNew(e.Transaction()) },
		func(e *ledger.Entry) bool { return s.matched[e] },
	)
}

// merge reconciles candidate with matched and records the outcome.
func (s *ImportState) merge(key string, candidate, matched *ledger.Entry) error {
	res, err := s.Merger.Merge(key, candidate, matched)
	if err != nil {
		return err
	}
	if matched != nil {
		s.matched[matched] = true
	}
	s.Summary.count(res.Outcome)
	if res.Warning != nil {
		s.Summary.Warnings = append(s.Summary.Warnings, *res.Warning)
	}
	return nil
}

func (s *ImportState) fail(key string, err error) error {
	return &BatchError{BatchID: s.Batch.ID, Key: key, Err: err}
}

// ValidateStep checks the batch header and every record, and resolves the
// accounts the batch posts to.
type ValidateStep struct{}

func (st *ValidateStep) Execute(ctx context.Context, state *ImportState) error {
	log := logger.FromContext(ctx)
	b := state.Batch
	if err := b.Validate(); err != nil {
		return state.fail("", err)
	}

	acct, ok := state.Changeset.Account(b.AccountID)
	if !ok {
		return state.fail("", fmt.Errorf("account %q: %w", b.AccountID, ErrUnknownAccount))
	}
	if acct.Kind != ledger.KindCapital {
		return state.fail("", fmt.Errorf("account %q: %w", b.AccountID, ErrNotCapital))
	}
	placeholder, ok := state.Changeset.PlaceholderAccount()
	if !ok {
		return state.fail("", ErrNoPlaceholder)
	}
	state.Placeholder = placeholder.ID

	cfg := state.Config
	items := firstNonEmpty(cfg.ItemsAccount, placeholder.ID)
	state.Accounts = orders.Accounts{
		Capital:    b.AccountID,
		Items:      items,
		Returns:    firstNonEmpty(cfg.ReturnsAccount, items),
		Exchange:   firstNonEmpty(cfg.ExchangeAccount, items),
		ImportFees: firstNonEmpty(cfg.ImportFeesAccount, items),
		GiftCard:   cfg.GiftCardAccount,
	}
	for _, id := range []string{state.Accounts.Items, state.Accounts.Returns, state.Accounts.Exchange, state.Accounts.ImportFees, state.Accounts.GiftCard} {
		if id == "" {
			continue
		}
		if _, ok := state.Changeset.Account(id); !ok {
			return state.fail("", fmt.Errorf("configured account %q: %w", id, ErrUnknownAccount))
		}
	}

	state.Merger = merge.New(state.Changeset, merge.Options{
		PlaceholderAccount: placeholder.ID,
		DefaultAccounts:    []string{items},
		Authoritative:      cfg.authoritative(b.Source, b.Authoritative),
	})

	for _, r := range b.Records {
		if err := r.Validate(); err != nil {
			if !cfg.SkipMalformed {
				return state.fail(r.Ref(), err)
			}
			log.Warn().Err(err).Str("record_key", r.Ref()).Msg("Skipping malformed record")
			state.Summary.Skipped++
			continue
		}
		state.Records = append(state.Records, r)
	}
	state.Summary.Records = len(b.Records)
	return nil
}

// PartitionStep separates statement rows from order items and groups the
// items by order number, keeping first-seen order.
type PartitionStep struct{}

func (st *PartitionStep) Execute(ctx context.Context, state *ImportState) error {
	state.OrderGroups = make(map[string][]*record.Record)
	for _, r := range state.Records {
		if r.Kind != record.KindOrderItem {
			state.Statements = append(state.Statements, r)
			continue
		}
		if _, seen := state.OrderGroups[r.Key]; !seen {
			state.OrderKeys = append(state.OrderKeys, r.Key)
		}
		state.OrderGroups[r.Key] = append(state.OrderGroups[r.Key], r)
	}
	state.Summary.Orders = len(state.OrderKeys)
	return nil
}

// StatementStep imports statement rows: each becomes a two-entry candidate
// that is matched against the account and merged.
type StatementStep struct{}

func (st *StatementStep) Execute(ctx context.Context, state *ImportState) error {
	log := logger.FromContext(ctx)
	cs := state.Changeset
	exclude := state.exclude(ledger.FieldUniqueID)

	occurrences := make(map[string]int)
	for _, r := range state.Statements {
		key := r.Key
		if key == "" {
			key = derivedKey(state.Batch.AccountID, r, occurrences)
		}
		if len(cs.EntriesTagged(ledger.FieldUniqueID, key)) > 0 {
			log.Debug().Str("record_key", r.Ref()).Msg("Already imported")
			state.Summary.Duplicates++
			continue
		}

		tx := cs.CreateTransaction(r.Date)
		e := tx.CreateEntry()
		e.AccountID = state.Batch.AccountID
		e.Amount = r.Amount
		e.Memo = r.Description
		e.Check = r.Check
		e.SetTag(ledger.FieldUniqueID, key)
		e.SetTag(ledger.FieldBatchID, state.Batch.ID)
		o := tx.CreateEntry()
		o.AccountID = state.Placeholder
		o.Amount = -r.Amount
		o.Memo = r.Description

		matched, err := state.Finder.Find(match.Query{
			AccountID:     state.Batch.AccountID,
			Amount:        r.Amount,
			Date:          r.Date,
			Check:         r.Check,
			ToleranceDays: state.Config.ToleranceDays,
		}, exclude)
		if err != nil {
			return state.fail(r.Ref(), err)
		}
		if err := state.merge(r.Ref(), e, matched); err != nil {
			return state.fail(r.Ref(), err)
		}
	}
	return nil
}

// derivedKey names a statement row that carries no external key, so a
// re-import of the same file is recognised. Identical rows are told apart by
// their position among each other in the batch.
func derivedKey(accountID string, r *record.Record, occurrences map[string]int) string {
	row := fmt.Sprintf("%s|%s|%d|%s|%s", accountID, r.Date, r.Amount, r.Check, strings.TrimSpace(r.Description))
	n := occurrences[row]
	occurrences[row] = n + 1
	return "row-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%d", row, n))).String()
}

// OrderStep decomposes every order, books its new shipments and merges each
// shipment charge with the statement line it matches.
type OrderStep struct{}

func (st *OrderStep) Execute(ctx context.Context, state *ImportState) error {
	cs := state.Changeset
	exclude := state.exclude(ledger.FieldOrderID)

	for _, key := range state.OrderKeys {
		known := orders.Reconstitute(key, cs.EntriesTagged(ledger.FieldOrderID, key))
		res, err := state.Decomposer.Decompose(ctx, key, state.OrderGroups[key], known)
		if err != nil {
			return state.fail(key, err)
		}
		if res.Held {
			state.Summary.Held = append(state.Summary.Held, key)
			continue
		}
		if res.Discarded {
			state.Summary.Discarded++
			continue
		}

		orders.Reclassify(res.Reclassified, state.Accounts)
		charges, err := orders.Materialize(cs, res.Order, state.Accounts)
		if err != nil {
			return state.fail(key, err)
		}
		for _, c := range charges {
			var matched *ledger.Entry
			if c.Entry.Amount != 0 {
				matched, err = state.Finder.FindAround(match.Query{
					AccountID:     state.Batch.AccountID,
					Amount:        c.Entry.Amount,
					ToleranceDays: state.Config.ToleranceDays,
				}, exclude, c.Shipment.Date, res.Order.Date)
				if err != nil {
					return state.fail(key, err)
				}
			}
			if err := state.merge(key, c.Entry, matched); err != nil {
				return state.fail(key, err)
			}
		}
	}
	return nil
}

// CommitStep commits the changeset as one unit.
type CommitStep struct{}

func (st *CommitStep) Execute(ctx context.Context, state *ImportState) error {
	changes, err := state.Changeset.Commit(ctx)
	if err != nil {
		return state.fail("", err)
	}
	state.Summary.Created = len(changes.Created)
	state.Summary.Updated = len(changes.Updated)
	state.Summary.Deleted = len(changes.Deleted)
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []ImportStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...ImportStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first error.
func (p *Pipeline) Execute(ctx context.Context, state *ImportState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("import step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewImportPipeline creates the standard pipeline for one batch.
func NewImportPipeline() *Pipeline {
	return NewPipeline(
		&ValidateStep{},
		&PartitionStep{},
		&StatementStep{},
		&OrderStep{},
		&CommitStep{},
	)
}
