// Package merge reconciles a freshly built transaction with the ledger entry
// it matched, so the ledger keeps exactly one version of the event.
package merge

import (
	"errors"
	"fmt"
	"slices"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-import/internal/ledger"
)

var ErrSelfMatch = errors.New("candidate matched its own transaction")

// Outcome says which side survived a merge.
type Outcome int

const (
	// KeptCandidate: nothing matched.
	KeptCandidate Outcome = iota
	// ReplacedMatched: the split candidate replaced a simple matched
	// transaction after taking over its user-entered fields.
	ReplacedMatched
	// KeptMatched: an existing split already explains the record.
	KeptMatched
	// NeedsReview: both sides are split; both are kept.
	NeedsReview
	// MergedIntoMatched: both simple; the matched transaction absorbed the
	// candidate's keys.
	MergedIntoMatched
)

func (o Outcome) String() string {
	switch o {
	case KeptCandidate:
		return "kept_candidate"
	case ReplacedMatched:
		return "replaced_matched"
	case KeptMatched:
		return "kept_matched"
	case NeedsReview:
		return "needs_review"
	case MergedIntoMatched:
		return "merged_into_matched"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Warning asks for manual reconciliation of two transactions.
type Warning struct {
	Key         string
	CandidateTx string
	MatchedTx   string
	Date        civil.Date
	Amount      int64
	Message     string
}

// Result of one merge.
type Result struct {
	Outcome Outcome
	// Survivor is the transaction that now represents the event.
	Survivor *ledger.Transaction
	// Stop is set when the record is fully explained and needs no further
	// processing.
	Stop    bool
	Warning *Warning
}

// Options configure a Merger.
type Options struct {
	// PlaceholderAccount is the "not yet classified" account.
	PlaceholderAccount string
	// DefaultAccounts are further accounts importers post to on their own
	// (e.g. the default items account); a classification on any of them
	// was not chosen by the user.
	DefaultAccounts []string
	// Authoritative makes the candidate's amount and account win over the
	// matched entry's.
	Authoritative bool
}

// Merger applies merges inside one changeset.
type Merger struct {
	cs   *ledger.Changeset
	opts Options
}

// New creates a merger working on cs.
func New(cs *ledger.Changeset, opts Options) *Merger {
	return &Merger{cs: cs, opts: opts}
}

// Merge reconciles candidate, an entry of a transaction built in this
// changeset, with matched, the existing entry the finder returned (nil when
// nothing matched). key names the record in warnings.
func (m *Merger) Merge(key string, candidate, matched *ledger.Entry) (Result, error) {
	ctx := candidate.Transaction()
	if matched == nil {
		return Result{Outcome: KeptCandidate, Survivor: ctx}, nil
	}
	mtx := matched.Transaction()
	if ctx == mtx {
		return Result{}, fmt.Errorf("Merge: %s: %w", key, ErrSelfMatch)
	}

	switch {
	case ctx.IsSplit() && !mtx.IsSplit():
		m.adoptUserFields(candidate, matched)
		if err := m.cs.DeleteTransaction(mtx); err != nil {
			return Result{}, fmt.Errorf("Merge: %s: deleting matched: %w", key, err)
		}
		return Result{Outcome: ReplacedMatched, Survivor: ctx}, nil

	case !ctx.IsSplit() && mtx.IsSplit():
		if err := m.cs.DeleteTransaction(ctx); err != nil {
			return Result{}, fmt.Errorf("Merge: %s: deleting candidate: %w", key, err)
		}
		return Result{Outcome: KeptMatched, Survivor: mtx, Stop: true}, nil

	case ctx.IsSplit() && mtx.IsSplit():
		return Result{
			Outcome:  NeedsReview,
			Survivor: ctx,
			Warning: &Warning{
				Key:         key,
				CandidateTx: ctx.ID,
				MatchedTx:   mtx.ID,
				Date:        ctx.Date,
				Amount:      candidate.Amount,
				Message:     "both the imported and the existing transaction are split; reconcile manually",
			},
		}, nil
	}

	m.absorbCandidate(candidate, matched)
	if err := m.cs.DeleteTransaction(ctx); err != nil {
		return Result{}, fmt.Errorf("Merge: %s: deleting candidate: %w", key, err)
	}
	return Result{Outcome: MergedIntoMatched, Survivor: mtx}, nil
}

// adoptUserFields copies what the user entered on a simple matched
// transaction onto the split candidate that replaces it.
func (m *Merger) adoptUserFields(candidate, matched *ledger.Entry) {
	if candidate.ValueDate.IsZero() {
		candidate.ValueDate = matched.ValueDate
	}
	if candidate.Check == "" {
		candidate.Check = matched.Check
	}
	if candidate.Memo == "" {
		candidate.Memo = matched.Memo
	}

	other := matched.Transaction().Other(matched)
	if other == nil || m.isDefault(other.AccountID) {
		return
	}
	for _, e := range candidate.Transaction().Entries() {
		if e != candidate && m.isDefault(e.AccountID) {
			e.AccountID = other.AccountID
		}
	}
}

// absorbCandidate moves the candidate's tags onto the matched pair and, for
// authoritative sources, its amount and account.
func (m *Merger) absorbCandidate(candidate, matched *ledger.Entry) {
	for f, v := range candidate.Tags() {
		matched.SetTag(f, v)
	}
	co := candidate.Transaction().Other(candidate)
	mo := matched.Transaction().Other(matched)
	if co != nil && mo != nil {
		for f, v := range co.Tags() {
			mo.SetTag(f, v)
		}
		if mo.AccountID == m.opts.PlaceholderAccount && co.AccountID != m.opts.PlaceholderAccount {
			mo.AccountID = co.AccountID
		}
	}

	if !m.opts.Authoritative {
		return
	}
	matched.Amount = candidate.Amount
	matched.AccountID = candidate.AccountID
	if mo != nil {
		mo.Amount = -candidate.Amount
	}
}

func (m *Merger) isDefault(accountID string) bool {
	return accountID == m.opts.PlaceholderAccount || slices.Contains(m.opts.DefaultAccounts, accountID)
}
