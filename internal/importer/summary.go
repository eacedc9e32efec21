package importer

import (
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-import/internal/merge"
)

// Summary describes what one batch did to the ledger.
type Summary struct {
	BatchID string
	Source  string
	Records int

	// Per-record outcomes.
	Imported   int
	Merged     int
	Replaced   int
	Explained  int
	Flagged    int
	Duplicates int
	Skipped    int

	// Per-order outcomes.
	Orders    int
	Held      []string
	Discarded int

	// Committed changes.
	Created int
	Updated int
	Deleted int

	Warnings []merge.Warning
}

func (s *Summary) count(o merge.Outcome) {
	switch o {
	case merge.KeptCandidate:
		s.Imported++
	case merge.MergedIntoMatched:
		s.Merged++
	case merge.ReplacedMatched:
		s.Replaced++
	case merge.KeptMatched:
		s.Explained++
	case merge.NeedsReview:
		s.Flagged++
	}
}

// String renders the summary for operators.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch %s (%s): %d records", s.BatchID, s.Source, s.Records)
	if s.Orders > 0 {
		fmt.Fprintf(&b, " in %d orders", s.Orders)
	}
	fmt.Fprintf(&b, "; %d new, %d merged, %d replaced, %d already recorded, %d duplicates",
		s.Imported, s.Merged, s.Replaced, s.Explained, s.Duplicates)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", s.Skipped)
	}
	if s.Flagged > 0 {
		fmt.Fprintf(&b, ", %d flagged for review", s.Flagged)
	}
	if s.Discarded > 0 {
		fmt.Fprintf(&b, ", %d empty orders discarded", s.Discarded)
	}
	if len(s.Held) > 0 {
		fmt.Fprintf(&b, ", %d orders held back (%s)", len(s.Held), strings.Join(s.Held, ", "))
	}
	fmt.Fprintf(&b, "; ledger: +%d ~%d -%d transactions", s.Created, s.Updated, s.Deleted)
	return b.String()
}
