// Package match locates an existing ledger entry for an incoming record.
package match

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-import/internal/ledger"
)

const (
	// DefaultToleranceDays covers card processors that post a charge a few
	// days after the purchase.
	DefaultToleranceDays = 5
	// MaxToleranceDays bounds the search window.
	MaxToleranceDays = 10
)

var (
	ErrAmbiguousMatch   = errors.New("more than one ledger entry matches")
	ErrInvalidTolerance = errors.New("tolerance out of range")
	ErrUnknownTieBreak  = errors.New("unknown tie-break policy")
)

// TieBreak decides what happens when several entries match.
type TieBreak string

const (
	// TieBreakFail reports ErrAmbiguousMatch.
	TieBreakFail TieBreak = "fail"
	// TieBreakClosestDate picks the entry closest to the query date and
	// fails only when that is tied too.
	TieBreakClosestDate TieBreak = "closest_date"
	// TieBreakFirst picks the first match in account order.
	TieBreakFirst TieBreak = "first"
)

// ParseTieBreak accepts the config spelling of a policy. Empty means fail.
func ParseTieBreak(s string) (TieBreak, error) {
	switch tb := TieBreak(strings.ToLower(strings.TrimSpace(s))); tb {
	case "":
		return TieBreakFail, nil
	case TieBreakFail, TieBreakClosestDate, TieBreakFirst:
		return tb, nil
	}
	return "", fmt.Errorf("ParseTieBreak: %q: %w", s, ErrUnknownTieBreak)
}

// Query is the match key: account, exact amount, a date window and an
// optional check number.
type Query struct {
	AccountID     string
	Amount        int64
	Date          civil.Date
	Check         string
	ToleranceDays int
}

// Source exposes the entries posted to an account, in account order.
// *ledger.Changeset satisfies it.
type Source interface {
	EntriesFor(accountID string) []*ledger.Entry
}

// Exclude reports entries that must never be returned.
type Exclude func(e *ledger.Entry) bool

// Claimed excludes entries an earlier import already tagged with an
// external key.
func Claimed(e *ledger.Entry) bool { return e.HasExternalKey() }

// ClaimedBy excludes entries carrying any of fields, i.e. claimed by an
// earlier import of the same kind.
func ClaimedBy(fields ...ledger.Field) Exclude {
	return func(e *ledger.Entry) bool {
		for _, f := range fields {
			if e.HasTag(f) {
				return true
			}
		}
		return false
	}
}

// Any combines predicates; nil predicates are ignored.
func Any(preds ...Exclude) Exclude {
	return func(e *ledger.Entry) bool {
		for _, p := range preds {
			if p != nil && p(e) {
				return true
			}
		}
		return false
	}
}

// Finder searches a Source. It never mutates the ledger.
type Finder struct {
	src      Source
	tieBreak TieBreak
}

// NewFinder creates a finder. An empty tie-break means TieBreakFail.
func NewFinder(src Source, tieBreak TieBreak) *Finder {
	if tieBreak == "" {
		tieBreak = TieBreakFail
	}
	return &Finder{src: src, tieBreak: tieBreak}
}

// Find returns the entry matching q, or nil when none does.
func (f *Finder) Find(q Query, exclude Exclude) (*ledger.Entry, error) {
	if q.ToleranceDays < 0 || q.ToleranceDays > MaxToleranceDays {
		return nil, fmt.Errorf("Find: %d days: %w", q.ToleranceDays, ErrInvalidTolerance)
	}

	var matches []*ledger.Entry
	for _, e := range f.src.EntriesFor(q.AccountID) {
		if exclude != nil && exclude(e) {
			continue
		}
		if e.Amount != q.Amount {
			continue
		}
		if distance(e.Date(), q.Date) > q.ToleranceDays {
			continue
		}
		if q.Check != "" && e.Check != q.Check {
			continue
		}
		matches = append(matches, e)
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	}

	switch f.tieBreak {
	case TieBreakFirst:
		return matches[0], nil
	case TieBreakClosestDate:
		best, tied := matches[0], false
		for _, e := range matches[1:] {
			d, bd := distance(e.Date(), q.Date), distance(best.Date(), q.Date)
			switch {
			case d < bd:
				best, tied = e, false
			case d == bd:
				tied = true
			}
		}
		if !tied {
			return best, nil
		}
	}
	return nil, fmt.Errorf("Find: %d entries of %d on %s in account %s: %w",
		len(matches), q.Amount, q.Date, q.AccountID, ErrAmbiguousMatch)
}

// FindAround retries q anchored on each date in turn and returns the first
// match. Zero anchors are skipped.
func (f *Finder) FindAround(q Query, exclude Exclude, anchors ...civil.Date) (*ledger.Entry, error) {
	for _, anchor := range anchors {
		if anchor.IsZero() {
			continue
		}
		q.Date = anchor
		e, err := f.Find(q, exclude)
		if err != nil || e != nil {
			return e, err
		}
	}
	return nil, nil
}

func distance(a, b civil.Date) int {
	d := a.DaysSince(b)
	if d < 0 {
		return -d
	}
	return d
}
