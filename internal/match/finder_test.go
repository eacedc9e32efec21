package match

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-import/internal/ledger"
)

func day(d int) civil.Date { return civil.Date{Year: 2023, Month: 3, Day: d} }

type posting struct {
	date   civil.Date
	amount int64
	check  string
	tags   map[ledger.Field]string
}

func newChangeset(t *testing.T, postings ...posting) *ledger.Changeset {
	t.Helper()
	book := ledger.NewBook(nil, []*ledger.Account{
		{ID: "card", Kind: ledger.KindCapital},
		{ID: "misc", Kind: ledger.KindCategory, Placeholder: true},
	}, nil)
	cs, err := book.Begin()
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	for _, p := range postings {
		tx := cs.CreateTransaction(p.date)
		e := tx.CreateEntry()
		e.AccountID = "card"
		e.Amount = p.amount
		e.Check = p.check
		for f, v := range p.tags {
			e.SetTag(f, v)
		}
		o := tx.CreateEntry()
		o.AccountID = "misc"
		o.Amount = -p.amount
	}
	return cs
}

func TestFinder_Find(t *testing.T) {
	tests := []struct {
		name      string
		postings  []posting
		query     Query
		wantDate  civil.Date
		wantFound bool
	}{
		{
			name:      "exact date",
			postings:  []posting{{date: day(10), amount: -1999}},
			query:     Query{AccountID: "card", Amount: -1999, Date: day(10)},
			wantDate:  day(10),
			wantFound: true,
		},
		{
			name:      "inside window",
			postings:  []posting{{date: day(15), amount: -1999}},
			query:     Query{AccountID: "card", Amount: -1999, Date: day(10), ToleranceDays: 5},
			wantDate:  day(15),
			wantFound: true,
		},
		{
			name:      "window is symmetric",
			postings:  []posting{{date: day(5), amount: -1999}},
			query:     Query{AccountID: "card", Amount: -1999, Date: day(10), ToleranceDays: 5},
			wantDate:  day(5),
			wantFound: true,
		},
		{
			name:     "outside window",
			postings: []posting{{date: day(16), amount: -1999}},
			query:    Query{AccountID: "card", Amount: -1999, Date: day(10), ToleranceDays: 5},
		},
		{
			name:     "amount differs by one cent",
			postings: []posting{{date: day(10), amount: -1998}},
			query:    Query{AccountID: "card", Amount: -1999, Date: day(10)},
		},
		{
			name:     "check must match when given",
			postings: []posting{{date: day(10), amount: -1999, check: "101"}},
			query:    Query{AccountID: "card", Amount: -1999, Date: day(10), Check: "102"},
		},
		{
			name:      "check ignored when query has none",
			postings:  []posting{{date: day(10), amount: -1999, check: "101"}},
			query:     Query{AccountID: "card", Amount: -1999, Date: day(10)},
			wantDate:  day(10),
			wantFound: true,
		},
		{
			name:     "other account",
			postings: []posting{{date: day(10), amount: -1999}},
			query:    Query{AccountID: "savings", Amount: -1999, Date: day(10)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFinder(newChangeset(t, tt.postings...), TieBreakFail)
			got, err := f.Find(tt.query, nil)
			if err != nil {
				t.Fatalf("Find() error: %v", err)
			}
			if (got != nil) != tt.wantFound {
				t.Fatalf("Find() = %v, wantFound %v", got, tt.wantFound)
			}
			if got != nil && got.Date() != tt.wantDate {
				t.Errorf("Find() date = %s, want %s", got.Date(), tt.wantDate)
			}
		})
	}
}

func TestFinder_NeverReturnsExcluded(t *testing.T) {
	cs := newChangeset(t,
		posting{date: day(10), amount: -500, tags: map[ledger.Field]string{ledger.FieldUniqueID: "FIT-1"}},
		posting{date: day(11), amount: -500, tags: map[ledger.Field]string{ledger.FieldOrderID: "111"}},
	)
	f := NewFinder(cs, TieBreakFirst)
	got, err := f.Find(Query{AccountID: "card", Amount: -500, Date: day(10), ToleranceDays: 5}, Claimed)
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if got != nil {
		t.Fatalf("Find() returned claimed entry %v", got.Tags())
	}
}

func TestFinder_ClaimedBy(t *testing.T) {
	cs := newChangeset(t,
		posting{date: day(10), amount: -500, tags: map[ledger.Field]string{ledger.FieldUniqueID: "FIT-1"}},
	)
	f := NewFinder(cs, TieBreakFail)
	q := Query{AccountID: "card", Amount: -500, Date: day(10)}

	got, err := f.Find(q, ClaimedBy(ledger.FieldOrderID))
	if err != nil || got == nil {
		t.Fatalf("Find() = %v, %v; want the bank entry", got, err)
	}
	got, err = f.Find(q, Any(nil, ClaimedBy(ledger.FieldUniqueID)))
	if err != nil || got != nil {
		t.Fatalf("Find() = %v, %v; want no match", got, err)
	}
}

func TestFinder_Ambiguity(t *testing.T) {
	postings := []posting{
		{date: day(8), amount: -700},
		{date: day(11), amount: -700},
		{date: day(12), amount: -700},
	}
	q := Query{AccountID: "card", Amount: -700, Date: day(10), ToleranceDays: 5}

	t.Run("fail", func(t *testing.T) {
		_, err := NewFinder(newChangeset(t, postings...), TieBreakFail).Find(q, nil)
		if !errors.Is(err, ErrAmbiguousMatch) {
			t.Fatalf("Find() error = %v, want ErrAmbiguousMatch", err)
		}
	})
	t.Run("first", func(t *testing.T) {
		got, err := NewFinder(newChangeset(t, postings...), TieBreakFirst).Find(q, nil)
		if err != nil || got.Date() != day(8) {
			t.Fatalf("Find() = %v, %v; want entry on %s", got, err, day(8))
		}
	})
	t.Run("closest date", func(t *testing.T) {
		got, err := NewFinder(newChangeset(t, postings...), TieBreakClosestDate).Find(q, nil)
		if err != nil || got.Date() != day(11) {
			t.Fatalf("Find() = %v, %v; want entry on %s", got, err, day(11))
		}
	})
	t.Run("closest date still tied", func(t *testing.T) {
		tied := []posting{{date: day(9), amount: -700}, {date: day(11), amount: -700}}
		_, err := NewFinder(newChangeset(t, tied...), TieBreakClosestDate).Find(q, nil)
		if !errors.Is(err, ErrAmbiguousMatch) {
			t.Fatalf("Find() error = %v, want ErrAmbiguousMatch", err)
		}
	})
}

func TestFinder_FindAround(t *testing.T) {
	cs := newChangeset(t, posting{date: day(2), amount: -4200})
	f := NewFinder(cs, TieBreakFail)
	q := Query{AccountID: "card", Amount: -4200, ToleranceDays: 3}

	// ship date misses, order date hits
	got, err := f.FindAround(q, nil, day(20), civil.Date{}, day(1))
	if err != nil {
		t.Fatalf("FindAround() error: %v", err)
	}
	if got == nil || got.Date() != day(2) {
		t.Fatalf("FindAround() = %v, want entry on %s", got, day(2))
	}

	got, err = f.FindAround(q, nil, day(20))
	if err != nil || got != nil {
		t.Errorf("FindAround() = %v, %v; want no match", got, err)
	}
}

func TestFinder_InvalidTolerance(t *testing.T) {
	f := NewFinder(newChangeset(t), "")
	for _, days := range []int{-1, MaxToleranceDays + 1} {
		if _, err := f.Find(Query{AccountID: "card", ToleranceDays: days}, nil); !errors.Is(err, ErrInvalidTolerance) {
			t.Errorf("Find(tolerance %d) error = %v, want ErrInvalidTolerance", days, err)
		}
	}
}

func TestParseTieBreak(t *testing.T) {
	tests := []struct {
		in      string
		want    TieBreak
		wantErr bool
	}{
		{"", TieBreakFail, false},
		{"FAIL", TieBreakFail, false},
		{"closest_date", TieBreakClosestDate, false},
		{" first ", TieBreakFirst, false},
		{"random", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTieBreak(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseTieBreak(%q) = %q, %v; want %q, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
