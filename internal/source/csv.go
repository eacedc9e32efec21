package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/ledger-import/internal/money"
	"github.com/dvloznov/ledger-import/internal/record"
)

// Columns maps spreadsheet headers onto record fields. Header names match
// case-insensitively.
type Columns struct {
	Date        string
	Amount      string
	Description string
	// Key holds a stable row id when the bank provides one.
	Key   string
	Check string
	// Debit and Credit replace Amount for exports that split money out and
	// money in; debits are booked negative.
	Debit  string
	Credit string

	DateLayout string
	Comma      rune
	// Negate flips every amount, for card exports that list charges as
	// positive numbers.
	Negate bool
}

// DefaultColumns is the mapping used when none is configured.
func DefaultColumns() Columns {
	return Columns{
		Date:        "Date",
		Amount:      "Amount",
		Description: "Description",
		DateLayout:  "2006-01-02",
		Comma:       ',',
	}
}

func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.Date == "" {
		c.Date = d.Date
	}
	if c.Amount == "" && c.Debit == "" && c.Credit == "" {
		c.Amount = d.Amount
	}
	if c.Description == "" {
		c.Description = d.Description
	}
	if c.DateLayout == "" {
		c.DateLayout = d.DateLayout
	}
	if c.Comma == 0 {
		c.Comma = d.Comma
	}
	return c
}

type columnIndex map[string]int

func (idx columnIndex) get(row []string, name string) string {
	i, ok := idx[strings.ToLower(name)]
	if !ok || name == "" || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c Columns) index(header []string) (columnIndex, error) {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	required := []string{c.Date, c.Amount, c.Debit, c.Credit, c.Description, c.Key, c.Check}
	for _, name := range required {
		if name == "" {
			continue
		}
		if _, ok := idx[strings.ToLower(name)]; !ok {
			return nil, fmt.Errorf("%q: %w", name, ErrMissingColumn)
		}
	}
	return idx, nil
}

// records converts data rows below a header. lines holds the source line of
// each row.
func (c Columns) records(header []string, rows [][]string, lines []int) ([]*record.Record, error) {
	c = c.withDefaults()
	idx, err := c.index(header)
	if err != nil {
		return nil, err
	}

	var recs []*record.Record
	for i, row := range rows {
		line := lines[i]
		if blank(row) {
			continue
		}
		date, err := parseDate(idx.get(row, c.Date), c.DateLayout)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformed, line, err)
		}
		amount, err := c.amount(idx, row)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformed, line, err)
		}
		recs = append(recs, &record.Record{
			Kind:        record.KindStatement,
			Key:         idx.get(row, c.Key),
			Amount:      amount,
			Date:        date,
			Description: idx.get(row, c.Description),
			Check:       idx.get(row, c.Check),
			Line:        line,
		})
	}
	return recs, nil
}

func (c Columns) amount(idx columnIndex, row []string) (int64, error) {
	var amount int64
	if c.Amount != "" {
		v, err := money.ParseAmount(idx.get(row, c.Amount))
		if err != nil {
			return 0, err
		}
		amount = v
	} else {
		for _, col := range []struct {
			name string
			sign int64
		}{{c.Debit, -1}, {c.Credit, 1}} {
			s := idx.get(row, col.name)
			if s == "" {
				continue
			}
			v, err := money.ParseAmount(s)
			if err != nil {
				return 0, err
			}
			if v < 0 {
				v = -v
			}
			amount += col.sign * v
		}
	}
	if c.Negate {
		amount = -amount
	}
	return amount, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// CSVReader reads a bank CSV download with a header row.
type CSVReader struct {
	Columns Columns
}

func (cr *CSVReader) Read(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	cols := cr.Columns.withDefaults()
	reader := csv.NewReader(r)
	reader.Comma = cols.Comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var header []string
	var rows [][]string
	var lines []int
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CSVReader.Read: %w: %w", ErrMalformed, err)
		}
		if header == nil {
			header = row
			continue
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, row)
		lines = append(lines, line)
	}
	if header == nil {
		return nil, nil
	}
	recs, err := cols.records(header, rows, lines)
	if err != nil {
		return nil, fmt.Errorf("CSVReader.Read: %w", err)
	}
	return recs, nil
}

var _ Reader = (*CSVReader)(nil)
