package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/ledger-import/internal/money"
	"github.com/dvloznov/ledger-import/internal/record"
)

// DefaultQIFDateLayout is the US layout most banks export.
const DefaultQIFDateLayout = "01/02/2006"

// QIFReader reads the bank and card sections of a QIF export. Investment
// and list sections are skipped.
type QIFReader struct {
	DateLayout string
}

func (qr *QIFReader) Read(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	layout := qr.DateLayout
	if layout == "" {
		layout = DefaultQIFDateLayout
	}

	var recs []*record.Record
	var cur *record.Record
	var memo string
	var haveDate, haveAmt bool
	inBank := true
	lineNo, startNo := 0, 0
	scanner := bufio.NewScanner(r)

	flush := func() error {
		if cur == nil {
			return nil
		}
		if !haveDate || !haveAmt {
			return fmt.Errorf("%w: line %d: entry without date or amount", ErrMalformed, startNo)
		}
		if cur.Description == "" {
			cur.Description = memo
		}
		recs = append(recs, cur)
		cur, memo, haveAmt, haveDate = nil, "", false, false
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "!") {
			if err := flush(); err != nil {
				return nil, fmt.Errorf("QIFReader.Read: %w", err)
			}
			header := strings.ToLower(line)
			if strings.HasPrefix(header, "!type:") {
				kind := strings.TrimSpace(strings.TrimPrefix(header, "!type:"))
				inBank = kind == "bank" || kind == "ccard" || kind == "cash" || kind == "oth a" || kind == "oth l"
			}
			continue
		}
		if !inBank {
			continue
		}
		if line == "^" {
			if err := flush(); err != nil {
				return nil, fmt.Errorf("QIFReader.Read: %w", err)
			}
			continue
		}
		if cur == nil {
			cur = &record.Record{Kind: record.KindStatement, Line: lineNo}
			startNo = lineNo
		}

		value := strings.TrimSpace(line[1:])
		switch line[0] {
		case 'D':
			d, err := parseDate(normalizeQIFDate(value), layout)
			if err != nil {
				return nil, fmt.Errorf("QIFReader.Read: %w: line %d: %w", ErrMalformed, lineNo, err)
			}
			cur.Date = d
			haveDate = true
		case 'T', 'U':
			v, err := money.ParseAmount(value)
			if err != nil {
				return nil, fmt.Errorf("QIFReader.Read: %w: line %d: %w", ErrMalformed, lineNo, err)
			}
			cur.Amount = v
			haveAmt = true
		case 'P':
			cur.Description = value
		case 'M':
			memo = value
		case 'N':
			cur.Check = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("QIFReader.Read: %w", err)
	}
	if err := flush(); err != nil {
		return nil, fmt.Errorf("QIFReader.Read: %w", err)
	}
	return recs, nil
}

// normalizeQIFDate rewrites the Quicken short forms "3/ 1'23" and "3/1/23"
// into "03/01/2023".
func normalizeQIFDate(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.Replace(s, "'", "/", 1)
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return s
	}
	for i := 0; i < 2; i++ {
		if len(parts[i]) == 1 {
			parts[i] = "0" + parts[i]
		}
	}
	if len(parts[2]) == 2 {
		parts[2] = "20" + parts[2]
	}
	return strings.Join(parts, "/")
}

var _ Reader = (*QIFReader)(nil)
