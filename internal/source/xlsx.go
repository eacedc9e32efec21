package source

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/ledger-import/internal/record"
)

// XLSXReader reads the first sheet of a spreadsheet export. The first row
// is the header, mapped by Columns like a CSV download.
type XLSXReader struct {
	Columns Columns
}

func (xr *XLSXReader) Read(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("XLSXReader.Read: %w: %w", ErrMalformed, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("XLSXReader.Read: sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	lines := make([]int, len(rows)-1)
	for i := range lines {
		lines[i] = i + 2
	}
	recs, err := xr.Columns.records(rows[0], rows[1:], lines)
	if err != nil {
		return nil, fmt.Errorf("XLSXReader.Read: %w", err)
	}
	return recs, nil
}

var _ Reader = (*XLSXReader)(nil)
