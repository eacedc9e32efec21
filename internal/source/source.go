// Package source turns external files into records: bank and card downloads
// (CSV, XLSX, QIF, OFX), PDF statements and marketplace order histories read
// by a Gemini model.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-import/internal/record"
)

// Kind names a source format.
type Kind string

const (
	KindCSV    Kind = "csv"
	KindXLSX   Kind = "xlsx"
	KindQIF    Kind = "qif"
	KindOFX    Kind = "ofx"
	KindPDF    Kind = "pdf"
	KindOrders Kind = "orders"
)

// Kinds lists every supported source kind.
var Kinds = []Kind{KindCSV, KindXLSX, KindQIF, KindOFX, KindPDF, KindOrders}

var (
	ErrUnknownKind   = errors.New("unknown source kind")
	ErrMissingColumn = errors.New("missing column")
	ErrMalformed     = errors.New("malformed source data")
	ErrNoModel       = errors.New("no model client configured")
)

// Reader parses one source file into records.
type Reader interface {
	Read(ctx context.Context, r io.Reader) ([]*record.Record, error)
}

// Options configure the readers built by New.
type Options struct {
	// Columns maps CSV and XLSX headers onto record fields.
	Columns Columns
	// DateLayout is the Go time layout of QIF dates.
	DateLayout string
	// Model generates structured output for the PDF and order readers.
	Model Generator
	// ModelName is the Gemini model used by the model readers.
	ModelName string
}

// New returns the reader for kind.
func New(kind Kind, opts Options) (Reader, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindCSV:
		return &CSVReader{Columns: opts.Columns}, nil
	case KindXLSX:
		return &XLSXReader{Columns: opts.Columns}, nil
	case KindQIF:
		return &QIFReader{DateLayout: opts.DateLayout}, nil
	case KindOFX:
		return &OFXReader{}, nil
	case KindPDF:
		if opts.Model == nil {
			return nil, fmt.Errorf("New: %s: %w", kind, ErrNoModel)
		}
		return NewStatementParser(opts.Model, opts.ModelName), nil
	case KindOrders:
		if opts.Model == nil {
			return nil, fmt.Errorf("New: %s: %w", kind, ErrNoModel)
		}
		return NewOrderHistoryParser(opts.Model, opts.ModelName), nil
	}
	return nil, fmt.Errorf("New: %q: %w", kind, ErrUnknownKind)
}

// Open opens a local path or a gs:// URI for reading.
func Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.HasPrefix(location, "gs://") {
		return OpenGCS(ctx, location)
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	return f, nil
}

func parseDate(s, layout string) (civil.Date, error) {
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, fmt.Errorf("date %q: %w", s, err)
	}
	return civil.DateOf(t), nil
}
