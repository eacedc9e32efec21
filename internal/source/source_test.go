package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	gen := answering("[]")
	tests := []struct {
		kind    Kind
		opts    Options
		want    Reader
		wantErr error
	}{
		{kind: KindCSV, want: &CSVReader{}},
		{kind: "CSV", want: &CSVReader{}},
		{kind: KindXLSX, want: &XLSXReader{}},
		{kind: KindQIF, opts: Options{DateLayout: "02/01/2006"}, want: &QIFReader{DateLayout: "02/01/2006"}},
		{kind: KindOFX, want: &OFXReader{}},
		{kind: KindPDF, wantErr: ErrNoModel},
		{kind: KindOrders, wantErr: ErrNoModel},
		{kind: KindOrders, opts: Options{Model: gen}, want: NewOrderHistoryParser(gen, "")},
		{kind: "mt940", wantErr: ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := New(tt.kind, tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			switch want := tt.want.(type) {
			case *QIFReader:
				if got.(*QIFReader).DateLayout != want.DateLayout {
					t.Errorf("New() = %+v, want %+v", got, want)
				}
			case *OrderHistoryParser:
				if p := got.(*OrderHistoryParser); p.model != DefaultModelName {
					t.Errorf("model = %q, want default", p.model)
				}
			default:
				if gotT, wantT := typeName(got), typeName(tt.want); gotT != wantT {
					t.Errorf("New() = %s, want %s", gotT, wantT)
				}
			}
		})
	}
}

func typeName(r Reader) string {
	switch r.(type) {
	case *CSVReader:
		return "csv"
	case *XLSXReader:
		return "xlsx"
	case *OFXReader:
		return "ofx"
	}
	return "other"
}

func TestOpen_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statement.csv")
	if err := os.WriteFile(path, []byte("Date,Amount,Description\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	rc, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil || string(data) != "Date,Amount,Description\n" {
		t.Errorf("read %q, %v", data, err)
	}

	if _, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open(missing) error = %v, want ErrNotExist", err)
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{uri: "gs://imports/2023/march.ofx", wantBucket: "imports", wantObject: "2023/march.ofx"},
		{uri: "gs://imports", wantErr: true},
		{uri: "gs://imports/", wantErr: true},
		{uri: "s3://imports/march.ofx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseGCSURI() = %q, %q; want %q, %q", bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestFilenameAndKind(t *testing.T) {
	if got := FilenameFromGCSURI("gs://bucket/folder/march.QFX"); got != "march.QFX" {
		t.Errorf("FilenameFromGCSURI() = %q", got)
	}
	tests := map[string]Kind{
		"march.csv":  KindCSV,
		"march.xlsx": KindXLSX,
		"march.qif":  KindQIF,
		"march.QFX":  KindOFX,
		"march.pdf":  KindPDF,
	}
	for name, want := range tests {
		if got, ok := KindFromFilename(name); !ok || got != want {
			t.Errorf("KindFromFilename(%q) = %q, %v; want %q", name, got, ok, want)
		}
	}
	if _, ok := KindFromFilename("orders.txt"); ok {
		t.Error("KindFromFilename(orders.txt) matched a kind")
	}
}
