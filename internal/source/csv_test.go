package source

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/ledger-import/internal/record"
)

func TestCSVReader_Read(t *testing.T) {
	march := func(d int) civil.Date { return civil.Date{Year: 2023, Month: 3, Day: d} }

	tests := []struct {
		name    string
		columns Columns
		input   string
		want    []*record.Record
		wantErr error
	}{
		{
			name:  "default columns",
			input: "Date,Amount,Description\n2023-03-01,19.99,Coffee beans\n",
			want: []*record.Record{
				{Kind: record.KindStatement, Amount: 1999, Date: march(1), Description: "Coffee beans", Line: 2},
			},
		},
		{
			name: "mapped columns with key and check",
			columns: Columns{
				Date: "Posted", Amount: "Value", Description: "Payee", Key: "Ref", Check: "Cheque",
				DateLayout: "02/01/2006", Comma: ';',
			},
			input: "Posted;Value;Payee;Ref;Cheque\n01/03/2023;-1,234.50;Rent;R-1;101\n\n02/03/2023;(5.00);Fee;R-2;\n",
			want: []*record.Record{
				{Kind: record.KindStatement, Key: "R-1", Amount: -123450, Date: march(1), Description: "Rent", Check: "101", Line: 2},
				{Kind: record.KindStatement, Key: "R-2", Amount: -500, Date: march(2), Description: "Fee", Line: 4},
			},
		},
		{
			name:    "debit and credit columns",
			columns: Columns{Debit: "Paid out", Credit: "Paid in"},
			input:   "Date,Description,Paid out,Paid in\n2023-03-01,Shop,12.00,\n2023-03-02,Salary,,2000.00\n",
			want: []*record.Record{
				{Kind: record.KindStatement, Amount: -1200, Date: march(1), Description: "Shop", Line: 2},
				{Kind: record.KindStatement, Amount: 200000, Date: march(2), Description: "Salary", Line: 3},
			},
		},
		{
			name:    "negated card export",
			columns: Columns{Negate: true},
			input:   "\ufeffDate,Amount,Description\n2023-03-01,19.99,Coffee beans\n",
			want: []*record.Record{
				{Kind: record.KindStatement, Amount: -1999, Date: march(1), Description: "Coffee beans", Line: 2},
			},
		},
		{
			name:    "missing column",
			columns: Columns{Key: "FITID"},
			input:   "Date,Amount,Description\n2023-03-01,19.99,Coffee\n",
			wantErr: ErrMissingColumn,
		},
		{
			name:    "bad amount",
			input:   "Date,Amount,Description\n2023-03-01,abc,Coffee\n",
			wantErr: ErrMalformed,
		},
		{
			name:    "bad date",
			input:   "Date,Amount,Description\n03/01/2023,1.00,Coffee\n",
			wantErr: ErrMalformed,
		},
		{
			name:  "empty input",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &CSVReader{Columns: tt.columns}
			got, err := reader.Read(context.Background(), strings.NewReader(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Read() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Read() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCSVReader_ErrorNamesLine(t *testing.T) {
	reader := &CSVReader{}
	_, err := reader.Read(context.Background(), strings.NewReader("Date,Amount,Description\n2023-03-01,1.00,a\n2023-03-02,x,b\n"))
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("Read() error = %v, want it to name line 3", err)
	}
}
