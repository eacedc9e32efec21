package record

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
)

func TestRecord_Validate(t *testing.T) {
	day := civil.Date{Year: 2023, Month: 3, Day: 1}

	tests := []struct {
		name    string
		rec     Record
		wantErr error
	}{
		{
			name: "statement row",
			rec:  Record{Kind: KindStatement, Amount: -1999, Date: day, Description: "Coffee"},
		},
		{
			name: "statement row without kind",
			rec:  Record{Amount: 100, Date: day},
		},
		{
			name:    "zero amount",
			rec:     Record{Kind: KindStatement, Date: day},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "missing date",
			rec:     Record{Kind: KindStatement, Amount: 5},
			wantErr: ErrInvalidDate,
		},
		{
			name:    "impossible date",
			rec:     Record{Kind: KindStatement, Amount: 5, Date: civil.Date{Year: 2023, Month: 2, Day: 30}},
			wantErr: ErrInvalidDate,
		},
		{
			name: "order item dated by order date",
			rec:  Record{Kind: KindOrderItem, Key: "111-222", Amount: 500, OrderDate: day},
		},
		{
			name:    "order item without order number",
			rec:     Record{Kind: KindOrderItem, Amount: 500, Date: day},
			wantErr: ErrMissingKey,
		},
		{
			name:    "order item with negative cost",
			rec:     Record{Kind: KindOrderItem, Key: "111", Amount: -500, Date: day},
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecord_Ref(t *testing.T) {
	withKey := Record{Key: "FIT-1", Line: 3}
	if got := withKey.Ref(); got != "FIT-1" {
		t.Errorf("Ref() = %q, want FIT-1", got)
	}
	withoutKey := Record{Line: 3}
	if got := withoutKey.Ref(); got != "line 3" {
		t.Errorf("Ref() = %q, want %q", got, "line 3")
	}
}

func TestBatch_Validate(t *testing.T) {
	b := &Batch{ID: "b1"}
	if err := b.Validate(); !errors.Is(err, ErrMissingAccount) {
		t.Errorf("Validate() error = %v, want ErrMissingAccount", err)
	}
	b.AccountID = "card"
	if err := b.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}
