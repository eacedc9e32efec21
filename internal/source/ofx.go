package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/aclindsa/ofxgo"

	"github.com/dvloznov/ledger-import/internal/money"
	"github.com/dvloznov/ledger-import/internal/record"
)

// OFXReader reads the bank and credit card statements of an OFX or QFX
// download. FITIDs become record keys.
type OFXReader struct{}

func (rd *OFXReader) Read(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	resp, err := ofxgo.ParseResponse(r)
	if err != nil {
		return nil, fmt.Errorf("OFXReader.Read: %w: %w", ErrMalformed, err)
	}
	if len(resp.Bank) == 0 && len(resp.CreditCard) == 0 {
		return nil, fmt.Errorf("OFXReader.Read: %w: no bank or credit card statements", ErrMalformed)
	}

	var recs []*record.Record
	for _, msg := range append(resp.Bank, resp.CreditCard...) {
		var trns []ofxgo.Transaction
		switch stmt := msg.(type) {
		case *ofxgo.StatementResponse:
			if stmt.BankTranList != nil {
				trns = stmt.BankTranList.Transactions
			}
		case *ofxgo.CCStatementResponse:
			if stmt.BankTranList != nil {
				trns = stmt.BankTranList.Transactions
			}
		default:
			return nil, fmt.Errorf("OFXReader.Read: %w: unexpected message %T", ErrMalformed, msg)
		}

		for _, tr := range trns {
			amount, err := money.ParseAmount(tr.TrnAmt.String())
			if err != nil {
				return nil, fmt.Errorf("OFXReader.Read: %w: FITID %s: %w", ErrMalformed, tr.FiTID, err)
			}
			desc := strings.TrimSpace(string(tr.Name))
			if desc == "" && tr.Payee != nil {
				desc = strings.TrimSpace(string(tr.Payee.Name))
			}
			if desc == "" {
				desc = strings.TrimSpace(string(tr.Memo))
			}
			recs = append(recs, &record.Record{
				Kind:        record.KindStatement,
				Key:         string(tr.FiTID),
				Amount:      amount,
				Date:        civil.DateOf(tr.DtPosted.Time),
				Description: desc,
				Check:       string(tr.CheckNum),
				Line:        len(recs) + 1,
			})
		}
	}
	return recs, nil
}

var _ Reader = (*OFXReader)(nil)
