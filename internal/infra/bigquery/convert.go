package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/ledger-import/internal/ledger"
)

func accountFromRow(r *AccountRow) *ledger.Account {
	return &ledger.Account{
		ID:          r.AccountID,
		Name:        r.Name,
		Currency:    r.Currency,
		Kind:        ledger.AccountKind(r.Kind),
		Placeholder: r.Placeholder,
	}
}

// entryRows flattens t into one row per entry.
func entryRows(t *ledger.Transaction, created time.Time) ([]*EntryRow, error) {
	rows := make([]*EntryRow, 0, t.Len())
	for i, e := range t.Entries() {
		tags, err := json.Marshal(e.Tags())
		if err != nil {
			return nil, fmt.Errorf("entryRows: encoding tags of %s: %w", e.ID, err)
		}
		row := &EntryRow{
			EntryID:         e.ID,
			TransactionID:   t.ID,
			TransactionDate: t.Date,
			Position:        int64(i),
			AccountID:       e.AccountID,
			Amount:          e.Amount,
			Memo:            bigquery.NullString{StringVal: e.Memo, Valid: e.Memo != ""},
			CheckNumber:     bigquery.NullString{StringVal: e.Check, Valid: e.Check != ""},
			ValueDate:       bigquery.NullDate{Date: e.ValueDate, Valid: !e.ValueDate.IsZero()},
			Tags:            bigquery.NullJSON{JSONVal: string(tags), Valid: len(e.Tags()) > 0},
			CreatedTS:       created,
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// transactionsFromRows groups rows, ordered by created_ts, transaction_id
// and position, back into transactions. It also returns each transaction's
// creation time.
func transactionsFromRows(rows []*EntryRow) ([]*ledger.Transaction, map[string]time.Time, error) {
	var txs []*ledger.Transaction
	created := make(map[string]time.Time)
	byID := make(map[string]*ledger.Transaction)

	for _, r := range rows {
		t, ok := byID[r.TransactionID]
		if !ok {
			t = ledger.NewTransaction(r.TransactionID, r.TransactionDate)
			byID[r.TransactionID] = t
			created[r.TransactionID] = r.CreatedTS
			txs = append(txs, t)
		}
		e := ledger.NewEntry(r.EntryID, r.AccountID, r.Amount)
		e.Memo = r.Memo.StringVal
		e.Check = r.CheckNumber.StringVal
		if r.ValueDate.Valid {
			e.ValueDate = r.ValueDate.Date
		}
		if r.Tags.Valid && r.Tags.JSONVal != "" {
			var tags map[ledger.Field]string
			if err := json.Unmarshal([]byte(r.Tags.JSONVal), &tags); err != nil {
				return nil, nil, fmt.Errorf("transactionsFromRows: entry %s tags: %w", r.EntryID, err)
			}
			for f, v := range tags {
				e.SetTag(f, v)
			}
		}
		t.AddEntry(e)
	}
	return txs, created, nil
}
