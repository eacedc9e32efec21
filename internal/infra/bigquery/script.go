package bigquery

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/ledger-import/internal/ledger"
)

// applyScript is a multi-statement BigQuery transaction applying one set of
// ledger changes.
type applyScript struct {
	SQL    string
	Params []bigquery.QueryParameter
}

var entryColumns = []string{
	"entry_id", "transaction_id", "transaction_date", "position",
	"account_id", "amount", "memo", "check_number", "value_date", "tags", "created_ts",
}

// buildApplyScript replaces the entries of every updated and deleted
// transaction and inserts the entries of created and updated ones, all in
// one transaction. created holds the stored creation time of existing
// transactions; new ones get now.
func buildApplyScript(table string, changes ledger.Changes, created map[string]time.Time, now time.Time) (*applyScript, error) {
	if changes.Empty() {
		return nil, nil
	}

	var replaced []string
	for _, t := range changes.Updated {
		replaced = append(replaced, t.ID)
	}
	replaced = append(replaced, changes.Deleted...)

	var rows []*EntryRow
	for _, t := range changes.Created {
		r, err := entryRows(t, now)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r...)
	}
	for _, t := range changes.Updated {
		ts, ok := created[t.ID]
		if !ok {
			return nil, fmt.Errorf("buildApplyScript: updating transaction %s: %w", t.ID, ledger.ErrNotFound)
		}
		r, err := entryRows(t, ts)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r...)
	}

	var b strings.Builder
	script := &applyScript{}
	b.WriteString("BEGIN TRANSACTION;\n")
	if len(replaced) > 0 {
		fmt.Fprintf(&b, "DELETE FROM `%s` WHERE transaction_id IN UNNEST(@replaced);\n", table)
		script.Params = append(script.Params, bigquery.QueryParameter{Name: "replaced", Value: replaced})
	}
	if len(rows) > 0 {
		fmt.Fprintf(&b, "INSERT INTO `%s` (%s) VALUES\n", table, strings.Join(entryColumns, ", "))
		for i, r := range rows {
			p := fmt.Sprintf("e%d_", i)
			values := make([]string, len(entryColumns))
			for j, col := range entryColumns {
				values[j] = "@" + p + col
			}
			// tags arrive as text
			values[9] = "PARSE_JSON(@" + p + "tags)"
			sep := ","
			if i == len(rows)-1 {
				sep = ";"
			}
			fmt.Fprintf(&b, "  (%s)%s\n", strings.Join(values, ", "), sep)

			tags := "{}"
			if r.Tags.Valid {
				tags = r.Tags.JSONVal
			}
			script.Params = append(script.Params,
				bigquery.QueryParameter{Name: p + "entry_id", Value: r.EntryID},
				bigquery.QueryParameter{Name: p + "transaction_id", Value: r.TransactionID},
				bigquery.QueryParameter{Name: p + "transaction_date", Value: r.TransactionDate},
				bigquery.QueryParameter{Name: p + "position", Value: r.Position},
				bigquery.QueryParameter{Name: p + "account_id", Value: r.AccountID},
				bigquery.QueryParameter{Name: p + "amount", Value: r.Amount},
				bigquery.QueryParameter{Name: p + "memo", Value: r.Memo},
				bigquery.QueryParameter{Name: p + "check_number", Value: r.CheckNumber},
				bigquery.QueryParameter{Name: p + "value_date", Value: r.ValueDate},
				bigquery.QueryParameter{Name: p + "tags", Value: tags},
				bigquery.QueryParameter{Name: p + "created_ts", Value: r.CreatedTS},
			)
		}
	}
	b.WriteString("COMMIT TRANSACTION;\n")
	script.SQL = b.String()
	return script, nil
}
