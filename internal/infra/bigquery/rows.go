package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

const (
	accountsTable = "accounts"
	entriesTable  = "entries"
)

type AccountRow struct {
	AccountID   string    `bigquery:"account_id"`  // REQUIRED
	Name        string    `bigquery:"name"`        // REQUIRED
	Currency    string    `bigquery:"currency"`    // NULLABLE
	Kind        string    `bigquery:"kind"`        // REQUIRED: CAPITAL or CATEGORY
	Placeholder bool      `bigquery:"placeholder"` // REQUIRED
	CreatedTS   time.Time `bigquery:"created_ts"`  // REQUIRED (default CURRENT_TIMESTAMP)
}

// EntryRow is one ledger entry. Transactions are not stored on their own:
// a transaction is the set of entries sharing a transaction_id.
type EntryRow struct {
	EntryID         string     `bigquery:"entry_id"`         // REQUIRED
	TransactionID   string     `bigquery:"transaction_id"`   // REQUIRED
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Position        int64      `bigquery:"position"`         // REQUIRED, order within the transaction

	AccountID string `bigquery:"account_id"` // REQUIRED
	Amount    int64  `bigquery:"amount"`     // REQUIRED, minor units

	Memo        bigquery.NullString `bigquery:"memo"`         // NULLABLE
	CheckNumber bigquery.NullString `bigquery:"check_number"` // NULLABLE
	ValueDate   bigquery.NullDate   `bigquery:"value_date"`   // NULLABLE

	Tags bigquery.NullJSON `bigquery:"tags"` // NULLABLE JSON object of tag → value

	// CreatedTS is when the transaction was first stored; it keeps the
	// book's transaction order stable across updates.
	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}
