package ledger

import (
	"maps"

	"cloud.google.com/go/civil"
)

// AccountKind separates balance-holding accounts from classification ones.
type AccountKind string

const (
	// KindCapital is a bank, card or brokerage account that holds a balance.
	KindCapital AccountKind = "CAPITAL"
	// KindCategory is an income/expense classification.
	KindCategory AccountKind = "CATEGORY"
)

// Account is looked up by importers, never created by them.
type Account struct {
	ID       string
	Name     string
	Currency string
	Kind     AccountKind
	// Placeholder marks the default "not yet classified" account that
	// importers post to when they know nothing better.
	Placeholder bool
}

// Field names a tagged, source-specific value on an entry.
type Field string

const (
	FieldUniqueID       Field = "unique_id"
	FieldOrderID        Field = "order_id"
	FieldShipmentKey    Field = "shipment_key"
	FieldTrackingNumber Field = "tracking_number"
	FieldShipmentDate   Field = "shipment_date"
	FieldExpectedDate   Field = "expected_date"
	FieldCardLastFour   Field = "card_last_four"
	FieldReturned       Field = "returned"
	FieldASIN           Field = "asin"
	FieldDescription    Field = "description"
	FieldAuthor         Field = "author"
	FieldSeller         Field = "seller"
	FieldQuantity       Field = "quantity"
	FieldReportedCost   Field = "reported_cost"
	FieldClass          Field = "class"
	FieldReturnPair     Field = "return_pair"
	FieldRole           Field = "role"
	FieldBatchID        Field = "batch_id"
)

// ExternalKeyFields identify "the same real-world event" across imports.
// An entry carrying any of them has been claimed by an earlier import.
var ExternalKeyFields = []Field{
	FieldUniqueID,
	FieldOrderID,
	FieldShipmentKey,
	FieldTrackingNumber,
	FieldShipmentDate,
}

// Entry is one signed line of a transaction posted to one account.
type Entry struct {
	ID        string
	AccountID string
	// Amount is in minor currency units.
	Amount    int64
	Memo      string
	Check     string
	ValueDate civil.Date

	tags map[Field]string
	tx   *Transaction
}

// NewEntry builds a detached entry, used by stores when restoring a ledger.
// Attach it with Transaction.AddEntry.
func NewEntry(id, accountID string, amount int64) *Entry {
	return &Entry{ID: id, AccountID: accountID, Amount: amount}
}

// Transaction returns the owning transaction.
func (e *Entry) Transaction() *Transaction { return e.tx }

// Date is the owning transaction's date.
func (e *Entry) Date() civil.Date {
	if e.tx == nil {
		return civil.Date{}
	}
	return e.tx.Date
}

// Tag returns the value of f, or "".
func (e *Entry) Tag(f Field) string { return e.tags[f] }

// HasTag reports whether f is set.
func (e *Entry) HasTag(f Field) bool {
	_, ok := e.tags[f]
	return ok
}

// SetTag sets f; an empty value removes it.
func (e *Entry) SetTag(f Field, v string) {
	if v == "" {
		delete(e.tags, f)
		return
	}
	if e.tags == nil {
		e.tags = make(map[Field]string)
	}
	e.tags[f] = v
}

// Tags returns a copy of all tagged fields.
func (e *Entry) Tags() map[Field]string {
	return maps.Clone(e.tags)
}

// HasExternalKey reports whether an earlier import already claimed this entry.
func (e *Entry) HasExternalKey() bool {
	for _, f := range ExternalKeyFields {
		if e.HasTag(f) {
			return true
		}
	}
	return false
}

func (e *Entry) clone(tx *Transaction) *Entry {
	c := *e
	c.tags = maps.Clone(e.tags)
	c.tx = tx
	return &c
}

func (e *Entry) equal(o *Entry) bool {
	return e.ID == o.ID &&
		e.AccountID == o.AccountID &&
		e.Amount == o.Amount &&
		e.Memo == o.Memo &&
		e.Check == o.Check &&
		e.ValueDate == o.ValueDate &&
		maps.Equal(e.tags, o.tags)
}
