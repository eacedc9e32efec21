// Package record defines the flat shape every source reader produces and the
// importer consumes.
package record

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// Kind tells the importer how to treat a record.
type Kind string

const (
	// KindStatement is one row of a bank/card download (CSV, QIF, OFX).
	KindStatement Kind = "statement"
	// KindOrderItem is one item line of a marketplace order report.
	KindOrderItem Kind = "order_item"
)

// Shipment statuses accepted on order records.
const (
	StatusShipped   = "Shipped"
	StatusCancelled = "Cancelled"
	StatusPlanned   = "Shipment planned"
)

var (
	ErrMissingKey     = errors.New("missing external key")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidDate    = errors.New("invalid date")
	ErrMissingAccount = errors.New("missing account")
)

// Record is one row/unit of external data. Multiple records sharing a Key
// belong to one logical transaction (for orders: one order).
type Record struct {
	Kind Kind

	// Key is the stable external key: FITID for statement rows, order number
	// for order items. Optional for statement rows.
	Key         string
	Amount      int64
	Date        civil.Date
	Description string
	Check       string

	Quantity  int
	UnitPrice int64
	Seller    string
	ASIN      string
	Author    string

	// Shipment-level fields.
	ShipmentKey       string
	TrackingNumber    string
	Status            string
	ShipmentDate      civil.Date
	DeliveryDate      civil.Date
	ExpectedDate      string
	CardLastFour      string
	ImportFeesDeposit int64

	Returned  bool
	Exchanged bool
	Overseas  bool

	// Order-level fields; repeated on every item of the order by most
	// reports, only the first non-zero value is used.
	OrderDate     civil.Date
	OrderTotal    int64
	OrderSubtotal int64
	Postage       int64
	Promotion     int64
	GiftCard      int64

	// Line is the 1-based position in the source, for error messages.
	Line int
}

// Ref names the record in errors and logs.
func (r *Record) Ref() string {
	if r.Key != "" {
		return r.Key
	}
	return fmt.Sprintf("line %d", r.Line)
}

// Validate checks the mandatory fields for the record's kind.
func (r *Record) Validate() error {
	if r.Date.IsZero() && r.OrderDate.IsZero() {
		return fmt.Errorf("record %s: %w", r.Ref(), ErrInvalidDate)
	}
	if !r.Date.IsZero() && !r.Date.IsValid() {
		return fmt.Errorf("record %s: date %s: %w", r.Ref(), r.Date, ErrInvalidDate)
	}
	switch r.Kind {
	case KindOrderItem:
		if strings.TrimSpace(r.Key) == "" {
			return fmt.Errorf("record %s: order item without order number: %w", r.Ref(), ErrMissingKey)
		}
		if r.Amount < 0 {
			return fmt.Errorf("record %s: item cost %d: %w", r.Ref(), r.Amount, ErrInvalidAmount)
		}
	case KindStatement, "":
		if r.Amount == 0 {
			return fmt.Errorf("record %s: zero amount: %w", r.Ref(), ErrInvalidAmount)
		}
	default:
		return fmt.Errorf("record %s: unknown kind %q", r.Ref(), r.Kind)
	}
	return nil
}

// EffectiveDate is the record date, falling back to the order date.
func (r *Record) EffectiveDate() civil.Date {
	if !r.Date.IsZero() {
		return r.Date
	}
	return r.OrderDate
}

// Batch is one import pass worth of records from a single source.
type Batch struct {
	ID string
	// Source names the reader, e.g. "csv", "ofx", "orders".
	Source string
	// AccountID is the capital account the source describes.
	AccountID string
	// Authoritative marks sources whose amounts supersede matched entries
	// (e.g. "total charged" beats an earlier "item subtotal" import).
	Authoritative bool
	Records       []*Record
}

// Validate checks the batch header; records are validated individually.
func (b *Batch) Validate() error {
	if strings.TrimSpace(b.AccountID) == "" {
		return fmt.Errorf("batch %s: %w", b.ID, ErrMissingAccount)
	}
	return nil
}
