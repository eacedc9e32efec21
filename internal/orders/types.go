// Package orders turns flat marketplace order records into shipments and
// items, handling returns and exchanges, and materialises them as ledger
// transactions.
package orders

import (
	"errors"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-import/internal/ledger"
)

var (
	ErrAmbiguousReturn     = errors.New("return matches more than one shipment")
	ErrOverseasMultiItem   = errors.New("overseas shipment needing a subtotal override has more than one item")
	ErrStaleItems          = errors.New("previously imported items no longer reported by the source")
	ErrAdjustmentAmbiguous = errors.New("order-level adjustment with more than one shipment")
	ErrUnknownStatus       = errors.New("unknown shipment status")
	ErrNoAccount           = errors.New("no account configured")
)

// NotAvailable is the expected date written on a shipment synthesised for a
// return whose original sale was never imported.
const NotAvailable = "original shipment data not available"

// Class is the classification an item is booked under.
type Class string

const (
	ClassNormal   Class = "normal"
	ClassReturn   Class = "return"
	ClassExchange Class = "exchange"
)

// State of an order's decomposition. Whether the order also holds a return
// shipment is reported separately by HasReturnShipment.
type State int

const (
	StateNew State = iota
	StateHasShipment
)

func (s State) String() string {
	if s == StateHasShipment {
		return "HAS_SHIPMENT"
	}
	return "NEW"
}

// Item is one line of a shipment.
type Item struct {
	Description string
	// ReportedCost is the signed cost as the source reported it, before any
	// override or distributed adjustment. Cost is what gets booked.
	ReportedCost int64
	Cost         int64
	Quantity     int
	Seller       string
	ASIN         string
	Author       string
	Class        Class
	// ReturnPair links a refund item to the sale item it reverses.
	ReturnPair string

	// Entry is the ledger entry of an item materialised by an earlier
	// import; nil for items created in this pass.
	Entry *ledger.Entry

	consumed     bool
	reclassified bool
}

// IsNew reports whether the item still has to be booked.
func (i *Item) IsNew() bool { return i.Entry == nil }

func (i *Item) sameProduct(asin, description string) bool {
	if asin != "" || i.ASIN != "" {
		return i.ASIN == asin
	}
	return i.Description == description
}

// Shipment groups items that ship and charge together.
type Shipment struct {
	Key            string
	TrackingNumber string
	Date           civil.Date
	DeliveryDate   civil.Date
	ExpectedDate   string
	CardLastFour   string
	ImportFees     int64
	GiftCard       int64
	Returned       bool
	Overseas       bool
	Synthesized    bool
	Items          []*Item

	// known marks shipments already booked by an earlier import.
	known bool
}

// NewItems returns the items still to be booked.
func (s *Shipment) NewItems() []*Item {
	var out []*Item
	for _, it := range s.Items {
		if it.IsNew() {
			out = append(out, it)
		}
	}
	return out
}

// Order groups shipments by external order number.
type Order struct {
	ID        string
	Date      civil.Date
	Total     int64
	Subtotal  int64
	Postage   int64
	Promotion int64
	GiftCard  int64
	Shipments []*Shipment
}

// State is NEW until the first non-return shipment exists.
func (o *Order) State() State {
	if len(o.NonReturnShipments()) > 0 {
		return StateHasShipment
	}
	return StateNew
}

// HasReturnShipment reports whether a returned item has been seen.
func (o *Order) HasReturnShipment() bool {
	for _, s := range o.Shipments {
		if s.Returned {
			return true
		}
	}
	return false
}

// NonReturnShipments returns the shipments that carry sales.
func (o *Order) NonReturnShipments() []*Shipment {
	var out []*Shipment
	for _, s := range o.Shipments {
		if !s.Returned {
			out = append(out, s)
		}
	}
	return out
}

// Items returns every item of every shipment.
func (o *Order) Items() []*Item {
	var out []*Item
	for _, s := range o.Shipments {
		out = append(out, s.Items...)
	}
	return out
}

func (o *Order) shipment(key string, returned bool) *Shipment {
	for _, s := range o.Shipments {
		if s.Key == key && s.Returned == returned {
			return s
		}
	}
	return nil
}
