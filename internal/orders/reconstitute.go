package orders

import (
	"strconv"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-import/internal/ledger"
)

// Entry roles written on materialised entries.
const (
	RoleItem       = "item"
	RoleCharge     = "charge"
	RoleImportFees = "import_fees"
	RoleGiftCard   = "gift_card"
)

// Reconstitute rebuilds what earlier imports booked for an order from the
// ledger entries tagged with its order id. Only item entries become items;
// the shipments they belong to are marked as already booked.
func Reconstitute(orderID string, entries []*ledger.Entry) *Order {
	o := &Order{ID: orderID}
	for _, e := range entries {
		if e.Tag(ledger.FieldOrderID) != orderID {
			continue
		}
		switch e.Tag(ledger.FieldRole) {
		case RoleItem:
		case RoleImportFees:
			s := o.knownShipment(e)
			s.ImportFees += e.Amount
			continue
		default:
			continue
		}

		s := o.knownShipment(e)
		it := &Item{
			Description:  e.Memo,
			Cost:         e.Amount,
			ReportedCost: e.Amount,
			Seller:       e.Tag(ledger.FieldSeller),
			ASIN:         e.Tag(ledger.FieldASIN),
			Author:       e.Tag(ledger.FieldAuthor),
			Class:        Class(e.Tag(ledger.FieldClass)),
			ReturnPair:   e.Tag(ledger.FieldReturnPair),
			Entry:        e,
		}
		if v, err := strconv.ParseInt(e.Tag(ledger.FieldReportedCost), 10, 64); err == nil {
			it.ReportedCost = v
		}
		if d := e.Tag(ledger.FieldDescription); d != "" {
			it.Description = d
		}
		if q, err := strconv.Atoi(e.Tag(ledger.FieldQuantity)); err == nil {
			it.Quantity = q
		}
		if it.Class == "" {
			it.Class = ClassNormal
		}
		s.Items = append(s.Items, it)
		if o.Date.IsZero() || e.Date().Before(o.Date) {
			o.Date = e.Date()
		}
	}
	return o
}

func (o *Order) knownShipment(e *ledger.Entry) *Shipment {
	key := e.Tag(ledger.FieldShipmentKey)
	returned := e.Tag(ledger.FieldReturned) == "true"
	if s := o.shipment(key, returned); s != nil {
		return s
	}
	s := &Shipment{
		Key:            key,
		TrackingNumber: e.Tag(ledger.FieldTrackingNumber),
		ExpectedDate:   e.Tag(ledger.FieldExpectedDate),
		CardLastFour:   e.Tag(ledger.FieldCardLastFour),
		Returned:       returned,
		known:          true,
	}
	s.Synthesized = s.ExpectedDate == NotAvailable
	if d, err := civil.ParseDate(e.Tag(ledger.FieldShipmentDate)); err == nil {
		s.Date = d
	}
	o.Shipments = append(o.Shipments, s)
	return s
}
