package orders

import (
	"fmt"
	"strconv"

	"github.com/dvloznov/ledger-import/internal/ledger"
)

// Accounts names where materialised entries are posted.
type Accounts struct {
	// Capital is the card or bank account charged for the order.
	Capital    string
	Items      string
	Returns    string
	Exchange   string
	ImportFees string
	GiftCard   string
}

func (a Accounts) forClass(c Class) string {
	switch c {
	case ClassReturn:
		return a.Returns
	case ClassExchange:
		return a.Exchange
	}
	return a.Items
}

// Charge is the transaction booked for one shipment and its entry on the
// capital account, which is what gets matched against the statement.
type Charge struct {
	Shipment *Shipment
	Tx       *ledger.Transaction
	Entry    *ledger.Entry
}

// Materialize books every shipment that has new items as one transaction in
// cs. Item entries go to the account of their class, import fees and gift
// card get their own entries, and the charge entry balances the rest.
func Materialize(cs *ledger.Changeset, o *Order, accts Accounts) ([]*Charge, error) {
	if err := accts.check(o); err != nil {
		return nil, fmt.Errorf("Materialize: order %s: %w", o.ID, err)
	}

	var charges []*Charge
	for _, s := range o.Shipments {
		items := s.NewItems()
		if len(items) == 0 {
			continue
		}
		date := s.Date
		if date.IsZero() {
			date = o.Date
		}
		tx := cs.CreateTransaction(date)

		var sum int64
		for _, it := range items {
			e := tx.CreateEntry()
			e.AccountID = accts.forClass(it.Class)
			e.Amount = it.Cost
			e.Memo = it.Description
			tagShipment(e, o, s, RoleItem)
			tagItem(e, it)
			it.Entry = e
			sum += e.Amount
		}
		if s.ImportFees != 0 && !s.known {
			e := tx.CreateEntry()
			e.AccountID = accts.ImportFees
			e.Amount = s.ImportFees
			e.Memo = "Import fees deposit"
			tagShipment(e, o, s, RoleImportFees)
			sum += e.Amount
		}
		if s.GiftCard != 0 {
			e := tx.CreateEntry()
			e.AccountID = accts.GiftCard
			e.Amount = -s.GiftCard
			e.Memo = "Gift card"
			tagShipment(e, o, s, RoleGiftCard)
			sum += e.Amount
		}

		charge := tx.CreateEntry()
		charge.AccountID = accts.Capital
		charge.Amount = -sum
		charge.Memo = "Order " + o.ID
		tagShipment(charge, o, s, RoleCharge)
		charge.SetTag(ledger.FieldCardLastFour, s.CardLastFour)

		charges = append(charges, &Charge{Shipment: s, Tx: tx, Entry: charge})
	}
	return charges, nil
}

// Reclassify updates the entries of already-booked items whose class or
// return pairing changed. Entries the user moved off the default items
// account keep their account.
func Reclassify(items []*Item, accts Accounts) {
	for _, it := range items {
		e := it.Entry
		if e == nil {
			continue
		}
		e.SetTag(ledger.FieldClass, string(it.Class))
		e.SetTag(ledger.FieldReturnPair, it.ReturnPair)
		if e.AccountID == accts.Items {
			e.AccountID = accts.forClass(it.Class)
		}
	}
}

func (a Accounts) check(o *Order) error {
	need := map[string]string{"capital": a.Capital, "items": a.Items}
	for _, s := range o.Shipments {
		if len(s.NewItems()) == 0 {
			continue
		}
		for _, it := range s.NewItems() {
			switch it.Class {
			case ClassReturn:
				need["returns"] = a.Returns
			case ClassExchange:
				need["exchange"] = a.Exchange
			}
		}
		if s.ImportFees != 0 && !s.known {
			need["import fees"] = a.ImportFees
		}
		if s.GiftCard != 0 {
			need["gift card"] = a.GiftCard
		}
	}
	for name, id := range need {
		if id == "" {
			return fmt.Errorf("%s: %w", name, ErrNoAccount)
		}
	}
	return nil
}

func tagShipment(e *ledger.Entry, o *Order, s *Shipment, role string) {
	e.SetTag(ledger.FieldRole, role)
	e.SetTag(ledger.FieldOrderID, o.ID)
	e.SetTag(ledger.FieldShipmentKey, s.Key)
	e.SetTag(ledger.FieldTrackingNumber, s.TrackingNumber)
	e.SetTag(ledger.FieldExpectedDate, s.ExpectedDate)
	if !s.Date.IsZero() {
		e.SetTag(ledger.FieldShipmentDate, s.Date.String())
	}
	if s.Returned {
		e.SetTag(ledger.FieldReturned, "true")
	}
}

func tagItem(e *ledger.Entry, it *Item) {
	e.SetTag(ledger.FieldASIN, it.ASIN)
	e.SetTag(ledger.FieldDescription, it.Description)
	e.SetTag(ledger.FieldSeller, it.Seller)
	e.SetTag(ledger.FieldAuthor, it.Author)
	e.SetTag(ledger.FieldClass, string(it.Class))
	e.SetTag(ledger.FieldReturnPair, it.ReturnPair)
	e.SetTag(ledger.FieldReportedCost, strconv.FormatInt(it.ReportedCost, 10))
	if it.Quantity > 0 {
		e.SetTag(ledger.FieldQuantity, strconv.Itoa(it.Quantity))
	}
}
