package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/money"
	"github.com/dvloznov/ledger-import/internal/record"
)

// Result of decomposing one order.
type Result struct {
	Order *Order
	// Held is set when the order is not yet fully dispatched; nothing of it
	// may be booked.
	Held bool
	// Discarded is set for orders with neither shipments nor a total.
	Discarded bool
	// Reclassified lists already-booked items whose class or return pairing
	// changed; their entries must be updated.
	Reclassified []*Item
}

// Decomposer runs the per-order state machine.
type Decomposer struct {
	newPairID func() string
}

// NewDecomposer creates a decomposer.
func NewDecomposer() *Decomposer {
	return &Decomposer{newPairID: uuid.NewString}
}

// Decompose merges the records of one order into known, the order as booked
// by earlier imports (nil for none). Every known item must be accounted for
// by the records, otherwise ErrStaleItems is returned.
func (d *Decomposer) Decompose(ctx context.Context, orderID string, recs []*record.Record, known *Order) (*Result, error) {
	log := logger.FromContext(ctx).With().Str("order_id", orderID).Logger()

	o := known
	if o == nil {
		o = &Order{ID: orderID}
	}

	for _, r := range recs {
		switch r.Status {
		case "", record.StatusShipped, record.StatusCancelled:
		case record.StatusPlanned:
			log.Info().Str("record_key", r.Ref()).Msg("Order not yet dispatched, holding back")
			return &Result{Order: o, Held: true}, nil
		default:
			return nil, fmt.Errorf("Decompose: order %s line %d status %q: %w", orderID, r.Line, r.Status, ErrUnknownStatus)
		}
	}

	for _, r := range recs {
		o.absorb(r)
		if r.Status == record.StatusCancelled {
			continue
		}
		d.place(o, r)
	}

	if err := d.pairReturns(o); err != nil {
		return nil, fmt.Errorf("Decompose: order %s: %w", orderID, err)
	}
	consumePairs(o)

	var stale int
	for _, it := range o.Items() {
		if !it.IsNew() && !it.consumed {
			stale++
		}
	}
	if stale > 0 {
		return nil, fmt.Errorf("Decompose: order %s: %d item(s): %w", orderID, stale, ErrStaleItems)
	}

	if len(o.Shipments) == 0 && o.Total == 0 {
		// Fully cancelled; order-level postage has nothing left to land on.
		log.Debug().Msg("Discarding empty order")
		return &Result{Order: o, Discarded: true}, nil
	}

	if err := overrideOverseas(o); err != nil {
		return nil, fmt.Errorf("Decompose: order %s: %w", orderID, err)
	}
	if err := applyAdjustments(o); err != nil {
		return nil, fmt.Errorf("Decompose: order %s: %w", orderID, err)
	}

	res := &Result{Order: o}
	for _, it := range o.Items() {
		if it.reclassified && !it.IsNew() {
			res.Reclassified = append(res.Reclassified, it)
		}
	}
	log.Debug().
		Str("state", o.State().String()).
		Bool("has_return_shipment", o.HasReturnShipment()).
		Int("shipments", len(o.Shipments)).
		Msg("Order decomposed")
	return res, nil
}

// place puts one record's item into its shipment, consuming a known item
// when one matches.
func (d *Decomposer) place(o *Order, r *record.Record) {
	key := r.ShipmentKey
	if key == "" {
		key = r.TrackingNumber
	}
	s := o.shipment(key, r.Returned)
	if s == nil {
		s = &Shipment{Key: key, Returned: r.Returned}
		o.Shipments = append(o.Shipments, s)
	}
	s.absorb(r)

	cost := r.Amount
	if r.Returned {
		cost = -cost
	}
	class := ClassNormal
	switch {
	case r.Returned:
		class = ClassReturn
	case r.Exchanged:
		class = ClassExchange
	}

	for _, it := range s.Items {
		if it.consumed || !it.sameProduct(r.ASIN, r.Description) {
			continue
		}
		if !s.Overseas && it.ReportedCost != cost {
			continue
		}
		it.consumed = true
		if class == ClassExchange && it.Class == ClassNormal {
			it.Class = ClassExchange
			it.reclassified = true
		}
		return
	}

	s.Items = append(s.Items, &Item{
		Description:  r.Description,
		ReportedCost: cost,
		Cost:         cost,
		Quantity:     r.Quantity,
		Seller:       r.Seller,
		ASIN:         r.ASIN,
		Author:       r.Author,
		Class:        class,
		consumed:     true,
	})
}

// pairReturns links every new refund item to the sale it reverses.
func (d *Decomposer) pairReturns(o *Order) error {
	for _, rs := range o.Shipments {
		if !rs.Returned {
			continue
		}
		for _, refund := range rs.Items {
			if !refund.IsNew() || refund.ReturnPair != "" {
				continue
			}

			var sale *Item
			switch sales := o.NonReturnShipments(); len(sales) {
			case 0:
				s := &Shipment{
					Key:          rs.Key,
					Date:         o.Date,
					ExpectedDate: NotAvailable,
					Synthesized:  true,
				}
				sale = reversal(refund)
				s.Items = append(s.Items, sale)
				o.Shipments = append(o.Shipments, s)
			case 1:
				sale = sales[0].originalSale(refund)
				if sale == nil {
					sale = reversal(refund)
					sales[0].Items = append(sales[0].Items, sale)
				}
			default:
				return fmt.Errorf("refund of %s across %d shipments: %w", money.Format(-refund.ReportedCost), len(sales), ErrAmbiguousReturn)
			}

			pair := d.newPairID()
			refund.ReturnPair = pair
			sale.ReturnPair = pair
			sale.Class = ClassReturn
			sale.consumed = true
			sale.reclassified = true
		}
	}
	return nil
}

// originalSale finds the unpaired sale a refund reverses.
func (s *Shipment) originalSale(refund *Item) *Item {
	for _, it := range s.Items {
		if it.ReturnPair == "" && it.ReportedCost == -refund.ReportedCost && it.sameProduct(refund.ASIN, refund.Description) {
			return it
		}
	}
	return nil
}

func reversal(refund *Item) *Item {
	return &Item{
		Description:  refund.Description,
		ReportedCost: -refund.ReportedCost,
		Cost:         -refund.Cost,
		Quantity:     refund.Quantity,
		Seller:       refund.Seller,
		ASIN:         refund.ASIN,
		Author:       refund.Author,
		Class:        ClassReturn,
		consumed:     true,
	}
}

// consumePairs marks both halves of a return pair consumed once either is.
func consumePairs(o *Order) {
	consumed := make(map[string]bool)
	for _, it := range o.Items() {
		if it.consumed && it.ReturnPair != "" {
			consumed[it.ReturnPair] = true
		}
	}
	for _, it := range o.Items() {
		if consumed[it.ReturnPair] {
			it.consumed = true
		}
	}
}

// overrideOverseas books the order subtotal instead of a report-time
// converted price when an import-fee deposit shows the price is foreign.
func overrideOverseas(o *Order) error {
	if o.Subtotal == 0 {
		return nil
	}
	for _, s := range o.NonReturnShipments() {
		if !s.Overseas || s.ImportFees == 0 {
			continue
		}
		var sum int64
		for _, it := range s.Items {
			sum += it.ReportedCost
		}
		if sum == o.Subtotal {
			continue
		}
		if len(s.Items) != 1 {
			return fmt.Errorf("shipment %q with %d items: %w", s.Key, len(s.Items), ErrOverseasMultiItem)
		}
		if it := s.Items[0]; it.IsNew() {
			it.Cost = o.Subtotal
		}
	}
	return nil
}

// applyAdjustments spreads postage and promotion over the new items of the
// single sales shipment and books any gift card there.
func applyAdjustments(o *Order) error {
	adjust := o.Postage - o.Promotion
	if adjust == 0 && o.GiftCard == 0 {
		return nil
	}
	sales := o.NonReturnShipments()
	if len(sales) == 0 {
		return nil
	}
	if len(sales) > 1 {
		return fmt.Errorf("postage %s promotion %s gift card %s over %d shipments: %w",
			money.Format(o.Postage), money.Format(o.Promotion), money.Format(o.GiftCard), len(sales), ErrAdjustmentAmbiguous)
	}
	s := sales[0]
	items := s.NewItems()
	if s.known || len(items) == 0 {
		return nil
	}

	if adjust != 0 {
		costs := make([]int64, len(items))
		for i, it := range items {
			costs[i] = it.Cost
		}
		adjusted, err := money.Distribute(adjust, costs)
		if err != nil {
			return fmt.Errorf("distributing %s: %w", money.Format(adjust), err)
		}
		for i, it := range items {
			it.Cost = adjusted[i]
		}
	}
	s.GiftCard = o.GiftCard
	return nil
}

func (o *Order) absorb(r *record.Record) {
	if o.Date.IsZero() {
		o.Date = r.EffectiveDate()
	}
	if !r.OrderDate.IsZero() && r.OrderDate.Before(o.Date) {
		o.Date = r.OrderDate
	}
	setIfZero(&o.Total, r.OrderTotal)
	setIfZero(&o.Subtotal, r.OrderSubtotal)
	setIfZero(&o.Postage, r.Postage)
	setIfZero(&o.Promotion, r.Promotion)
	setIfZero(&o.GiftCard, r.GiftCard)
}

func (s *Shipment) absorb(r *record.Record) {
	if s.TrackingNumber == "" {
		s.TrackingNumber = r.TrackingNumber
	}
	if s.Date.IsZero() {
		s.Date = r.ShipmentDate
	}
	if s.DeliveryDate.IsZero() {
		s.DeliveryDate = r.DeliveryDate
	}
	if s.ExpectedDate == "" {
		s.ExpectedDate = r.ExpectedDate
	}
	if s.CardLastFour == "" {
		s.CardLastFour = r.CardLastFour
	}
	if !s.known {
		setIfZero(&s.ImportFees, r.ImportFeesDeposit)
	}
	if r.Overseas {
		s.Overseas = true
	}
}

func setIfZero(dst *int64, v int64) {
	if *dst == 0 {
		*dst = v
	}
}
