package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/ledger-import/internal/record"
)

const orderHistoryPrompt = "You are a parser for online marketplace order history pages.\n\n" +
	"Task:\n" +
	"- The text below was copied from the order history and order detail pages.\n" +
	"- Output one JSON object per item line of every order, including returned and cancelled items.\n" +
	"- Output STRICT JSON only: a JSON array of objects.\n\n" +
	"Each object must have these fields (null when not shown):\n" +
	"- \"order_id\": string\n" +
	"- \"order_date\": string \"YYYY-MM-DD\"\n" +
	"- \"description\": string, the item title\n" +
	"- \"cost\": string with two decimals, the item price times quantity, always positive\n" +
	"- \"quantity\": number\n" +
	"- \"seller\", \"asin\", \"author\": string or null\n" +
	"- \"status\": one of \"Shipped\", \"Cancelled\", \"Shipment planned\"\n" +
	"- \"shipment_key\": string identifying the shipment within the order\n" +
	"- \"tracking_number\": string or null\n" +
	"- \"shipment_date\", \"delivery_date\": string \"YYYY-MM-DD\" or null\n" +
	"- \"expected_date\": string as shown, or null\n" +
	"- \"card_last_four\": string or null\n" +
	"- \"returned\", \"exchanged\", \"overseas\": boolean\n" +
	"- \"import_fees_deposit\": string or null\n" +
	"- \"order_total\", \"order_subtotal\", \"postage\", \"promotion\", \"gift_card\": string or null, repeated on every item of the order\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Output must begin with \"[\" and end with \"]\".\n\n" +
	"Order history:\n"

// OrderHistoryParser turns copied order history text into order item
// records through a Gemini model.
type OrderHistoryParser struct {
	gen   Generator
	model string
}

// NewOrderHistoryParser creates a parser; an empty model means
// DefaultModelName.
func NewOrderHistoryParser(gen Generator, model string) *OrderHistoryParser {
	if model == "" {
		model = DefaultModelName
	}
	return &OrderHistoryParser{gen: gen, model: model}
}

func (p *OrderHistoryParser) Read(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	text, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("OrderHistoryParser.Read: reading input: %w", err)
	}
	if strings.TrimSpace(string(text)) == "" {
		return nil, nil
	}

	items, err := generateJSONArray(ctx, p.gen, p.model, &genai.Part{Text: orderHistoryPrompt + string(text)})
	if err != nil {
		return nil, fmt.Errorf("OrderHistoryParser.Read: %w", err)
	}

	recs := make([]*record.Record, 0, len(items))
	for i, obj := range items {
		rec, err := orderItemRecord(obj)
		if err != nil {
			return nil, fmt.Errorf("OrderHistoryParser.Read: %w: item %d: %w", ErrMalformed, i, err)
		}
		rec.Line = i + 1
		recs = append(recs, rec)
	}
	return recs, nil
}

func orderItemRecord(obj map[string]interface{}) (*record.Record, error) {
	rec := &record.Record{Kind: record.KindOrderItem}
	var err error

	strs := []struct {
		key      string
		dst      *string
		required bool
	}{
		{"order_id", &rec.Key, true},
		{"description", &rec.Description, true},
		{"status", &rec.Status, false},
		{"seller", &rec.Seller, false},
		{"asin", &rec.ASIN, false},
		{"author", &rec.Author, false},
		{"shipment_key", &rec.ShipmentKey, false},
		{"tracking_number", &rec.TrackingNumber, false},
		{"expected_date", &rec.ExpectedDate, false},
		{"card_last_four", &rec.CardLastFour, false},
	}
	for _, f := range strs {
		if *f.dst, err = getStringField(obj, f.key, f.required); err != nil {
			return nil, err
		}
	}

	if rec.Amount, err = getAmountField(obj, "cost", true); err != nil {
		return nil, err
	}
	amounts := []struct {
		key string
		dst *int64
	}{
		{"import_fees_deposit", &rec.ImportFeesDeposit},
		{"order_total", &rec.OrderTotal},
		{"order_subtotal", &rec.OrderSubtotal},
		{"postage", &rec.Postage},
		{"promotion", &rec.Promotion},
		{"gift_card", &rec.GiftCard},
	}
	for _, f := range amounts {
		if *f.dst, err = getAmountField(obj, f.key, false); err != nil {
			return nil, err
		}
	}
	if rec.Promotion < 0 {
		rec.Promotion = -rec.Promotion
	}

	if rec.OrderDate, err = getDateField(obj, "order_date", true); err != nil {
		return nil, err
	}
	if rec.ShipmentDate, err = getDateField(obj, "shipment_date", false); err != nil {
		return nil, err
	}
	if rec.DeliveryDate, err = getDateField(obj, "delivery_date", false); err != nil {
		return nil, err
	}
	if rec.Quantity, err = getIntField(obj, "quantity"); err != nil {
		return nil, err
	}
	if rec.Returned, err = getBoolField(obj, "returned"); err != nil {
		return nil, err
	}
	if rec.Exchanged, err = getBoolField(obj, "exchanged"); err != nil {
		return nil, err
	}
	if rec.Overseas, err = getBoolField(obj, "overseas"); err != nil {
		return nil, err
	}
	return rec, nil
}

var _ Reader = (*OrderHistoryParser)(nil)
