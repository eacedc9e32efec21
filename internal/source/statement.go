package source

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/genai"

	"github.com/dvloznov/ledger-import/internal/record"
)

const statementPrompt = "You are a bank and credit card statement parser.\n\n" +
	"Task:\n" +
	"- Parse ALL transactions in the attached PDF statement.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array of objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
	"- \"description\": string\n" +
	"- \"amount\": string with two decimals (positive for money IN, negative for money OUT)\n" +
	"- \"check_number\": string or null\n\n" +
	"Rules:\n" +
	"- If the statement has separate \"paid out\" / \"paid in\" columns, convert to a single signed \"amount\".\n" +
	"- Skip opening and closing balance lines.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// StatementParser reads PDF statements through a Gemini model. PDF
// statements carry no row ids, so matching relies on amount and date.
type StatementParser struct {
	gen   Generator
	model string
}

// NewStatementParser creates a parser; an empty model means
// DefaultModelName.
func NewStatementParser(gen Generator, model string) *StatementParser {
	if model == "" {
		model = DefaultModelName
	}
	return &StatementParser{gen: gen, model: model}
}

func (p *StatementParser) Read(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	pdfBytes, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("StatementParser.Read: reading PDF: %w", err)
	}

	rows, err := generateJSONArray(ctx, p.gen, p.model,
		&genai.Part{Text: statementPrompt},
		&genai.Part{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: pdfBytes}},
	)
	if err != nil {
		return nil, fmt.Errorf("StatementParser.Read: %w", err)
	}

	recs := make([]*record.Record, 0, len(rows))
	for i, obj := range rows {
		date, err := getDateField(obj, "date", true)
		if err != nil {
			return nil, fmt.Errorf("StatementParser.Read: %w: transaction %d: %w", ErrMalformed, i, err)
		}
		desc, err := getStringField(obj, "description", true)
		if err != nil {
			return nil, fmt.Errorf("StatementParser.Read: %w: transaction %d: %w", ErrMalformed, i, err)
		}
		amount, err := getAmountField(obj, "amount", true)
		if err != nil {
			return nil, fmt.Errorf("StatementParser.Read: %w: transaction %d: %w", ErrMalformed, i, err)
		}
		check, err := getStringField(obj, "check_number", false)
		if err != nil {
			return nil, fmt.Errorf("StatementParser.Read: %w: transaction %d: %w", ErrMalformed, i, err)
		}
		recs = append(recs, &record.Record{
			Kind:        record.KindStatement,
			Amount:      amount,
			Date:        date,
			Description: desc,
			Check:       check,
			Line:        i + 1,
		})
	}
	return recs, nil
}

var _ Reader = (*StatementParser)(nil)
