package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/money"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// Generator is the part of the Gemini client the model readers use;
// *genai.Models satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGenerator creates a Gemini client from the environment
// (GOOGLE_API_KEY or Vertex AI settings).
func NewGenerator(ctx context.Context) (Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGenerator: create genai client: %w", err)
	}
	return client.Models, nil
}

// generateJSONArray sends parts to the model and decodes the JSON array it
// answers with.
func generateJSONArray(ctx context.Context, gen Generator, model string, parts ...*genai.Part) ([]map[string]interface{}, error) {
	log := logger.FromContext(ctx)
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := gen.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("%w: empty response from model", ErrMalformed)
	}

	clean := cleanModelJSON(rawText)
	var parsed []interface{}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		log.Debug().Str("raw_response", rawText).Msg("Unparseable model output")
		return nil, fmt.Errorf("%w: unmarshal model JSON: %w", ErrMalformed, err)
	}

	out := make([]map[string]interface{}, 0, len(parsed))
	for i, item := range parsed {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T, want object", ErrMalformed, i, item)
		}
		out = append(out, obj)
	}
	log.Debug().Int("elements", len(out)).Str("model", model).Msg("Model output parsed")
	return out, nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		val = strings.TrimSpace(val)
		if required && val == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	case float64:
		return decimal.NewFromFloat(val).String(), nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

// getAmountField reads a money field given either as a number or as decimal
// text. Missing optional amounts are zero.
func getAmountField(m map[string]interface{}, key string, required bool) (int64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return 0, fmt.Errorf("missing required field %q", key)
		}
		return 0, nil
	}
	switch val := v.(type) {
	case float64:
		minor, err := money.FromDecimal(decimal.NewFromFloat(val))
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		return minor, nil
	case string:
		if strings.TrimSpace(val) == "" && !required {
			return 0, nil
		}
		minor, err := money.ParseAmount(val)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		return minor, nil
	default:
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}

func getDateField(m map[string]interface{}, key string, required bool) (civil.Date, error) {
	s, err := getStringField(m, key, required)
	if err != nil || s == "" {
		return civil.Date{}, err
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("field %q: invalid date %q: %w", key, s, err)
	}
	return d, nil
}

func getBoolField(m map[string]interface{}, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q has type %T, want bool", key, v)
	}
	return b, nil
}

func getIntField(m map[string]interface{}, key string) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
	return int(f), nil
}
