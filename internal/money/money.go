// Package money holds integer minor-unit arithmetic: parsing decimal text into
// cents, formatting cents for display, and proportional distribution of an
// adjustment across line items.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit digits for every supported currency.
const Scale = 2

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrSubMinorUnit   = errors.New("amount has more precision than the minor unit")
	ErrNegativeAmount = errors.New("distribution item has a negative amount")
	ErrZeroNet        = errors.New("distribution items sum to zero")
	ErrNoItems        = errors.New("nothing to distribute over")
)

// ParseAmount converts decimal text such as "-19.99", "1,234.50" or "$7" into
// minor units. Thousands separators, currency symbols and a leading "+" are
// ignored; parentheses denote a negative amount.
func ParseAmount(s string) (int64, error) {
	clean := strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		negative = true
		clean = strings.TrimSuffix(strings.TrimPrefix(clean, "("), ")")
	}
	clean = strings.NewReplacer(",", "", "$", "", "£", "", "€", "", " ", "").Replace(clean)
	clean = strings.TrimPrefix(clean, "+")
	if clean == "" {
		return 0, fmt.Errorf("ParseAmount: %q: %w", s, ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("ParseAmount: %q: %w", s, ErrInvalidAmount)
	}
	minor := d.Shift(Scale)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("ParseAmount: %q: %w", s, ErrSubMinorUnit)
	}
	v := minor.IntPart()
	if negative {
		v = -v
	}
	return v, nil
}

// FromDecimal converts an exact decimal to minor units.
func FromDecimal(d decimal.Decimal) (int64, error) {
	minor := d.Shift(Scale)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("FromDecimal: %s: %w", d.String(), ErrSubMinorUnit)
	}
	return minor.IntPart(), nil
}

// Format renders minor units as fixed two-decimal text, e.g. -1999 → "-19.99".
func Format(minor int64) string {
	return decimal.New(minor, -Scale).StringFixed(Scale)
}
