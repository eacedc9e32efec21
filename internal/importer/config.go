package importer

import (
	"slices"

	"github.com/dvloznov/ledger-import/internal/match"
)

// Config holds the knobs of one Importer.
type Config struct {
	// ToleranceDays is the match window around a record's date.
	ToleranceDays int
	TieBreak      match.TieBreak
	// SkipMalformed logs and skips records that fail validation instead of
	// failing the batch.
	SkipMalformed bool
	// AuthoritativeSources names sources whose amounts supersede matched
	// entries, in addition to batches flagged Authoritative.
	AuthoritativeSources []string

	// Category accounts for order items. Empty values fall back to the
	// items account, which itself falls back to the placeholder account.
	ItemsAccount      string
	ReturnsAccount    string
	ExchangeAccount   string
	ImportFeesAccount string
	// GiftCardAccount is only needed for orders partly paid by gift card.
	GiftCardAccount string
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		ToleranceDays: match.DefaultToleranceDays,
		TieBreak:      match.TieBreakFail,
	}
}

func (c Config) authoritative(source string, flagged bool) bool {
	return flagged || slices.Contains(c.AuthoritativeSources, source)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
