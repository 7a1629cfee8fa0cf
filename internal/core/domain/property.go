package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const splitSequenceWidth = 4

// MaxSplitsPerProperty is bounded by the zero-padded sequence field.
const MaxSplitsPerProperty = 9999

type Property struct {
	ID         uint64
	Name       string
	Image      string
	Identifier string
	Valuation  decimal.Decimal
	SplitIDs   []uint64
	CreatedBy  string
	CreatedAt  time.Time
}

type PropertyWithSplits struct {
	Property
	Splits []Split
}

// SplitIdentifier derives the identifier of the seq-th split (1-based).
func SplitIdentifier(propertyIdentifier string, seq int) string {
	return fmt.Sprintf("%s%0*d", propertyIdentifier, splitSequenceWidth, seq)
}
