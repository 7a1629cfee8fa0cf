package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount parses a base-10 string into a non-negative integer amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, s, err)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func ValidateAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	if !d.Equal(d.Truncate(0)) {
		return fmt.Errorf("%w: amount must be an integer", ErrInvalidInput)
	}
	return nil
}

// SplitValue computes floor(floor(valuation*100/splits)/100). The two-step
// truncation is part of the pricing contract and differs from
// valuation/splits for some inputs.
func SplitValue(valuation decimal.Decimal, splits int) (decimal.Decimal, error) {
	if splits <= 0 {
		return decimal.Zero, fmt.Errorf("%w: property has no splits", ErrNotFound)
	}
	scaled, _ := valuation.Mul(hundred).QuoRem(decimal.NewFromInt(int64(splits)), 0)
	value, _ := scaled.QuoRem(hundred, 0)
	return value, nil
}
