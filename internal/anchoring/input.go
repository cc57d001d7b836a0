package anchoring

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	errAmountMissing  = errors.New("amount is required")
	errAmountNegative = errors.New("amount must be non-negative")
)

// ParseAmount parses a non-negative decimal amount such as "100.00".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, errAmountMissing
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.New("amount must be a decimal number")
	}
	if d.IsNegative() {
		return decimal.Decimal{}, errAmountNegative
	}
	return d, nil
}
