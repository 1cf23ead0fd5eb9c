package shared

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ParseAmount parses a monetary amount from text and rounds it to two places.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, errors.New("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return Round2(d), nil
}

// SumRounded adds the rounded value of every amount.
func SumRounded(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(Round2(v))
	}
	return total
}
