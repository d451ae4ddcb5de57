package domain

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// PriceDecimals is the number of fractional digits carried by prices and by
// cash token amounts.
const PriceDecimals = 18

// ParsePrice converts a decimal string such as "1.1" into its 18-decimal
// fixed-point representation. It rejects negative values, values with more
// than 18 fractional digits, and values that do not fit in 256 bits.
func ParsePrice(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("price %q is not a decimal number", s)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("price must be >= 0")
	}
	scaled := d.Shift(PriceDecimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("price must have at most %d decimal places", PriceDecimals)
	}
	p, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("price does not fit in 256 bits")
	}
	return p, nil
}

// FormatPrice renders an 18-decimal fixed-point value as a decimal string
// without trailing zeros.
func FormatPrice(p *uint256.Int) string {
	return decimal.NewFromBigInt(p.ToBig(), -PriceDecimals).String()
}

// ParseAmount parses a base-10 integer string into a 256-bit amount.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	a, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q is not a base-10 integer below 2^256", s)
	}
	return a, nil
}
