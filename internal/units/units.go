// Package units converts between human-readable token amounts and
// smallest-unit big.Int values.
//
// Tokens declare their own precision via decimals(); the registry's
// fallback applies when the read fails. A decimals of 0 means the
// token has no fractional part at all.
package units

import (
	"math/big"
	"strings"
)

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation for the given decimals. Returns (nil, false)
// on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to the token's decimals
func Parse(s string, decimals uint8) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	// Pad or trim to the token's precision.
	for len(frac) < int(decimals) {
		frac += "0"
	}
	frac = frac[:decimals]

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a smallest-unit big.Int to a human-readable decimal
// string, trimming trailing fractional zeros ("1.5", not "1.500000").
func Format(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()

	if decimals == 0 {
		if neg {
			return "-" + s
		}
		return s
	}

	for len(s) < int(decimals)+1 {
		s = "0" + s
	}
	split := len(s) - int(decimals)
	whole, frac := s[:split], s[split:]

	frac = strings.TrimRight(frac, "0")
	result := whole
	if frac != "" {
		result = whole + "." + frac
	}
	if neg {
		result = "-" + result
	}
	return result
}

// Float returns the amount as a float64 for display math (unit price).
// Precision loss is acceptable here; never use this for accounting.
func Float(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	if decimals > 0 {
		div := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		f.Quo(f, div)
	}
	out, _ := f.Float64()
	return out
}
