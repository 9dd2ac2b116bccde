package pos

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies without a minor unit; amounts are sent as-is.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {},
	"mga": {}, "pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {},
	"xof": {}, "xpf": {},
}

// ToMinorUnits converts a decimal amount into the integer minor unit the
// provider APIs expect (cents for USD), rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	if _, ok := zeroDecimalCurrencies[strings.ToLower(currency)]; ok {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	d := decimal.NewFromInt(minor)
	if _, ok := zeroDecimalCurrencies[strings.ToLower(currency)]; ok {
		return d
	}
	return d.Shift(-2)
}
