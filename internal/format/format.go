package format

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencySuffix is appended to every displayed price.
const CurrencySuffix = "Bs"

// Price formats amount with two decimals and locale separators.
// Example: Price(decimal.RequireFromString("1499.9"), "es") => "1.499,90 Bs"
func Price(amount decimal.Decimal, lang string) string {
	return Number(amount, lang) + " " + CurrencySuffix
}

// Number formats amount with two decimals and locale separators.
func Number(amount decimal.Decimal, lang string) string {
	thousands, point := ",", "."
	if strings.EqualFold(lang, "es") {
		thousands, point = ".", ","
	}
	fixed := amount.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")
	whole, frac, _ := strings.Cut(fixed, ".")
	out := thousandSep(whole, thousands) + point + frac
	if neg {
		return "-" + out
	}
	return out
}

func thousandSep(digits, sep string) string {
	var b strings.Builder
	for i, c := range digits {
		if i != 0 && (len(digits)-i)%3 == 0 {
			b.WriteString(sep)
		}
		b.WriteRune(c)
	}
	return b.String()
}
