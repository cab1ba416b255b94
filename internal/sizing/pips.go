package sizing

import "strings"

// PipSize returns the pip unit for a symbol. Metals and the major crypto
// pairs quote in two decimals, JPY crosses likewise; everything else uses
// the standard four-decimal pip.
func PipSize(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "XAU"), strings.Contains(s, "GOLD"),
		strings.Contains(s, "BTC"), strings.Contains(s, "ETH"):
		return 0.01
	case strings.Contains(s, "JPY"):
		return 0.01
	default:
		return 0.0001
	}
}

// PipDistance converts a price distance to pips for the symbol.
func PipDistance(symbol string, from, to float64) float64 {
	d := from - to
	if d < 0 {
		d = -d
	}
	return d / PipSize(symbol)
}
