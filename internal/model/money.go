package model

import "github.com/shopspring/decimal"

// FormatCents renders an amount in cents as a fixed two-decimal string,
// e.g. 50000 -> "500.00".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
