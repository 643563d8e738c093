package domain

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// TransactionCost is a broker commission: a fixed fee plus a fraction of trade value
type TransactionCost struct {
	Fixed   float64 `json:"fixed" yaml:"fixed"`
	Percent float64 `json:"percent" yaml:"percent"` // fraction, e.g. 0.002 = 0.2%
}

// Fee returns the commission for a trade of the given value. Zero value trades cost nothing.
func (c TransactionCost) Fee(value float64) float64 {
	if value <= 0 {
		return 0
	}
	return c.Fixed + value*c.Percent
}

// FormatMoney renders an amount with thousands separators and two decimals
func FormatMoney(amount float64, currency Currency) string {
	if currency == "" {
		currency = CurrencyEUR
	}
	return fmt.Sprintf("%s %s", humanize.CommafWithDigits(amount, 2), currency)
}
