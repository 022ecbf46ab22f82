package exchange

import (
	"strings"

	"github.com/shopspring/decimal"
	"triarb/internal/model"
)

// AmountToPrecision rounds amount down to the instrument's quantity step.
func AmountToPrecision(inst model.Instrument, amount float64) float64 {
	return floorToStep(amount, inst.AmountStep)
}

// PriceToPrecision rounds price down to the instrument's tick size.
func PriceToPrecision(inst model.Instrument, price float64) float64 {
	return floorToStep(price, inst.PriceStep)
}

func floorToStep(v float64, step decimal.Decimal) float64 {
	if v <= 0 {
		return 0
	}
	d := decimal.NewFromFloat(v)
	if step.Sign() <= 0 {
		return d.InexactFloat64()
	}
	return d.Div(step).Floor().Mul(step).InexactFloat64()
}

// MeetsMinimum reports whether amount is non-zero and at least the instrument minimum.
func MeetsMinimum(inst model.Instrument, amount float64) bool {
	if amount <= 0 {
		return false
	}
	return decimal.NewFromFloat(amount).GreaterThanOrEqual(inst.MinAmount)
}

// SplitSymbol splits a unified BASE/QUOTE symbol.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(symbol, "/")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}

// JoinSymbol builds a unified BASE/QUOTE symbol.
func JoinSymbol(base, quote string) string {
	return base + "/" + quote
}
