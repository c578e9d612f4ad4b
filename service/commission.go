package service

import (
	"github.com/AnTengye/dealpipe/backend/model"
)

// Commission calculator: pure functions over final quantities, unit
// prices, per-line cost basis and ratio, plus a contract-level freight
// deduction. Only runs in the terminal stage.

// LineCommission computes the commission for a single line under the
// given formula.
func LineCommission(formula string, b *model.BOMLineItem) float64 {
	ratio := b.CommissionRatio
	if ratio == 0 {
		ratio = model.DefaultCommissionRatio
	}
	qty := float64(b.FinalQty)
	switch formula {
	case model.FormulaGross:
		return b.UnitPrice * qty * ratio
	default: // margin
		return (b.UnitPrice - b.BasePrice) * qty * ratio
	}
}

// TotalCommission returns the raw total (sum of line commissions minus
// freight). The caller decides how to surface a negative result.
func TotalCommission(formula string, items []*model.BOMLineItem, freightCost float64) float64 {
	var total float64
	for _, b := range items {
		total += LineCommission(formula, b)
	}
	return total - freightCost
}
