package ledger

import "github.com/shopspring/decimal"

// FeeSchedule computes the platform fee for a sale: a percentage of the
// subtotal, rounded to whole cents, plus a fixed per-order amount.
type FeeSchedule struct {
	Percent    decimal.Decimal
	FixedCents int64
}

// NewFeeSchedule builds a schedule from a percentage (e.g. 3.5 for 3.5%)
// and fixed cents.
func NewFeeSchedule(percent float64, fixedCents int64) FeeSchedule {
	return FeeSchedule{
		Percent:    decimal.NewFromFloat(percent),
		FixedCents: fixedCents,
	}
}

var hundred = decimal.NewFromInt(100)

// FeeCents returns round(subtotalCents * percent / 100) + fixedCents.
// Decimal arithmetic keeps the percentage step exact; rounding is half away
// from zero, matching the checkout display.
func (s FeeSchedule) FeeCents(subtotalCents int64) int64 {
	pct := decimal.NewFromInt(subtotalCents).Mul(s.Percent).Div(hundred).Round(0)
	return pct.IntPart() + s.FixedCents
}
