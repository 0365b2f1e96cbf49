package pricing

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/avelarde/boostpanel-backend/pkg/errors"
)

// chargeScale keeps charges well above the 5-decimal-place precision floor
// so many small orders do not accumulate rounding drift.
const chargeScale = 8

var (
	oneHundred  = decimal.NewFromInt(100)
	perThousand = decimal.NewFromInt(1000)
)

// Quote computes the charge for a quantity of a service.
//
// Effective rate = (custom rate if present, else base rate) x (1 - discount/100).
// Charge = effective rate x quantity / 1000. Pure; no side effects.
func Quote(baseRate decimal.Decimal, customRate *decimal.Decimal, discountPercent decimal.Decimal, quantity int) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(oneHundred) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "discount must be between 0 and 100")
	}

	rate := baseRate
	if customRate != nil {
		rate = *customRate
	}
	if rate.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "rate must not be negative")
	}

	effective := rate.Mul(oneHundred.Sub(discountPercent)).Div(oneHundred)
	charge := effective.Mul(decimal.NewFromInt(int64(quantity))).Div(perThousand)
	return charge.Round(chargeScale), nil
}

// EffectiveRate exposes the discounted per-1000 rate used by Quote, for
// display on the service catalog.
func EffectiveRate(baseRate decimal.Decimal, customRate *decimal.Decimal, discountPercent decimal.Decimal) decimal.Decimal {
	rate := baseRate
	if customRate != nil {
		rate = *customRate
	}
	return rate.Mul(oneHundred.Sub(discountPercent)).Div(oneHundred).Round(chargeScale)
}
