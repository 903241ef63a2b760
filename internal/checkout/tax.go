package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

// TaxPolicy computes tax on a subtotal in the subtotal's currency.
type TaxPolicy interface {
	Tax(subtotal money.Money) money.Money
}

var DefaultTaxRate = decimal.RequireFromString("0.10")

// FlatRateTax charges one rate on the whole subtotal, rounded half-to-even.
type FlatRateTax struct {
	rate decimal.Decimal
}

func NewFlatRateTax(rate decimal.Decimal) (FlatRateTax, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return FlatRateTax{}, apperr.Validation("tax rate must be within [0, 1], got %s", rate)
	}
	return FlatRateTax{rate: rate}, nil
}

func (t FlatRateTax) Rate() decimal.Decimal { return t.rate }

func (t FlatRateTax) Tax(subtotal money.Money) money.Money {
	return subtotal.Mul(t.rate)
}
