// Package currency converts money between the store's base currency and a
// shopper's preferred currency using externally sourced rates.
package currency

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

// RateSource returns how many units of `to` one unit of `from` buys.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Rate is a quote fetched for a single request.
type Rate struct {
	From  money.Currency
	To    money.Currency
	Value decimal.Decimal
}

// Identity reports whether applying the rate is a no-op.
func (r Rate) Identity() bool {
	return r.From.Code == r.To.Code
}

func (r Rate) Apply(m money.Money) (money.Money, error) {
	if m.Currency().Code != r.From.Code {
		return money.Money{}, apperr.Describe(apperr.ErrCurrencyMismatch,
			"rate quoted for %s, amount is in %s", r.From.Code, m.Currency().Code)
	}
	return m.Convert(r.To, r.Value)
}

type Converter struct {
	source   RateSource
	registry *money.Registry
}

func NewConverter(source RateSource, registry *money.Registry) *Converter {
	return &Converter{source: source, registry: registry}
}

func (c *Converter) Registry() *money.Registry { return c.registry }

// Quote asks the rate source for a fresh rate. Nothing is cached, so every
// call hits the source.
func (c *Converter) Quote(ctx context.Context, from, to string) (Rate, error) {
	fromCur, err := c.registry.Lookup(from)
	if err != nil {
		return Rate{}, err
	}
	toCur, err := c.registry.Lookup(to)
	if err != nil {
		return Rate{}, err
	}
	if fromCur.Code == toCur.Code {
		return Rate{From: fromCur, To: toCur, Value: decimal.NewFromInt(1)}, nil
	}

	v, err := c.source.Rate(ctx, fromCur.Code, toCur.Code)
	if err != nil {
		if errors.Is(err, apperr.ErrRateUnavailable) {
			return Rate{}, err
		}
		return Rate{}, apperr.Wrap(apperr.ErrRateUnavailable, fmt.Errorf("rate %s->%s: %w", fromCur.Code, toCur.Code, err))
	}
	if v.Sign() <= 0 {
		return Rate{}, apperr.Describe(apperr.ErrRateUnavailable, "rate %s->%s is not positive: %s", fromCur.Code, toCur.Code, v)
	}
	return Rate{From: fromCur, To: toCur, Value: v}, nil
}

func (c *Converter) Convert(ctx context.Context, m money.Money, to string) (money.Money, error) {
	rate, err := c.Quote(ctx, m.Currency().Code, to)
	if err != nil {
		return money.Money{}, err
	}
	return rate.Apply(m)
}
