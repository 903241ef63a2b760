// Package money implements fixed-precision monetary amounts.
//
// A Money value stores an integer count of minor units (cents for USD, yen
// for JPY) together with the currency's metadata. Arithmetic between two
// values is only defined for the same currency; anything cross-currency goes
// through Convert with an explicit rate.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
)

type Money struct {
	minor    int64
	currency Currency
}

func New(minorUnits int64, c Currency) Money {
	return Money{minor: minorUnits, currency: c}
}

func Zero(c Currency) Money {
	return Money{currency: c}
}

// FromDecimal rounds d half-to-even to the currency's precision.
func FromDecimal(d decimal.Decimal, c Currency) Money {
	return Money{
		minor:    d.RoundBank(c.DecimalPlaces).Shift(c.DecimalPlaces).IntPart(),
		currency: c,
	}
}

func (m Money) MinorUnits() int64  { return m.minor }
func (m Money) Currency() Currency { return m.currency }
func (m Money) IsZero() bool       { return m.minor == 0 }

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.minor, -m.currency.DecimalPlaces)
}

func (m Money) SameCurrency(o Money) bool {
	return m.currency.Code == o.currency.Code
}

func (m Money) Add(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, mismatch(m, o)
	}
	return Money{minor: m.minor + o.minor, currency: m.currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, mismatch(m, o)
	}
	return Money{minor: m.minor - o.minor, currency: m.currency}, nil
}

// MulQuantity multiplies by a whole count. It is exact.
func (m Money) MulQuantity(n int64) Money {
	return Money{minor: m.minor * n, currency: m.currency}
}

// Mul multiplies by a decimal scalar and rounds half-to-even to the
// currency's minor unit.
func (m Money) Mul(scalar decimal.Decimal) Money {
	product := decimal.NewFromInt(m.minor).Mul(scalar)
	return Money{minor: product.RoundBank(0).IntPart(), currency: m.currency}
}

// Convert applies rate (units of target per unit of m's currency) and rounds
// half-to-even to target's decimal places. Rates are never cached here.
func (m Money) Convert(target Currency, rate decimal.Decimal) (Money, error) {
	if rate.Sign() <= 0 {
		return Money{}, apperr.Validation("exchange rate must be positive, got %s", rate.String())
	}
	if m.currency.Code == target.Code {
		return Money{minor: m.minor, currency: target}, nil
	}
	return FromDecimal(m.Decimal().Mul(rate), target), nil
}

// Sum adds all values in currency c. An empty list yields Zero(c).
func Sum(c Currency, values ...Money) (Money, error) {
	total := Zero(c)
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

func (m Money) String() string {
	return m.Decimal().StringFixed(m.currency.DecimalPlaces) + " " + m.currency.Code
}

// Format renders m for display in the currency's locale. The whole and
// fractional parts are formatted from the integer minor units, so large
// amounts keep every digit.
func (m Money) Format() string {
	tag, err := language.Parse(m.currency.Locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)

	abs := uint64(m.minor)
	sign := ""
	if m.minor < 0 {
		abs = uint64(-(m.minor + 1)) + 1
		sign = "-"
	}

	places := int(m.currency.DecimalPlaces)
	if places <= 0 {
		return sign + p.Sprint(number.Decimal(abs)) + " " + m.currency.Code
	}
	scale := uint64(1)
	for i := 0; i < places; i++ {
		scale *= 10
	}
	whole := p.Sprint(number.Decimal(abs / scale))
	frac := p.Sprint(number.Decimal(abs%scale, number.MinIntegerDigits(places), number.NoSeparator()))
	return sign + whole + decimalSeparator(p) + frac + " " + m.currency.Code
}

// decimalSeparator is whatever the printer puts between 1 and 5 in 1.5.
func decimalSeparator(p *message.Printer) string {
	r := []rune(p.Sprint(number.Decimal(1.5, number.Scale(1))))
	if len(r) < 3 {
		return "."
	}
	return string(r[1 : len(r)-1])
}

type jsonMoney struct {
	MinorUnits int64  `json:"minorUnits"`
	Currency   string `json:"currency"`
	Amount     string `json:"amount"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonMoney{
		MinorUnits: m.minor,
		Currency:   m.currency.Code,
		Amount:     m.Decimal().StringFixed(m.currency.DecimalPlaces),
	})
}

func mismatch(a, b Money) error {
	return apperr.Describe(apperr.ErrCurrencyMismatch, "currency mismatch: %s vs %s", a.currency.Code, b.currency.Code)
}

// Parse reads a decimal amount such as "25.50" in c, rounding half-to-even to
// c's precision.
func Parse(amount string, c Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return FromDecimal(d, c), nil
}

// MustParse is Parse for tests and built-in defaults.
func MustParse(amount string, c Currency) Money {
	m, err := Parse(amount, c)
	if err != nil {
		panic("money: " + err.Error())
	}
	return m
}
