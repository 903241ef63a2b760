package money

import (
	"sort"
	"strings"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
)

// Currency is reference data: ISO code, minor-unit precision and the locale
// used for display.
type Currency struct {
	Code          string `json:"code"`
	DecimalPlaces int32  `json:"decimalPlaces"`
	Locale        string `json:"locale"`
}

var (
	USD = Currency{Code: "USD", DecimalPlaces: 2, Locale: "en-US"}
	EUR = Currency{Code: "EUR", DecimalPlaces: 2, Locale: "de-DE"}
	GBP = Currency{Code: "GBP", DecimalPlaces: 2, Locale: "en-GB"}
	DKK = Currency{Code: "DKK", DecimalPlaces: 2, Locale: "da-DK"}
	JPY = Currency{Code: "JPY", DecimalPlaces: 0, Locale: "ja-JP"}
	KWD = Currency{Code: "KWD", DecimalPlaces: 3, Locale: "ar-KW"}
)

// Registry resolves currency codes. It is read-only after construction.
type Registry struct {
	byCode map[string]Currency
}

func NewRegistry(currencies ...Currency) *Registry {
	r := &Registry{byCode: make(map[string]Currency, len(currencies))}
	for _, c := range currencies {
		r.byCode[strings.ToUpper(c.Code)] = c
	}
	return r
}

// DefaultRegistry mirrors the rows seeded by the initial migration.
func DefaultRegistry() *Registry {
	return NewRegistry(USD, EUR, GBP, DKK, JPY, KWD)
}

func (r *Registry) Lookup(code string) (Currency, error) {
	c, ok := r.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Currency{}, apperr.Describe(apperr.ErrUnsupportedCurrency, "unsupported currency %q", code)
	}
	return c, nil
}

func (r *Registry) Codes() []string {
	out := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
