package checkout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

// ShippingMethod prices delivery for a cart subtotal. Both amounts are in the
// store's base currency.
type ShippingMethod interface {
	Name() string
	Cost(subtotal money.Money) (money.Money, error)
}

type FlatRate struct {
	name string
	fee  money.Money
}

func NewFlatRate(name string, fee money.Money) FlatRate {
	return FlatRate{name: name, fee: fee}
}

func (f FlatRate) Name() string { return f.name }

func (f FlatRate) Cost(subtotal money.Money) (money.Money, error) {
	if !subtotal.SameCurrency(f.fee) {
		return money.Money{}, apperr.Describe(apperr.ErrCurrencyMismatch,
			"shipping %s is priced in %s", f.name, f.fee.Currency().Code)
	}
	return f.fee, nil
}

// Tier applies from MinSubtotal (inclusive) upwards.
type Tier struct {
	MinSubtotal money.Money
	Fee         money.Money
}

type TableRate struct {
	name  string
	tiers []Tier
}

// NewTableRate sorts tiers by threshold. The lowest tier should start at zero;
// a subtotal below every threshold ships at the first tier's fee.
func NewTableRate(name string, tiers ...Tier) TableRate {
	sorted := append([]Tier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinSubtotal.MinorUnits() < sorted[j].MinSubtotal.MinorUnits()
	})
	return TableRate{name: name, tiers: sorted}
}

func (t TableRate) Name() string { return t.name }

func (t TableRate) Cost(subtotal money.Money) (money.Money, error) {
	if len(t.tiers) == 0 {
		return money.Zero(subtotal.Currency()), nil
	}
	fee := t.tiers[0].Fee
	for _, tier := range t.tiers {
		if !subtotal.SameCurrency(tier.MinSubtotal) {
			return money.Money{}, apperr.Describe(apperr.ErrCurrencyMismatch,
				"shipping %s is priced in %s", t.name, tier.MinSubtotal.Currency().Code)
		}
		if subtotal.MinorUnits() >= tier.MinSubtotal.MinorUnits() {
			fee = tier.Fee
		}
	}
	return fee, nil
}

// ShippingCatalog holds the methods a shopper can choose from.
type ShippingCatalog struct {
	methods map[string]ShippingMethod
}

func NewShippingCatalog(methods ...ShippingMethod) *ShippingCatalog {
	c := &ShippingCatalog{methods: make(map[string]ShippingMethod, len(methods))}
	for _, m := range methods {
		c.methods[strings.ToLower(m.Name())] = m
	}
	return c
}

// DefaultShippingCatalog is standard $4.00, express $12.00 and economy, which
// is free from $50.00 and $6.00 below that.
func DefaultShippingCatalog(base money.Currency) *ShippingCatalog {
	return NewShippingCatalog(
		NewFlatRate("standard", money.MustParse("4.00", base)),
		NewFlatRate("express", money.MustParse("12.00", base)),
		NewTableRate("economy",
			Tier{MinSubtotal: money.Zero(base), Fee: money.MustParse("6.00", base)},
			Tier{MinSubtotal: money.MustParse("50.00", base), Fee: money.Zero(base)},
		),
	)
}

func (c *ShippingCatalog) Lookup(name string) (ShippingMethod, error) {
	m, ok := c.methods[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, apperr.Validation("unknown shipping method %q", name)
	}
	return m, nil
}

func (c *ShippingCatalog) Names() []string {
	out := make([]string, 0, len(c.methods))
	for n := range c.methods {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ParseShippingCatalog reads SHIPPING_METHODS, e.g.
//
//	standard=flat:4.00,express=flat:12.00,economy=table:0@6.00|50.00@0
func ParseShippingCatalog(raw string, base money.Currency) (*ShippingCatalog, error) {
	var methods []ShippingMethod
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, def, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("shipping method %q: missing '='", entry)
		}
		kind, args, ok := strings.Cut(def, ":")
		if !ok {
			return nil, fmt.Errorf("shipping method %q: missing kind", entry)
		}

		switch strings.TrimSpace(kind) {
		case "flat":
			fee, err := parseAmount(args, base)
			if err != nil {
				return nil, fmt.Errorf("shipping method %q: %w", name, err)
			}
			methods = append(methods, NewFlatRate(strings.TrimSpace(name), fee))
		case "table":
			var tiers []Tier
			for _, raw := range strings.Split(args, "|") {
				minStr, feeStr, ok := strings.Cut(raw, "@")
				if !ok {
					return nil, fmt.Errorf("shipping method %q: tier %q needs min@fee", name, raw)
				}
				min, err := parseAmount(minStr, base)
				if err != nil {
					return nil, fmt.Errorf("shipping method %q: %w", name, err)
				}
				fee, err := parseAmount(feeStr, base)
				if err != nil {
					return nil, fmt.Errorf("shipping method %q: %w", name, err)
				}
				tiers = append(tiers, Tier{MinSubtotal: min, Fee: fee})
			}
			methods = append(methods, NewTableRate(strings.TrimSpace(name), tiers...))
		default:
			return nil, fmt.Errorf("shipping method %q: unknown kind %q", name, kind)
		}
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no shipping methods configured")
	}
	return NewShippingCatalog(methods...), nil
}

func parseAmount(s string, c money.Currency) (money.Money, error) {
	return money.Parse(strings.TrimSpace(s), c)
}
