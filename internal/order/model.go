package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

// Line is frozen when the order is assembled and never repriced.
type Line struct {
	ID        string      `json:"lineId"`
	LineNo    int         `json:"lineNo"`
	VariantID string      `json:"productVariantId"`
	UnitPrice money.Money `json:"unitPrice"`
	Quantity  int         `json:"quantity"`
	Status    LineStatus  `json:"status"`
}

func (l Line) Total() money.Money {
	return l.UnitPrice.MulQuantity(int64(l.Quantity))
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (a Address) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", a.Name},
		{"line1", a.Line1},
		{"city", a.City},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("address is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type Shipment struct {
	ID        string         `json:"shipmentId"`
	OrderID   string         `json:"orderId"`
	Method    string         `json:"method"`
	Status    ShipmentStatus `json:"status"`
	Address   Address        `json:"address"`
	CreatedAt time.Time      `json:"createdAt"`
}

type Order struct {
	ID             string          `json:"orderId"`
	OwnerID        string          `json:"ownerId"`
	CartID         string          `json:"cartId"`
	Currency       money.Currency  `json:"currency"`
	Lines          []Line          `json:"items"`
	Subtotal       money.Money     `json:"subtotal"`
	Shipping       money.Money     `json:"shipping"`
	Tax            money.Money     `json:"tax"`
	Total          money.Money     `json:"total"`
	ShippingMethod string          `json:"shippingMethod"`
	FXRate         decimal.Decimal `json:"fxRate"`
	Status         Status          `json:"status"`
	Shipment       *Shipment       `json:"shipment,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// CheckTotals verifies subtotal = Σ line totals and total = subtotal + shipping + tax.
func (o *Order) CheckTotals() error {
	totals := make([]money.Money, 0, len(o.Lines))
	for _, l := range o.Lines {
		totals = append(totals, l.Total())
	}
	sum, err := money.Sum(o.Currency, totals...)
	if err != nil {
		return err
	}
	if sum.MinorUnits() != o.Subtotal.MinorUnits() {
		return apperr.Validation("subtotal %s does not match lines %s", o.Subtotal, sum)
	}
	want, err := money.Sum(o.Currency, o.Subtotal, o.Shipping, o.Tax)
	if err != nil {
		return err
	}
	if want.MinorUnits() != o.Total.MinorUnits() {
		return apperr.Validation("total %s does not match components %s", o.Total, want)
	}
	return nil
}
