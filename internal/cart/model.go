package cart

import (
	"time"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

type Line struct {
	ID        string      `json:"lineId"`
	VariantID string      `json:"productVariantId"`
	UnitPrice money.Money `json:"unitPrice"`
	Quantity  int         `json:"quantity"`
}

// Total is unitPrice × quantity.
func (l Line) Total() money.Money {
	return l.UnitPrice.MulQuantity(int64(l.Quantity))
}

type Cart struct {
	ID        string         `json:"cartId"`
	OwnerID   string         `json:"ownerId"`
	Currency  money.Currency `json:"currency"`
	Lines     []Line         `json:"items"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (c *Cart) lineIndex(lineID string) int {
	for i, l := range c.Lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

func (c *Cart) variantIndex(variantID string) int {
	for i, l := range c.Lines {
		if l.VariantID == variantID {
			return i
		}
	}
	return -1
}

// Snapshot is an immutable, internally consistent view of a cart. Subtotal
// always equals the sum of the line totals.
type Snapshot struct {
	CartID   string         `json:"cartId"`
	OwnerID  string         `json:"ownerId"`
	Currency money.Currency `json:"currency"`
	Lines    []Line         `json:"items"`
	Subtotal money.Money    `json:"subtotal"`
	TakenAt  time.Time      `json:"takenAt"`
}

func (s Snapshot) Empty() bool { return len(s.Lines) == 0 }

func newSnapshot(c *Cart, at time.Time) (Snapshot, error) {
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)

	totals := make([]money.Money, 0, len(lines))
	for _, l := range lines {
		totals = append(totals, l.Total())
	}
	subtotal, err := money.Sum(c.Currency, totals...)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		CartID:   c.ID,
		OwnerID:  c.OwnerID,
		Currency: c.Currency,
		Lines:    lines,
		Subtotal: subtotal,
		TakenAt:  at,
	}, nil
}
