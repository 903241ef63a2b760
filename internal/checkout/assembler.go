// Package checkout turns a cart into a pending order in one atomic step.
package checkout

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/currency"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/txn"
)

// CartSource is the part of the cart ledger checkout needs.
type CartSource interface {
	Snapshot(ctx context.Context, tx *sql.Tx, ownerID string) (cart.Snapshot, error)
	Empty(ctx context.Context, tx *sql.Tx, snap cart.Snapshot) error
}

type OrderWriter interface {
	Insert(ctx context.Context, tx *sql.Tx, o *order.Order) error
}

type RateQuoter interface {
	Quote(ctx context.Context, from, to string) (currency.Rate, error)
}

// Observer is told the outcome of every checkout attempt.
type Observer interface {
	CheckoutFinished(result string)
}

type Selection struct {
	Method string `json:"method"`
}

type Request struct {
	OwnerID  string
	Shipping Selection
	Address  order.Address
	// Currency is the ISO code the order is priced in; empty means the
	// store's base currency.
	Currency string
}

type Assembler struct {
	runner   txn.Runner
	carts    CartSource
	orders   OrderWriter
	outbox   inventory.Outbox
	rates    RateQuoter
	shipping *ShippingCatalog
	tax      TaxPolicy
	base     money.Currency
	observer Observer
	now      func() time.Time
	newID    func() string
}

type Deps struct {
	Runner   txn.Runner
	Carts    CartSource
	Orders   OrderWriter
	Outbox   inventory.Outbox
	Rates    RateQuoter
	Shipping *ShippingCatalog
	Tax      TaxPolicy
	Base     money.Currency
	Observer Observer
}

func NewAssembler(d Deps) *Assembler {
	shipping := d.Shipping
	if shipping == nil {
		shipping = DefaultShippingCatalog(d.Base)
	}
	tax := d.Tax
	if tax == nil {
		tax = FlatRateTax{rate: DefaultTaxRate}
	}
	return &Assembler{
		runner:   d.Runner,
		carts:    d.Carts,
		orders:   d.Orders,
		outbox:   d.Outbox,
		rates:    d.Rates,
		shipping: shipping,
		tax:      tax,
		base:     d.Base,
		observer: d.Observer,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Assemble converts the owner's cart into a pending_payment order. The
// order, its lines, the shipment, the emptied cart and the reserve
// notification commit together or not at all.
func (a *Assembler) Assemble(ctx context.Context, req Request) (o *order.Order, err error) {
	defer func() { a.observe(err) }()

	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if err := req.Address.Validate(); err != nil {
		return nil, err
	}
	method, err := a.shipping.Lookup(req.Shipping.Method)
	if err != nil {
		return nil, err
	}
	target := req.Currency
	if strings.TrimSpace(target) == "" {
		target = a.base.Code
	}

	// One quote per request, fetched before any row is locked.
	rate, err := a.rates.Quote(ctx, a.base.Code, target)
	if err != nil {
		return nil, err
	}

	err = a.runner.Run(ctx, txn.Serializable("checkout.assemble"), func(ctx context.Context, tx *sql.Tx) error {
		snap, err := a.carts.Snapshot(ctx, tx, req.OwnerID)
		if err != nil {
			return err
		}
		if snap.OwnerID != req.OwnerID {
			return apperr.ErrNotFoundOrForbidden
		}
		if snap.Empty() {
			return apperr.ErrEmptyCart
		}

		built, err := a.price(snap, method, rate)
		if err != nil {
			return err
		}
		built.ID = a.newID()
		built.OwnerID = req.OwnerID
		built.CreatedAt = a.now()
		built.UpdatedAt = built.CreatedAt
		built.Shipment = &order.Shipment{
			Method:  method.Name(),
			Status:  order.ShipmentPending,
			Address: req.Address,
		}

		if err := a.orders.Insert(ctx, tx, built); err != nil {
			return err
		}
		if err := a.carts.Empty(ctx, tx, snap); err != nil {
			return err
		}

		items := make([]inventory.LineItem, 0, len(built.Lines))
		for _, l := range built.Lines {
			items = append(items, inventory.LineItem{VariantID: l.VariantID, Quantity: l.Quantity})
		}
		note := inventory.NewNotification(built.ID, req.OwnerID, inventory.ActionReserve, items)
		if err := a.outbox.Enqueue(ctx, tx, note); err != nil {
			return err
		}

		o = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// price freezes the snapshot into order lines in the rate's target currency.
// Shipping is chosen on the base-currency subtotal and converted with the
// same rate.
func (a *Assembler) price(snap cart.Snapshot, method ShippingMethod, rate currency.Rate) (*order.Order, error) {
	if snap.Currency.Code != rate.From.Code {
		return nil, apperr.Describe(apperr.ErrCurrencyMismatch,
			"cart is in %s, rate quoted from %s", snap.Currency.Code, rate.From.Code)
	}

	lines := make([]order.Line, 0, len(snap.Lines))
	totals := make([]money.Money, 0, len(snap.Lines))
	for i, l := range snap.Lines {
		unit, err := rate.Apply(l.UnitPrice)
		if err != nil {
			return nil, err
		}
		line := order.Line{
			LineNo:    i + 1,
			VariantID: l.VariantID,
			UnitPrice: unit,
			Quantity:  l.Quantity,
			Status:    order.LinePending,
		}
		lines = append(lines, line)
		totals = append(totals, line.Total())
	}

	subtotal, err := money.Sum(rate.To, totals...)
	if err != nil {
		return nil, err
	}
	baseShipping, err := method.Cost(snap.Subtotal)
	if err != nil {
		return nil, err
	}
	shipping, err := rate.Apply(baseShipping)
	if err != nil {
		return nil, err
	}
	tax := a.tax.Tax(subtotal)
	total, err := money.Sum(rate.To, subtotal, shipping, tax)
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		CartID:         snap.CartID,
		Currency:       rate.To,
		Lines:          lines,
		Subtotal:       subtotal,
		Shipping:       shipping,
		Tax:            tax,
		Total:          total,
		ShippingMethod: method.Name(),
		FXRate:         rate.Value,
		Status:         order.StatusPendingPayment,
	}
	if err := o.CheckTotals(); err != nil {
		return nil, err
	}
	return o, nil
}

func (a *Assembler) observe(err error) {
	if a.observer == nil {
		return
	}
	if err == nil {
		a.observer.CheckoutFinished("ok")
		return
	}
	a.observer.CheckoutFinished(apperr.CodeOf(err))
}
