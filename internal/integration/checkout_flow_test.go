//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/payment"
)

func TestCheckoutToConfirmedOrder(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	owner := "user-" + uuid.NewString()
	e.fillCart(t, owner)

	o, err := e.assembler.Assemble(ctx, checkout.Request{
		OwnerID:  owner,
		Shipping: checkout.Selection{Method: "standard"},
		Address:  testAddress,
	})
	require.NoError(t, err)
	assert.Equal(t, "32.05 USD", o.Total.String())

	snap, err := e.ledger.View(ctx, owner)
	require.NoError(t, err)
	assert.True(t, snap.Empty())

	stored, err := e.orders.GetForOwner(ctx, o.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3205), stored.Total.MinorUnits())
	assert.Equal(t, int64(2550), stored.Subtotal.MinorUnits())
	assert.Equal(t, int64(400), stored.Shipping.MinorUnits())
	assert.Equal(t, int64(255), stored.Tax.MinorUnits())
	assert.Len(t, stored.Lines, 2)
	require.NotNil(t, stored.Shipment)
	assert.Equal(t, order.ShipmentPending, stored.Shipment.Status)

	_, err = e.orders.GetForOwner(ctx, o.ID, "intruder")
	assert.True(t, errors.Is(err, apperr.ErrNotFoundOrForbidden))

	sent, err := e.relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	notes := e.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, inventory.ActionReserve, notes[0].Action)
	assert.Equal(t, o.ID, notes[0].OrderID)

	p1, err := e.payments.CreateIntent(ctx, owner, o.ID)
	require.NoError(t, err)
	p2, err := e.payments.CreateIntent(ctx, owner, o.ID)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, p1.ProviderIntentID, p2.ProviderIntentID)

	settled, err := e.payments.Reconcile(ctx, o.ID, owner, "txn-1", payment.ReportedCompleted)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, settled.Status)

	replayed, err := e.payments.Reconcile(ctx, o.ID, owner, "txn-1", payment.ReportedCompleted)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, replayed.Status)

	_, err = e.payments.Reconcile(ctx, o.ID, owner, "txn-1", payment.ReportedFailed)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	final, err := e.orders.GetForOwner(ctx, o.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, final.Status)
	for _, l := range final.Lines {
		assert.Equal(t, order.LineConfirmed, l.Status)
	}
	assert.Equal(t, order.ShipmentProcessing, final.Shipment.Status)
}

func TestFailedPaymentReleasesStock(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	owner := "user-" + uuid.NewString()
	e.fillCart(t, owner)

	o, err := e.assembler.Assemble(ctx, checkout.Request{OwnerID: owner, Shipping: checkout.Selection{Method: "express"}, Address: testAddress})
	require.NoError(t, err)
	_, err = e.payments.CreateIntent(ctx, owner, o.ID)
	require.NoError(t, err)

	cancelled, err := e.payments.Reconcile(ctx, o.ID, owner, "txn-2", payment.ReportedFailed)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	_, err = e.relay.Flush(ctx)
	require.NoError(t, err)
	notes := e.notifier.all()
	require.Len(t, notes, 2)
	assert.Equal(t, inventory.ActionReserve, notes[0].Action)
	assert.Equal(t, inventory.ActionRelease, notes[1].Action)
}

func TestConvertedCheckout(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	owner := "user-" + uuid.NewString()
	e.fillCart(t, owner)

	o, err := e.assembler.Assemble(ctx, checkout.Request{
		OwnerID:  owner,
		Shipping: checkout.Selection{Method: "standard"},
		Address:  testAddress,
		Currency: "EUR",
	})
	require.NoError(t, err)

	stored, err := e.orders.GetForOwner(ctx, o.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, "EUR", stored.Currency.Code)
	assert.Equal(t, "29.49 EUR", stored.Total.String())
	assert.NoError(t, stored.CheckTotals())
}

func TestConcurrentAddsDoNotLoseUpdates(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	owner := "user-" + uuid.NewString()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.AddItem(ctx, owner, "sku-a", money.MustParse("1.00", money.USD), 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := e.ledger.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, workers, snap.Lines[0].Quantity)
	assert.Equal(t, "20.00 USD", snap.Subtotal.String())
}

func TestConcurrentCheckoutsCreateOneOrder(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	owner := "user-" + uuid.NewString()
	e.fillCart(t, owner)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.assembler.Assemble(ctx, checkout.Request{OwnerID: owner, Shipping: checkout.Selection{Method: "standard"}, Address: testAddress})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, empty int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrEmptyCart):
			empty++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, empty)

	list, err := e.orders.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
