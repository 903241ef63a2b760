//go:build integration

package integration

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/currency"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/payment"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/testutil"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/txn"
)

var testAddress = order.Address{Name: "Ada", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []inventory.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n inventory.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingNotifier) all() []inventory.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inventory.Notification(nil), r.notes...)
}

// engine is the fully wired engine on a fresh database.
type engine struct {
	pg        *testutil.Postgres
	ledger    *cart.Ledger
	orders    order.Repository
	assembler *checkout.Assembler
	payments  *payment.Coordinator
	relay     *inventory.Relay
	notifier  *recordingNotifier
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)

	pg := testutil.StartPostgres(t)
	registry, err := currency.LoadRegistry(ctx, pg.DB)
	require.NoError(t, err)

	rates, err := currency.ParseStaticRates("USD:EUR=0.92,USD:JPY=151.2")
	require.NoError(t, err)

	runner := txn.NewCoordinator(pg.DB, logger, txn.WithMaxAttempts(10))
	orders := order.NewRepository(pg.DB, registry)
	outbox := inventory.NewOutbox()
	ledger := cart.NewLedger(runner, cart.NewRepository(registry), money.USD, cart.DefaultMaxLineQuantity)

	pool, err := db.NewPool(ctx, pg.DSN)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	notifier := &recordingNotifier{}
	return &engine{
		pg:     pg,
		ledger: ledger,
		orders: orders,
		assembler: checkout.NewAssembler(checkout.Deps{
			Runner: runner,
			Carts:  ledger,
			Orders: orders,
			Outbox: outbox,
			Rates:  currency.NewConverter(rates, registry),
			Base:   money.USD,
		}),
		payments: payment.NewCoordinator(payment.Deps{
			Runner:   runner,
			Orders:   orders,
			Payments: payment.NewRepository(registry),
			Gateway:  payment.SandboxGateway{},
			Outbox:   outbox,
		}),
		relay:    inventory.NewRelay(pool, notifier, logger),
		notifier: notifier,
	}
}

func (e *engine) fillCart(t *testing.T, owner string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.ledger.AddItem(ctx, owner, "sku-a", money.MustParse("10.00", money.USD), 2)
	require.NoError(t, err)
	_, err = e.ledger.AddItem(ctx, owner, "sku-b", money.MustParse("5.50", money.USD), 1)
	require.NoError(t, err)
}
