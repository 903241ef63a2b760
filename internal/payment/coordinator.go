// Package payment obtains payment for orders through an external gateway and
// settles orders when the gateway reports an outcome.
package payment

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/txn"
)

const DefaultGatewayTimeout = 10 * time.Second

// Reconcile outcomes reported to the Observer.
const (
	OutcomeApplied      = "applied"
	OutcomeReplayed     = "replayed"
	OutcomeIntermediate = "intermediate"
	OutcomeIgnored      = "ignored"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

type OrderStore interface {
	Lock(ctx context.Context, tx *sql.Tx, orderID, ownerID string) (*order.Order, error)
	Settle(ctx context.Context, tx *sql.Tx, orderID string, outcome order.Outcome, at time.Time) error
}

type Observer interface {
	ReconcileFinished(outcome string)
}

type Coordinator struct {
	runner         txn.Runner
	orders         OrderStore
	payments       Repository
	gateway        Gateway
	outbox         inventory.Outbox
	gatewayTimeout time.Duration
	observer       Observer
	now            func() time.Time
	newID          func() string
}

type Deps struct {
	Runner         txn.Runner
	Orders         OrderStore
	Payments       Repository
	Gateway        Gateway
	Outbox         inventory.Outbox
	GatewayTimeout time.Duration
	Observer       Observer
}

func NewCoordinator(d Deps) *Coordinator {
	timeout := d.GatewayTimeout
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}
	return &Coordinator{
		runner:         d.Runner,
		orders:         d.Orders,
		payments:       d.Payments,
		gateway:        d.Gateway,
		outbox:         d.Outbox,
		gatewayTimeout: timeout,
		observer:       d.Observer,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
}

// CreateIntent returns the order's payment, asking the gateway for a new
// intent only when none exists. The order row stays locked across the
// gateway call so two concurrent calls cannot both create an intent; the
// gateway also receives the order ID as its idempotency key.
func (c *Coordinator) CreateIntent(ctx context.Context, ownerID, orderID string) (*Payment, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperr.ErrUnauthenticated
	}

	opts := txn.Locked("payment.create_intent")
	opts.MaxAttempts = 1

	var out *Payment
	err := c.runner.Run(ctx, opts, func(ctx context.Context, tx *sql.Tx) error {
		o, err := c.orders.Lock(ctx, tx, orderID, ownerID)
		if err != nil {
			return err
		}

		existing, err := c.payments.GetByOrder(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}

		if o.Status != order.StatusPendingPayment {
			return apperr.Conflict("order %s is %s, not awaiting payment", o.ID, o.Status)
		}

		gctx, cancel := context.WithTimeout(ctx, c.gatewayTimeout)
		defer cancel()
		intent, err := c.gateway.CreateIntent(gctx, IntentRequest{
			Amount:         o.Total,
			IdempotencyKey: o.ID,
			Metadata:       map[string]string{"orderId": o.ID, "ownerId": o.OwnerID},
		})
		if err != nil {
			return apperr.Retryable("payment gateway unavailable", err)
		}

		now := c.now()
		p := &Payment{
			ID:               c.newID(),
			OrderID:          o.ID,
			Provider:         c.gateway.Name(),
			ProviderIntentID: intent.ProviderIntentID,
			ClientSecret:     intent.ClientSecret,
			Status:           StatusRequiresPayment,
			Amount:           o.Total,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := c.payments.Insert(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reconcile applies a gateway status report to the order. A terminal order
// is never changed again: repeating its outcome is a no-op, a contradicting
// outcome is a ConflictError.
func (c *Coordinator) Reconcile(ctx context.Context, orderID, ownerID, providerTxID string, reported Reported) (o *order.Order, err error) {
	outcome := OutcomeError
	defer func() { c.observe(outcome) }()

	if strings.TrimSpace(ownerID) == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if reported == "" {
		return nil, apperr.Validation("status is required")
	}
	if reported.Reserved() {
		return nil, apperr.Validation("status %q cannot be reported", reported)
	}

	err = c.runner.Run(ctx, txn.Serializable("payment.reconcile"), func(ctx context.Context, tx *sql.Tx) error {
		locked, err := c.orders.Lock(ctx, tx, orderID, ownerID)
		if err != nil {
			return err
		}
		p, err := c.payments.GetByOrder(ctx, tx, locked.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.Retryable("payment for order "+locked.ID+" is not recorded yet", nil)
		}

		if locked.Status.Terminal() {
			if !reported.Terminal() {
				outcome = OutcomeIgnored
				o = locked
				return nil
			}
			if settles(reported).Order == locked.Status {
				outcome = OutcomeReplayed
				o = locked
				return nil
			}
			outcome = OutcomeConflict
			return apperr.Conflict("order %s is already %s, refusing %s", locked.ID, locked.Status, reported)
		}

		now := c.now()
		if !reported.Terminal() {
			if p.Status.Terminal() {
				outcome = OutcomeIgnored
				o = locked
				return nil
			}
			if err := c.payments.UpdateStatus(ctx, tx, p.ID, Status(reported), providerTxID, now); err != nil {
				return err
			}
			outcome = OutcomeIntermediate
			o = locked
			return nil
		}

		settle := settles(reported)
		paid := StatusSucceeded
		if reported == ReportedFailed {
			paid = StatusFailed
		}
		if err := c.payments.UpdateStatus(ctx, tx, p.ID, paid, providerTxID, now); err != nil {
			return err
		}
		if err := c.orders.Settle(ctx, tx, locked.ID, settle, now); err != nil {
			return err
		}
		if reported == ReportedFailed {
			items := make([]inventory.LineItem, 0, len(locked.Lines))
			for _, l := range locked.Lines {
				items = append(items, inventory.LineItem{VariantID: l.VariantID, Quantity: l.Quantity})
			}
			note := inventory.NewNotification(locked.ID, locked.OwnerID, inventory.ActionRelease, items)
			if err := c.outbox.Enqueue(ctx, tx, note); err != nil {
				return err
			}
		}

		applyOutcome(locked, settle, now)
		outcome = OutcomeApplied
		o = locked
		return nil
	})
	if err != nil {
		if outcome != OutcomeConflict {
			outcome = OutcomeError
		}
		return nil, err
	}
	return o, nil
}

func settles(r Reported) order.Outcome {
	if r == ReportedCompleted {
		return order.Confirmed
	}
	return order.Cancelled
}

func applyOutcome(o *order.Order, settle order.Outcome, at time.Time) {
	o.Status = settle.Order
	o.UpdatedAt = at
	for i := range o.Lines {
		o.Lines[i].Status = settle.Lines
	}
	if o.Shipment != nil {
		o.Shipment.Status = settle.Shipment
	}
}

func (c *Coordinator) observe(outcome string) {
	if c.observer != nil {
		c.observer.ReconcileFinished(outcome)
	}
}
