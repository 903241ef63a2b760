package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/dedup"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/payment"
)

// PaymentStatusConsumer names the checkpoints kept by PaymentStatusHandler.
const PaymentStatusConsumer = ServiceName + ".payment-status"

type Reconciler interface {
	Reconcile(ctx context.Context, orderID, ownerID, providerTxID string, reported payment.Reported) (*order.Order, error)
}

// PaymentStatusHandler applies PaymentStatusReported events. Reports older
// than the last applied sequence for the order are dropped; a report that
// contradicts a settled order is logged and acknowledged. Only validation
// and auth failures are final; anything else is returned as retryable.
func PaymentStatusHandler(rec Reconciler, checkpoints dedup.Checkpoints, logger *log.Logger) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var env PaymentStatusEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("unmarshal PaymentStatusReported: %w", err)
		}
		if err := env.Validate(paymentStatusEventName, paymentStatusEventVersion); err != nil {
			return fmt.Errorf("validate PaymentStatusReported: %w", err)
		}
		ev := env.Payload
		if ev.OrderID == "" {
			return apperr.Validation("PaymentStatusReported %s has no orderId", env.EventID)
		}

		if env.Sequence != nil {
			verdict, last, err := checkpoints.Check(ctx, env.PartitionKey, *env.Sequence)
			if err != nil {
				return apperr.Retryable("read dedup checkpoint", err)
			}
			switch verdict {
			case dedup.Skip:
				logger.Printf("skipping PaymentStatusReported %s: seq %d <= last %d for %s",
					env.EventID, *env.Sequence, last, env.PartitionKey)
				return nil
			case dedup.ApplyAfterGap:
				logger.Printf("WARNING: sequence gap for %s: expected %d, got %d", env.PartitionKey, last+1, *env.Sequence)
			}
		}

		o, err := rec.Reconcile(ctx, ev.OrderID, ev.OwnerID, ev.ProviderTransactionID, payment.ParseReported(ev.Status))
		switch {
		case err == nil:
			logger.Printf("order %s is %s after %s report", o.ID, o.Status, ev.Status)
		case apperr.KindOf(err) == apperr.KindConflict:
			logger.Printf("ignoring contradicting payment report for order %s: %v", ev.OrderID, err)
		case apperr.KindOf(err) == apperr.KindUnknown:
			// unclassified failures are redelivered rather than dropped
			return apperr.Retryable("reconcile order "+ev.OrderID, err)
		default:
			return fmt.Errorf("reconcile order %s: %w", ev.OrderID, err)
		}

		if env.Sequence != nil {
			if err := checkpoints.Advance(ctx, env.PartitionKey, *env.Sequence); err != nil {
				return apperr.Retryable("advance dedup checkpoint", err)
			}
		}
		return nil
	}
}
