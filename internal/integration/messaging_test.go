//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/dedup"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/sequence"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/testutil"
)

func TestPublisherSequencesPerOrder(t *testing.T) {
	e := newEngine(t)
	conn := testutil.StartRabbitMQ(t)

	ch, err := conn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	pub, err := events.NewPublisher(ch, sequence.NewCounter(e.pg.DB, events.InventoryStream))
	require.NoError(t, err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "inventory.#", events.EventsExchange, false, nil))
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	ctx := context.Background()
	orderID := uuid.NewString()
	lines := []inventory.LineItem{{VariantID: "sku-a", Quantity: 1}}
	require.NoError(t, pub.Notify(ctx, inventory.NewNotification(orderID, "user-1", inventory.ActionReserve, lines)))
	require.NoError(t, pub.Notify(ctx, inventory.NewNotification(orderID, "user-1", inventory.ActionRelease, lines)))

	var got []events.InventoryRequestedEnvelope
	for len(got) < 2 {
		select {
		case m := <-msgs:
			var env events.InventoryRequestedEnvelope
			require.NoError(t, json.Unmarshal(m.Body, &env))
			got = append(got, env)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for inventory messages")
		}
	}
	require.NotNil(t, got[0].Sequence)
	require.NotNil(t, got[1].Sequence)
	assert.Equal(t, int64(1), *got[0].Sequence)
	assert.Equal(t, int64(2), *got[1].Sequence)
	assert.Equal(t, inventory.ActionRelease, got[1].Payload.Action)
}

func TestPaymentStatusConsumerConfirmsOrder(t *testing.T) {
	e := newEngine(t)
	conn := testutil.StartRabbitMQ(t)
	logger := log.New(io.Discard, "", 0)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	owner := "user-" + uuid.NewString()
	e.fillCart(t, owner)
	o, err := e.assembler.Assemble(ctx, checkout.Request{OwnerID: owner, Shipping: checkout.Selection{Method: "standard"}, Address: testAddress})
	require.NoError(t, err)
	_, err = e.payments.CreateIntent(ctx, owner, o.ID)
	require.NoError(t, err)

	consumeCh, err := conn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumeCh.Close() })
	handler := events.PaymentStatusHandler(e.payments, dedup.NewCheckpoints(e.pg.DB, events.PaymentStatusConsumer), logger)
	_, err = events.StartConsumer(ctx, consumeCh, events.PaymentStatusRoutingKey, handler, logger)
	require.NoError(t, err)

	pubCh, err := conn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { _ = pubCh.Close() })

	seq := int64(1)
	body, err := json.Marshal(events.PaymentStatusEnvelope{
		EventName:    "PaymentStatusReported",
		EventVersion: 1,
		EventID:      uuid.NewString(),
		Producer:     "payment-service",
		PartitionKey: o.ID,
		Sequence:     &seq,
		OccurredAt:   time.Now().UTC(),
		Payload: events.PaymentStatusReported{
			OrderID:               o.ID,
			OwnerID:               owner,
			ProviderTransactionID: "txn-1",
			Status:                "completed",
		},
	})
	require.NoError(t, err)
	require.NoError(t, pubCh.PublishWithContext(ctx, events.EventsExchange, events.PaymentStatusRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}))

	require.Eventually(t, func() bool {
		got, err := e.orders.GetForOwner(ctx, o.ID, owner)
		return err == nil && got.Status == order.StatusConfirmed
	}, 15*time.Second, 100*time.Millisecond)
}
