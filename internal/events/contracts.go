package events

import (
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/inventory"
)

const (
	inventoryEventVersion  = 1
	inventoryReserveEvent  = "InventoryReserveRequested"
	inventoryReleaseEvent  = "InventoryReleaseRequested"
	inventoryReserveSchema = "contracts/events/inventory/InventoryReserveRequested.v1.payload.schema.json"
	inventoryReleaseSchema = "contracts/events/inventory/InventoryReleaseRequested.v1.payload.schema.json"

	paymentStatusEventName    = "PaymentStatusReported"
	paymentStatusEventVersion = 1
)

// InventoryRequestedEnvelope carries a reserve or release notification.
type InventoryRequestedEnvelope = EventEnvelope[inventory.Notification]

// PaymentStatusReported is what the payment service emits when a gateway
// reports progress on an intent.
type PaymentStatusReported struct {
	OrderID               string `json:"orderId"`
	OwnerID               string `json:"ownerId"`
	ProviderTransactionID string `json:"providerTransactionId"`
	Status                string `json:"status"`
}

type PaymentStatusEnvelope = EventEnvelope[PaymentStatusReported]

type inventoryRoute struct {
	eventName  string
	schema     string
	routingKey string
}

func routeFor(a inventory.Action) inventoryRoute {
	if a == inventory.ActionRelease {
		return inventoryRoute{inventoryReleaseEvent, inventoryReleaseSchema, InventoryReleaseRoutingKey}
	}
	return inventoryRoute{inventoryReserveEvent, inventoryReserveSchema, InventoryReserveRoutingKey}
}

// buildInventoryEnvelope keeps the notification's EventID so receivers can
// dedupe redeliveries of the same outbox row.
func buildInventoryEnvelope(n inventory.Notification, seq *int64) InventoryRequestedEnvelope {
	r := routeFor(n.Action)
	return InventoryRequestedEnvelope{
		EventName:     r.eventName,
		EventVersion:  inventoryEventVersion,
		EventID:       n.EventID,
		CorrelationID: n.OrderID,
		Producer:      ServiceName,
		PartitionKey:  n.OrderID,
		Sequence:      seq,
		OccurredAt:    n.OccurredAt,
		Schema:        r.schema,
		Payload:       n,
	}
}
