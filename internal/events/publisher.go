package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/sequence"
)

// Publisher sends inventory notifications to the events exchange. It
// implements inventory.Notifier.
type Publisher struct {
	ch  Channel
	seq sequence.Counter
}

// InventoryStream scopes the sequence counter used for inventory requests.
const InventoryStream = "inventory"

// NewPublisher declares the exchange on ch. seq should be scoped to
// InventoryStream.
func NewPublisher(ch Channel, seq sequence.Counter) (*Publisher, error) {
	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{ch: ch, seq: seq}, nil
}

func (p *Publisher) Notify(ctx context.Context, n inventory.Notification) error {
	seq, err := p.seq.Next(ctx, n.OrderID)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	env := buildInventoryEnvelope(n, &seq)

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.EventName, err)
	}
	return p.publishJSON(ctx, routeFor(n.Action).routingKey, env.EventID, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey, messageID string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}
