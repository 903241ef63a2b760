// Package inventory tells the inventory system which stock to hold or give
// back. Notifications are written to an outbox inside the business
// transaction and relayed after commit, so a rolled back checkout never
// reserves stock.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionReserve Action = "reserve"
	ActionRelease Action = "release"
)

type LineItem struct {
	VariantID string `json:"productVariantId"`
	Quantity  int    `json:"quantity"`
}

type Notification struct {
	EventID    string     `json:"eventId"`
	OrderID    string     `json:"orderId"`
	OwnerID    string     `json:"ownerId"`
	Action     Action     `json:"action"`
	Lines      []LineItem `json:"lines"`
	OccurredAt time.Time  `json:"occurredAt"`
}

func NewNotification(orderID, ownerID string, action Action, lines []LineItem) Notification {
	return Notification{
		EventID:    uuid.NewString(),
		OrderID:    orderID,
		OwnerID:    ownerID,
		Action:     action,
		Lines:      lines,
		OccurredAt: time.Now().UTC(),
	}
}

// Notifier delivers a notification to the inventory system. Delivery is at
// least once; receivers dedupe on EventID.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier only logs. It is the sink for local runs without a broker.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	n.logger.Printf("inventory %s order=%s: %s", note.Action, note.OrderID, body)
	return nil
}
