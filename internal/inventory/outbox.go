package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Outbox records a notification on the caller's transaction.
type Outbox interface {
	Enqueue(ctx context.Context, tx *sql.Tx, n Notification) error
}

type sqlOutbox struct{}

func NewOutbox() Outbox {
	return sqlOutbox{}
}

func (sqlOutbox) Enqueue(ctx context.Context, tx *sql.Tx, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO inventory_outbox (event_id, order_id, action, payload, created_at)
         VALUES ($1, $2, $3, $4, $5)`,
		n.EventID, n.OrderID, string(n.Action), payload, n.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert inventory_outbox: %w", err)
	}
	return nil
}
