// Package sequence numbers outgoing events. Numbers are per stream and key,
// so every order gets its own gap-free run of inventory requests that
// receivers can apply in order.
package sequence

import (
	"context"
	"fmt"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/db"
)

type Counter interface {
	// Next returns 1 for the first event of key, then 2, 3, ...
	Next(ctx context.Context, key string) (int64, error)
}

type counter struct {
	q      db.Querier
	stream string
}

// NewCounter returns a Counter whose rows in event_sequence are stored as
// "<stream>:<key>".
func NewCounter(q db.Querier, stream string) Counter {
	return &counter{q: q, stream: stream}
}

func (c *counter) Next(ctx context.Context, key string) (int64, error) {
	partition := c.stream + ":" + key

	var seq int64
	if err := c.q.QueryRowContext(ctx, `
		INSERT INTO event_sequence (partition_key, last_sequence, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (partition_key)
		DO UPDATE SET last_sequence = event_sequence.last_sequence + 1, updated_at = NOW()
		RETURNING last_sequence
	`, partition).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", partition, err)
	}
	return seq, nil
}
