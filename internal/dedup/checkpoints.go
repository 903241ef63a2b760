// Package dedup decides whether an inbound, sequenced message still needs to
// be applied. Each consumer keeps one checkpoint per partition: the highest
// sequence it has finished with.
package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/db"
)

type Verdict int

const (
	// Apply is the next expected sequence, or the first one seen.
	Apply Verdict = iota
	// ApplyAfterGap is newer than expected; earlier messages were lost or
	// are still in flight.
	ApplyAfterGap
	// Skip was already applied or is older than something that was.
	Skip
)

func (v Verdict) String() string {
	switch v {
	case Apply:
		return "apply"
	case ApplyAfterGap:
		return "apply_after_gap"
	default:
		return "skip"
	}
}

// Classify compares incoming with the checkpoint last.
func Classify(last int64, found bool, incoming int64) Verdict {
	switch {
	case !found:
		return Apply
	case incoming <= last:
		return Skip
	case incoming > last+1:
		return ApplyAfterGap
	default:
		return Apply
	}
}

// Checkpoints is bound to a single consumer.
type Checkpoints interface {
	// Check returns the verdict for seq together with the stored checkpoint
	// (0 when there is none).
	Check(ctx context.Context, partitionKey string, seq int64) (Verdict, int64, error)
	// Advance records seq as applied. A checkpoint never moves backwards.
	Advance(ctx context.Context, partitionKey string, seq int64) error
}

type store struct {
	q        db.Querier
	consumer string
}

func NewCheckpoints(q db.Querier, consumer string) Checkpoints {
	return &store{q: q, consumer: consumer}
}

func (s *store) Check(ctx context.Context, partitionKey string, seq int64) (Verdict, int64, error) {
	var last int64
	err := s.q.QueryRowContext(ctx, `
		SELECT last_sequence
		FROM event_dedup_checkpoint
		WHERE consumer_name = $1 AND partition_key = $2
	`, s.consumer, partitionKey).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Classify(0, false, seq), 0, nil
	case err != nil:
		return Skip, 0, fmt.Errorf("read checkpoint %s/%s: %w", s.consumer, partitionKey, err)
	}
	return Classify(last, true, seq), last, nil
}

func (s *store) Advance(ctx context.Context, partitionKey string, seq int64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO event_dedup_checkpoint (consumer_name, partition_key, last_sequence, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (consumer_name, partition_key)
		DO UPDATE SET
			last_sequence = GREATEST(event_dedup_checkpoint.last_sequence, EXCLUDED.last_sequence),
			updated_at = NOW()
	`, s.consumer, partitionKey, seq)
	if err != nil {
		return fmt.Errorf("advance checkpoint %s/%s to %d: %w", s.consumer, partitionKey, seq, err)
	}
	return nil
}
