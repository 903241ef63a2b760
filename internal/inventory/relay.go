package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool that the relay uses.
type DBPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// RelayObserver is told about every delivery attempt.
type RelayObserver interface {
	OutboxPublished(action string, ok bool)
}

// DefaultMaxDeliveries is how many failed deliveries a row gets before the
// relay parks it as failed.
const DefaultMaxDeliveries = 10

type pending struct {
	id       int64
	attempts int
	note     Notification
	// decodeErr is set when the payload could not be read back.
	decodeErr error
}

// Relay drains inventory_outbox through a Notifier. Rows are claimed with
// FOR UPDATE SKIP LOCKED so several relays can run side by side. Rows that
// cannot be decoded, or that keep failing, get failed_at and are no longer
// fetched.
type Relay struct {
	pool          DBPool
	notifier      Notifier
	logger        *log.Logger
	observer      RelayObserver
	interval      time.Duration
	batch         int
	maxDeliveries int
}

type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithMaxDeliveries(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.maxDeliveries = n
		}
	}
}

func WithRelayObserver(o RelayObserver) RelayOption {
	return func(r *Relay) { r.observer = o }
}

func NewRelay(pool DBPool, notifier Notifier, logger *log.Logger, opts ...RelayOption) *Relay {
	r := &Relay{
		pool:          pool,
		notifier:      notifier,
		logger:        logger,
		interval:      time.Second,
		batch:         100,
		maxDeliveries: DefaultMaxDeliveries,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run flushes on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Printf("outbox flush failed: %v", err)
			}
		}
	}
}

// Flush delivers one batch and reports how many notifications were sent.
// A failed delivery bumps the row's attempt counter and leaves it pending
// until maxDeliveries is reached.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch, err := r.fetchPending(ctx, tx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, p := range batch {
		if p.decodeErr != nil {
			r.logger.Printf("outbox park id=%d: undecodable payload: %v", p.id, p.decodeErr)
			if err := markFailed(ctx, tx, p.id, p.decodeErr); err != nil {
				return sent, err
			}
			continue
		}

		if notifyErr := r.notifier.Notify(ctx, p.note); notifyErr != nil {
			r.logger.Printf("outbox deliver id=%d order=%s action=%s attempt=%d: %v",
				p.id, p.note.OrderID, p.note.Action, p.attempts+1, notifyErr)
			r.observe(p.note.Action, false)
			if p.attempts+1 >= r.maxDeliveries {
				r.logger.Printf("outbox park id=%d order=%s after %d attempts", p.id, p.note.OrderID, p.attempts+1)
				if err := markFailed(ctx, tx, p.id, notifyErr); err != nil {
					return sent, err
				}
				continue
			}
			if _, err := tx.Exec(ctx, `UPDATE inventory_outbox SET attempts = attempts + 1 WHERE id = $1`, p.id); err != nil {
				return sent, fmt.Errorf("bump attempts: %w", err)
			}
			continue
		}
		r.observe(p.note.Action, true)
		if _, err := tx.Exec(ctx, `UPDATE inventory_outbox SET sent_at = NOW() WHERE id = $1`, p.id); err != nil {
			return sent, fmt.Errorf("mark sent: %w", err)
		}
		sent++
	}

	if err := tx.Commit(ctx); err != nil {
		return sent, fmt.Errorf("commit: %w", err)
	}
	return sent, nil
}

func markFailed(ctx context.Context, tx pgx.Tx, id int64, cause error) error {
	_, err := tx.Exec(ctx,
		`UPDATE inventory_outbox SET attempts = attempts + 1, failed_at = NOW(), last_error = $2 WHERE id = $1`,
		id, cause.Error(),
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (r *Relay) fetchPending(ctx context.Context, tx pgx.Tx) ([]pending, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, attempts, payload FROM inventory_outbox
         WHERE sent_at IS NULL AND failed_at IS NULL
         ORDER BY id
         LIMIT $1
         FOR UPDATE SKIP LOCKED`,
		r.batch,
	)
	if err != nil {
		return nil, fmt.Errorf("select inventory_outbox: %w", err)
	}
	defer rows.Close()

	var out []pending
	for rows.Next() {
		var (
			p       pending
			payload []byte
		)
		if err := rows.Scan(&p.id, &p.attempts, &payload); err != nil {
			return nil, fmt.Errorf("scan inventory_outbox: %w", err)
		}
		if err := json.Unmarshal(payload, &p.note); err != nil {
			p.decodeErr = err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *Relay) observe(action Action, ok bool) {
	if r.observer != nil {
		r.observer.OutboxPublished(string(action), ok)
	}
}
