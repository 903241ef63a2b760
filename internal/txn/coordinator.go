// Package txn runs multi-row writes as single atomic units with a bounded
// retry on serialization conflicts and dropped connections.
package txn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/lib/pq"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
)

// TxFunc is one attempt of a unit of work. It may be called more than once,
// so it must not have side effects outside tx other than idempotent calls.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// Runner is what the engine components depend on.
type Runner interface {
	Run(ctx context.Context, opts Options, fn TxFunc) error
}

type Options struct {
	Name      string
	Isolation sql.IsolationLevel
	// MaxAttempts overrides the coordinator default when > 0.
	MaxAttempts int
}

// Serializable is used for checkout assembly and payment reconciliation.
func Serializable(name string) Options {
	return Options{Name: name, Isolation: sql.LevelSerializable}
}

// Locked is read committed; callers serialize with explicit row locks.
func Locked(name string) Options {
	return Options{Name: name, Isolation: sql.LevelReadCommitted}
}

// RetryObserver receives one call per retried attempt.
type RetryObserver interface {
	TxRetried(name string)
}

type Coordinator struct {
	db          *sql.DB
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *log.Logger
	observer    RetryObserver
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Coordinator)

func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithBackoff(base, max time.Duration) Option {
	return func(c *Coordinator) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

func WithObserver(o RetryObserver) Option {
	return func(c *Coordinator) { c.observer = o }
}

func NewCoordinator(db *sql.DB, logger *log.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		db:          db,
		maxAttempts: 3,
		baseDelay:   25 * time.Millisecond,
		maxDelay:    500 * time.Millisecond,
		logger:      logger,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes fn inside a transaction and commits it. Any error, panic or
// cancellation rolls the transaction back. Serialization failures, deadlocks
// and errors classified as retryable restart fn from scratch in a fresh
// transaction until the attempt budget is spent.
func (c *Coordinator) Run(ctx context.Context, opts Options, fn TxFunc) error {
	attempts := c.maxAttempts
	if opts.MaxAttempts > 0 {
		attempts = opts.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.runOnce(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		if c.observer != nil {
			c.observer.TxRetried(opts.Name)
		}
		delay := c.backoff(attempt)
		c.logger.Printf("tx %s attempt %d/%d failed, retrying in %s: %v", opts.Name, attempt, attempts, delay, err)
		if err := c.sleep(ctx, delay); err != nil {
			return fmt.Errorf("tx %s: %w", opts.Name, err)
		}
	}

	if apperr.IsRetryable(lastErr) {
		return lastErr
	}
	return apperr.Retryable(fmt.Sprintf("tx %s: retries exhausted", opts.Name), lastErr)
}

func (c *Coordinator) runOnce(ctx context.Context, opts Options, fn TxFunc) (err error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{Isolation: opts.Isolation})
	if err != nil {
		return apperr.Retryable("begin tx", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		if isIntegrityViolation(err) {
			return fmt.Errorf("commit: %w", err)
		}
		// The outcome of a failed commit is unknown; callers rerun fn from scratch.
		return apperr.Retryable("commit tx", err)
	}
	return nil
}

func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.baseDelay << (attempt - 1)
	if d > c.maxDelay || d <= 0 {
		d = c.maxDelay
	}
	if d <= 0 {
		return 0
	}
	// full jitter in [d/2, d)
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// shouldRetry reports whether a fresh attempt may succeed.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsSerializationFailure(err) || IsTransient(err) {
		return true
	}
	return apperr.IsRetryable(err)
}

// IsTransient matches failures of the connection rather than of the work:
// dropped or reset connections, Postgres connection_exception (class 08),
// operator intervention (57P01..57P03) and too_many_connections (53300).
func IsTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "57P01", "57P02", "57P03", "53300":
			return true
		}
		return pqErr.Code.Class() == "08"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isIntegrityViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Class() == "23"
}

// IsSerializationFailure matches Postgres serialization_failure (40001) and
// deadlock_detected (40P01).
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
