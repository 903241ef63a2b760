package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

type Repository interface {
	// GetByOrder returns nil, nil when the order has no payment yet.
	GetByOrder(ctx context.Context, tx *sql.Tx, orderID string) (*Payment, error)
	Insert(ctx context.Context, tx *sql.Tx, p *Payment) error
	UpdateStatus(ctx context.Context, tx *sql.Tx, paymentID string, status Status, providerTxID string, at time.Time) error
}

type repo struct {
	registry *money.Registry
}

func NewRepository(registry *money.Registry) Repository {
	return &repo{registry: registry}
}

func (r *repo) GetByOrder(ctx context.Context, tx *sql.Tx, orderID string) (*Payment, error) {
	var (
		p        Payment
		txID     sql.NullString
		status   string
		minor    int64
		currCode string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, order_id, provider, provider_intent_id, provider_transaction_id, client_secret,
                status, amount_minor, currency, created_at, updated_at
         FROM payments WHERE order_id = $1
         FOR UPDATE`,
		orderID,
	).Scan(&p.ID, &p.OrderID, &p.Provider, &p.ProviderIntentID, &txID, &p.ClientSecret,
		&status, &minor, &currCode, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select payment: %w", err)
	}

	cur, err := r.registry.Lookup(currCode)
	if err != nil {
		return nil, fmt.Errorf("payment currency: %w", err)
	}
	p.ProviderTransactionID = txID.String
	p.Status = Status(status)
	p.Amount = money.New(minor, cur)
	return &p, nil
}

func (r *repo) Insert(ctx context.Context, tx *sql.Tx, p *Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (id, order_id, provider, provider_intent_id, client_secret,
                               status, amount_minor, currency, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		p.ID, p.OrderID, p.Provider, p.ProviderIntentID, p.ClientSecret,
		string(p.Status), p.Amount.MinorUnits(), p.Amount.Currency().Code, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *repo) UpdateStatus(ctx context.Context, tx *sql.Tx, paymentID string, status Status, providerTxID string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payments
         SET status = $2,
             provider_transaction_id = COALESCE(NULLIF($3, ''), provider_transaction_id),
             updated_at = $4
         WHERE id = $1`,
		paymentID, string(status), providerTxID, at,
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}
