package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

// Repository persists carts. Every method runs on the caller's transaction;
// LockOrCreate must be called first so the cart row lock is held.
type Repository interface {
	LockOrCreate(ctx context.Context, tx *sql.Tx, ownerID string, currency money.Currency) (*Cart, error)
	Find(ctx context.Context, tx *sql.Tx, ownerID string) (*Cart, error)
	InsertLine(ctx context.Context, tx *sql.Tx, cartID string, line Line) error
	SetQuantity(ctx context.Context, tx *sql.Tx, cartID, lineID string, quantity int) error
	DeleteLine(ctx context.Context, tx *sql.Tx, cartID, lineID string) (bool, error)
	Clear(ctx context.Context, tx *sql.Tx, cartID string) error
	Touch(ctx context.Context, tx *sql.Tx, cartID string, at time.Time) error
}

type repo struct {
	registry *money.Registry
}

func NewRepository(registry *money.Registry) Repository {
	return &repo{registry: registry}
}

func (r *repo) LockOrCreate(ctx context.Context, tx *sql.Tx, ownerID string, currency money.Currency) (*Cart, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO carts (id, owner_id, currency)
         VALUES ($1, $2, $3)
         ON CONFLICT (owner_id) DO NOTHING`,
		uuid.NewString(), ownerID, currency.Code,
	)
	if err != nil {
		return nil, fmt.Errorf("insert cart: %w", err)
	}

	c, err := r.load(ctx, tx, `SELECT id, owner_id, currency, updated_at
         FROM carts WHERE owner_id = $1
         FOR UPDATE`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	return c, nil
}

// Find reads the owner's cart without creating it and returns nil when the
// owner has none. The row is share-locked so the lines match one committed
// edit.
func (r *repo) Find(ctx context.Context, tx *sql.Tx, ownerID string) (*Cart, error) {
	c, err := r.load(ctx, tx, `SELECT id, owner_id, currency, updated_at
         FROM carts WHERE owner_id = $1
         FOR SHARE`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}
	return c, nil
}

func (r *repo) load(ctx context.Context, tx *sql.Tx, query, ownerID string) (*Cart, error) {
	var (
		c        Cart
		currCode string
	)
	err := tx.QueryRowContext(ctx, query, ownerID).Scan(&c.ID, &c.OwnerID, &currCode, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if c.Currency, err = r.registry.Lookup(currCode); err != nil {
		return nil, fmt.Errorf("cart currency: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, variant_id, unit_price_minor, quantity
         FROM cart_lines WHERE cart_id = $1
         ORDER BY created_at, id`,
		c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart_lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l     Line
			minor int64
		)
		if err := rows.Scan(&l.ID, &l.VariantID, &minor, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart_line: %w", err)
		}
		l.UnitPrice = money.New(minor, c.Currency)
		c.Lines = append(c.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return &c, nil
}

func (r *repo) InsertLine(ctx context.Context, tx *sql.Tx, cartID string, line Line) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cart_lines (id, cart_id, variant_id, unit_price_minor, quantity)
         VALUES ($1, $2, $3, $4, $5)`,
		line.ID, cartID, line.VariantID, line.UnitPrice.MinorUnits(), line.Quantity,
	)
	if err != nil {
		return fmt.Errorf("insert cart_line: %w", err)
	}
	return nil
}

func (r *repo) SetQuantity(ctx context.Context, tx *sql.Tx, cartID, lineID string, quantity int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE cart_lines SET quantity = $3 WHERE cart_id = $1 AND id = $2`,
		cartID, lineID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update cart_line quantity: %w", err)
	}
	return nil
}

func (r *repo) DeleteLine(ctx context.Context, tx *sql.Tx, cartID, lineID string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE cart_id = $1 AND id = $2`,
		cartID, lineID,
	)
	if err != nil {
		return false, fmt.Errorf("delete cart_line: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *repo) Clear(ctx context.Context, tx *sql.Tx, cartID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *repo) Touch(ctx context.Context, tx *sql.Tx, cartID string, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, at); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
