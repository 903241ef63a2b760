package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

type Repository interface {
	Insert(ctx context.Context, tx *sql.Tx, o *Order) error
	// Lock loads the order with its lines and shipment and holds the order
	// row lock until tx ends.
	Lock(ctx context.Context, tx *sql.Tx, orderID, ownerID string) (*Order, error)
	Settle(ctx context.Context, tx *sql.Tx, orderID string, outcome Outcome, at time.Time) error
	GetForOwner(ctx context.Context, orderID, ownerID string) (*Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Order, error)
}

type repo struct {
	db       *sql.DB
	registry *money.Registry
}

func NewRepository(db *sql.DB, registry *money.Registry) Repository {
	return &repo{db: db, registry: registry}
}

func (r *repo) Insert(ctx context.Context, tx *sql.Tx, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, owner_id, cart_id, currency, subtotal_minor, shipping_minor, tax_minor,
                             total_minor, shipping_method, fx_rate, status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		o.ID, o.OwnerID, o.CartID, o.Currency.Code,
		o.Subtotal.MinorUnits(), o.Shipping.MinorUnits(), o.Tax.MinorUnits(), o.Total.MinorUnits(),
		o.ShippingMethod, o.FXRate.String(), string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Lines {
		l := &o.Lines[i]
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_lines (id, order_id, line_no, variant_id, unit_price_minor, quantity, status)
             VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID, o.ID, l.LineNo, l.VariantID, l.UnitPrice.MinorUnits(), l.Quantity, string(l.Status),
		)
		if err != nil {
			return fmt.Errorf("insert order_line: %w", err)
		}
	}

	if s := o.Shipment; s != nil {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.OrderID = o.ID
		addr, err := json.Marshal(s.Address)
		if err != nil {
			return fmt.Errorf("marshal address: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO shipments (id, order_id, method, status, address, created_at, updated_at)
             VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			s.ID, o.ID, s.Method, string(s.Status), addr, o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert shipment: %w", err)
		}
	}
	return nil
}

const selectOrder = `SELECT o.id, o.owner_id, o.cart_id, o.currency, o.subtotal_minor, o.shipping_minor,
       o.tax_minor, o.total_minor, o.shipping_method, o.fx_rate, o.status, o.created_at, o.updated_at,
       s.id, s.method, s.status, s.address, s.created_at
FROM orders o
LEFT JOIN shipments s ON s.order_id = o.id`

func (r *repo) Lock(ctx context.Context, tx *sql.Tx, orderID, ownerID string) (*Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.ErrNotFoundOrForbidden
	}
	row := tx.QueryRowContext(ctx, selectOrder+` WHERE o.id = $1 FOR UPDATE OF o`, orderID)
	o, err := r.scanOrder(row)
	if err != nil {
		return nil, err
	}
	if o.OwnerID != ownerID {
		return nil, apperr.ErrNotFoundOrForbidden
	}
	if err := r.loadLines(ctx, tx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repo) Settle(ctx context.Context, tx *sql.Tx, orderID string, outcome Outcome, at time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		orderID, string(outcome.Order), at,
	); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE order_lines SET status = $2 WHERE order_id = $1`,
		orderID, string(outcome.Lines),
	); err != nil {
		return fmt.Errorf("update order_lines status: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE shipments SET status = $2, updated_at = $3 WHERE order_id = $1`,
		orderID, string(outcome.Shipment), at,
	); err != nil {
		return fmt.Errorf("update shipment status: %w", err)
	}
	return nil
}

// GetForOwner answers NotFoundOrForbidden for both a missing order and an
// order owned by someone else.
func (r *repo) GetForOwner(ctx context.Context, orderID, ownerID string) (*Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.ErrNotFoundOrForbidden
	}
	o, err := r.scanOrder(r.db.QueryRowContext(ctx, selectOrder+` WHERE o.id = $1`, orderID))
	if err != nil {
		return nil, err
	}
	if o.OwnerID != ownerID {
		return nil, apperr.ErrNotFoundOrForbidden
	}
	if err := r.loadLines(ctx, r.db, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repo) ListByOwner(ctx context.Context, ownerID string) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx,
		selectOrder+` WHERE o.owner_id = $1 ORDER BY o.created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var list []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if err := r.loadLines(ctx, r.db, list); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(list))
	for _, o := range list {
		orders = append(orders, *o)
	}
	return orders, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *repo) scanOrder(s scanner) (*Order, error) {
	var (
		o                              Order
		currCode, status               string
		subtotal, shipping, tax, total int64
		shipID, shipMethod, shipStatus sql.NullString
		shipAddr                       []byte
		shipCreated                    sql.NullTime
	)
	err := s.Scan(&o.ID, &o.OwnerID, &o.CartID, &currCode, &subtotal, &shipping, &tax, &total,
		&o.ShippingMethod, &o.FXRate, &status, &o.CreatedAt, &o.UpdatedAt,
		&shipID, &shipMethod, &shipStatus, &shipAddr, &shipCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFoundOrForbidden
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	cur, err := r.registry.Lookup(currCode)
	if err != nil {
		return nil, fmt.Errorf("order currency: %w", err)
	}
	o.Currency = cur
	o.Status = Status(status)
	o.Subtotal = money.New(subtotal, cur)
	o.Shipping = money.New(shipping, cur)
	o.Tax = money.New(tax, cur)
	o.Total = money.New(total, cur)

	if shipID.Valid {
		sh := &Shipment{
			ID:        shipID.String,
			OrderID:   o.ID,
			Method:    shipMethod.String,
			Status:    ShipmentStatus(shipStatus.String),
			CreatedAt: shipCreated.Time,
		}
		if len(shipAddr) > 0 {
			if err := json.Unmarshal(shipAddr, &sh.Address); err != nil {
				return nil, fmt.Errorf("decode shipment address: %w", err)
			}
		}
		o.Shipment = sh
	}
	return &o, nil
}

func (r *repo) loadLines(ctx context.Context, q db.Querier, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, line_no, variant_id, unit_price_minor, quantity, status
         FROM order_lines WHERE order_id = ANY($1::uuid[])
         ORDER BY order_id, line_no`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("select order_lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l       Line
			orderID string
			minor   int64
			status  string
		)
		if err := rows.Scan(&l.ID, &orderID, &l.LineNo, &l.VariantID, &minor, &l.Quantity, &status); err != nil {
			return fmt.Errorf("scan order_line: %w", err)
		}
		o, ok := byID[orderID]
		if !ok {
			continue
		}
		l.UnitPrice = money.New(minor, o.Currency)
		l.Status = LineStatus(status)
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	return nil
}
