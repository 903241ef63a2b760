// Package cart keeps the mutable pre-checkout shopping cart of one owner.
package cart

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/txn"
)

const DefaultMaxLineQuantity = 999

// Ledger serializes all mutations of one owner's cart behind the cart row
// lock, so concurrent edits never lose updates.
type Ledger struct {
	runner  txn.Runner
	repo    Repository
	base    money.Currency
	maxQty  int
	now     func() time.Time
	newLine func() string
}

func NewLedger(runner txn.Runner, repo Repository, base money.Currency, maxQty int) *Ledger {
	if maxQty <= 0 {
		maxQty = DefaultMaxLineQuantity
	}
	return &Ledger{
		runner:  runner,
		repo:    repo,
		base:    base,
		maxQty:  maxQty,
		now:     func() time.Time { return time.Now().UTC() },
		newLine: uuid.NewString,
	}
}

func (l *Ledger) MaxLineQuantity() int { return l.maxQty }

// Currency is the base currency every cart is priced in.
func (l *Ledger) Currency() money.Currency { return l.base }

// AddItem adds quantity units of a variant. A variant already in the cart has
// its quantity increased and keeps the unit price it was first added at.
func (l *Ledger) AddItem(ctx context.Context, ownerID, variantID string, unitPrice money.Money, quantity int) (*Cart, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return nil, apperr.Validation("productVariantId is required")
	}
	if quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}
	if quantity > l.maxQty {
		return nil, l.limitExceeded(quantity)
	}
	if unitPrice.MinorUnits() < 0 {
		return nil, apperr.Validation("unit price must not be negative")
	}
	if unitPrice.Currency().Code != l.base.Code {
		return nil, apperr.Describe(apperr.ErrCurrencyMismatch,
			"cart is priced in %s, got %s", l.base.Code, unitPrice.Currency().Code)
	}

	var out *Cart
	err := l.mutate(ctx, "cart.add_item", ownerID, func(ctx context.Context, tx *sql.Tx, c *Cart) error {
		if i := c.variantIndex(variantID); i >= 0 {
			next := c.Lines[i].Quantity + quantity
			if next > l.maxQty {
				return l.limitExceeded(next)
			}
			if err := l.repo.SetQuantity(ctx, tx, c.ID, c.Lines[i].ID, next); err != nil {
				return err
			}
			c.Lines[i].Quantity = next
		} else {
			line := Line{ID: l.newLine(), VariantID: variantID, UnitPrice: unitPrice, Quantity: quantity}
			if err := l.repo.InsertLine(ctx, tx, c.ID, line); err != nil {
				return err
			}
			c.Lines = append(c.Lines, line)
		}
		out = c
		return nil
	})
	return out, err
}

// UpdateQuantity sets a line's quantity. Zero is rejected; callers remove the
// line instead.
func (l *Ledger) UpdateQuantity(ctx context.Context, ownerID, lineID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1, use remove to delete a line")
	}
	if quantity > l.maxQty {
		return nil, l.limitExceeded(quantity)
	}

	var out *Cart
	err := l.mutate(ctx, "cart.update_quantity", ownerID, func(ctx context.Context, tx *sql.Tx, c *Cart) error {
		i := c.lineIndex(lineID)
		if i < 0 {
			return apperr.Describe(apperr.ErrLineNotFound, "line %s is not in the cart", lineID)
		}
		if err := l.repo.SetQuantity(ctx, tx, c.ID, lineID, quantity); err != nil {
			return err
		}
		c.Lines[i].Quantity = quantity
		out = c
		return nil
	})
	return out, err
}

// RemoveItem deletes a line. Removing a line that is not there succeeds.
func (l *Ledger) RemoveItem(ctx context.Context, ownerID, lineID string) (*Cart, error) {
	var out *Cart
	err := l.mutate(ctx, "cart.remove_item", ownerID, func(ctx context.Context, tx *sql.Tx, c *Cart) error {
		i := c.lineIndex(lineID)
		if i < 0 {
			out = c
			return nil
		}
		if _, err := l.repo.DeleteLine(ctx, tx, c.ID, lineID); err != nil {
			return err
		}
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		out = c
		return nil
	})
	return out, err
}

// Snapshot locks the owner's cart on tx and returns its current contents.
// The lock is held until tx ends, so no edit can interleave with the caller.
func (l *Ledger) Snapshot(ctx context.Context, tx *sql.Tx, ownerID string) (Snapshot, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Snapshot{}, apperr.ErrUnauthenticated
	}
	c, err := l.repo.LockOrCreate(ctx, tx, ownerID, l.base)
	if err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(c, l.now())
}

// Empty removes every line of the snapshotted cart on tx.
func (l *Ledger) Empty(ctx context.Context, tx *sql.Tx, snap Snapshot) error {
	if err := l.repo.Clear(ctx, tx, snap.CartID); err != nil {
		return err
	}
	return l.repo.Touch(ctx, tx, snap.CartID, l.now())
}

// View returns a consistent snapshot in its own short transaction. An owner
// without a cart gets an empty snapshot and no cart is created.
func (l *Ledger) View(ctx context.Context, ownerID string) (Snapshot, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Snapshot{}, apperr.ErrUnauthenticated
	}
	var snap Snapshot
	err := l.runner.Run(ctx, txn.Locked("cart.view"), func(ctx context.Context, tx *sql.Tx) error {
		c, err := l.repo.Find(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if c == nil {
			c = &Cart{OwnerID: ownerID, Currency: l.base}
		}
		s, err := newSnapshot(c, l.now())
		if err != nil {
			return err
		}
		snap = s
		return nil
	})
	return snap, err
}

func (l *Ledger) mutate(ctx context.Context, name, ownerID string, fn func(ctx context.Context, tx *sql.Tx, c *Cart) error) error {
	if strings.TrimSpace(ownerID) == "" {
		return apperr.ErrUnauthenticated
	}
	return l.runner.Run(ctx, txn.Locked(name), func(ctx context.Context, tx *sql.Tx) error {
		c, err := l.repo.LockOrCreate(ctx, tx, ownerID, l.base)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, c); err != nil {
			return err
		}
		c.UpdatedAt = l.now()
		return l.repo.Touch(ctx, tx, c.ID, c.UpdatedAt)
	})
}

func (l *Ledger) limitExceeded(quantity int) error {
	return apperr.Describe(apperr.ErrQuantityLimitExceeded,
		"quantity %d exceeds the per-line limit of %d", quantity, l.maxQty)
}
