package currency

import (
	"context"
	"fmt"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

// LoadRegistry reads the currencies reference table.
func LoadRegistry(ctx context.Context, q db.Querier) (*money.Registry, error) {
	rows, err := q.QueryContext(ctx, `SELECT code, decimal_places, locale FROM currencies ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("select currencies: %w", err)
	}
	defer rows.Close()

	var list []money.Currency
	for rows.Next() {
		var c money.Currency
		if err := rows.Scan(&c.Code, &c.DecimalPlaces, &c.Locale); err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("currencies table is empty")
	}
	return money.NewRegistry(list...), nil
}
