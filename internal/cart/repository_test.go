package cart

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

func TestRepoLockOrCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO carts`)).
		WithArgs(sqlmock.AnyArg(), "u1", "USD").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, owner_id, currency, updated_at`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "currency", "updated_at"}).
			AddRow("c1", "u1", "USD", now))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, variant_id, unit_price_minor, quantity`)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "variant_id", "unit_price_minor", "quantity"}).
			AddRow("l1", "sku-a", int64(1000), 2).
			AddRow("l2", "sku-b", int64(550), 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	r := NewRepository(money.DefaultRegistry())
	c, err := r.LockOrCreate(context.Background(), tx, "u1", money.USD)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, "c1", c.ID)
	require.Len(t, c.Lines, 2)
	assert.Equal(t, "USD", c.Lines[0].UnitPrice.Currency().Code)
	assert.Equal(t, int64(2000), c.Lines[0].Total().MinorUnits())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR SHARE`)).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`FOR SHARE`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "currency", "updated_at"}).
			AddRow("c1", "u1", "USD", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, variant_id, unit_price_minor, quantity`)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "variant_id", "unit_price_minor", "quantity"}))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	r := NewRepository(money.DefaultRegistry())

	c, err := r.Find(context.Background(), tx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = r.Find(context.Background(), tx, "u1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "c1", c.ID)
	assert.Empty(t, c.Lines)

	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoDeleteLineReportsMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_lines WHERE cart_id = $1 AND id = $2`)).
		WithArgs("c1", "l9").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	ok, err := NewRepository(money.DefaultRegistry()).DeleteLine(context.Background(), tx, "c1", "l9")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}
