package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestRepository_ExpensesByCategory(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	owner := uuid.New()
	from := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT category, currency_code.*direction = 'expense'.*GROUP BY category`).
		WithArgs(owner, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"category", "currency_code", "sum", "count"}).
			AddRow("groceries", "INR", int64(5000), 2).
			AddRow("other", "INR", int64(100), 1))

	got, err := repo.ExpensesByCategory(context.Background(), owner, Range{From: &from})
	require.NoError(t, err)
	assert.Equal(t, []CategoryTotal{
		{Category: "groceries", Currency: "INR", TotalMinor: 5000, Count: 2},
		{Category: "other", Currency: "INR", TotalMinor: 100, Count: 1},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ExpensesByPeriod(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	owner := uuid.New()
	period := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)date_trunc\(\$4`).
		WithArgs(owner, pgxmock.AnyArg(), pgxmock.AnyArg(), "month").
		WillReturnRows(pgxmock.NewRows([]string{"period", "currency_code", "sum", "count"}).
			AddRow(period, "USD", int64(999), 3))

	got, err := repo.ExpensesByPeriod(context.Background(), owner, Month, Range{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, period, got[0].Period)
	assert.Equal(t, int64(999), got[0].TotalMinor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ExpensesByPeriod_InvalidInterval(t *testing.T) {
	repo := NewRepository(newMock(t))
	_, err := repo.ExpensesByPeriod(context.Background(), uuid.New(), "hour", Range{})
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestRepository_TopMerchants(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	owner := uuid.New()

	mock.ExpectQuery(`(?s)SELECT merchant.*LIMIT \$4`).
		WithArgs(owner, pgxmock.AnyArg(), pgxmock.AnyArg(), 5).
		WillReturnRows(pgxmock.NewRows([]string{"merchant", "currency_code", "sum", "count"}).
			AddRow("Walmart", "USD", int64(12000), 4))

	got, err := repo.TopMerchants(context.Background(), owner, Range{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []MerchantTotal{{Merchant: "Walmart", Currency: "USD", TotalMinor: 12000, Count: 4}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_QueryError(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	dbErr := errors.New("connection refused")

	ownerID := uuid.New()
	mock.ExpectQuery(`SELECT direction`).
		WithArgs(ownerID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(dbErr)

	_, err := repo.TotalsByDirection(context.Background(), ownerID, Range{})
	assert.ErrorIs(t, err, dbErr)
}
