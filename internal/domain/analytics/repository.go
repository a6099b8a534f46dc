package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Range bounds a query by calendar date, inclusive. Nil ends are open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// CategoryTotal is the expense total of one category in one currency.
type CategoryTotal struct {
	Category   string
	Currency   string
	TotalMinor int64
	Count      int
}

// PeriodTotal is the expense total of one period in one currency.
type PeriodTotal struct {
	Period     time.Time
	Currency   string
	TotalMinor int64
	Count      int
}

// DirectionTotal is the income or expense total in one currency.
type DirectionTotal struct {
	Direction  string
	Currency   string
	TotalMinor int64
	Count      int
}

// MerchantTotal is the amount spent at one merchant in one currency.
type MerchantTotal struct {
	Merchant   string
	Currency   string
	TotalMinor int64
	Count      int
}

// Repository runs the aggregate queries over the ledger.
type Repository interface {
	ExpensesByCategory(ctx context.Context, ownerID uuid.UUID, r Range) ([]CategoryTotal, error)
	ExpensesByPeriod(ctx context.Context, ownerID uuid.UUID, interval Interval, r Range) ([]PeriodTotal, error)
	TotalsByDirection(ctx context.Context, ownerID uuid.UUID, r Range) ([]DirectionTotal, error)
	TopMerchants(ctx context.Context, ownerID uuid.UUID, r Range, limit int) ([]MerchantTotal, error)
}

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository implements Repository over the transactions table.
type PostgresRepository struct {
	db DB
}

// NewRepository creates an analytics repository.
func NewRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const rangeFilter = `owner_id = $1
	AND ($2::date IS NULL OR occurred_on >= $2::date)
	AND ($3::date IS NULL OR occurred_on <= $3::date)`

// ExpensesByCategory sums expenses per category, largest first.
func (r *PostgresRepository) ExpensesByCategory(ctx context.Context, ownerID uuid.UUID, rg Range) ([]CategoryTotal, error) {
	query := `
		SELECT category, currency_code, SUM(amount_minor)::bigint, COUNT(*)
		FROM transactions
		WHERE ` + rangeFilter + ` AND direction = 'expense'
		GROUP BY category, currency_code
		ORDER BY 3 DESC, category`

	rows, err := r.db.Query(ctx, query, ownerID, rg.From, rg.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses by category: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CategoryTotal, error) {
		var t CategoryTotal
		err := row.Scan(&t.Category, &t.Currency, &t.TotalMinor, &t.Count)
		return t, err
	})
}

// ExpensesByPeriod sums expenses per day, week or month, oldest first.
func (r *PostgresRepository) ExpensesByPeriod(ctx context.Context, ownerID uuid.UUID, interval Interval, rg Range) ([]PeriodTotal, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
	}

	query := `
		SELECT date_trunc($4, occurred_on::timestamp)::date AS period, currency_code,
		       SUM(amount_minor)::bigint, COUNT(*)
		FROM transactions
		WHERE ` + rangeFilter + ` AND direction = 'expense'
		GROUP BY period, currency_code
		ORDER BY period, currency_code`

	rows, err := r.db.Query(ctx, query, ownerID, rg.From, rg.To, string(interval))
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses by period: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PeriodTotal, error) {
		var t PeriodTotal
		err := row.Scan(&t.Period, &t.Currency, &t.TotalMinor, &t.Count)
		return t, err
	})
}

// TotalsByDirection sums income and expenses separately.
func (r *PostgresRepository) TotalsByDirection(ctx context.Context, ownerID uuid.UUID, rg Range) ([]DirectionTotal, error) {
	query := `
		SELECT direction, currency_code, SUM(amount_minor)::bigint, COUNT(*)
		FROM transactions
		WHERE ` + rangeFilter + `
		GROUP BY direction, currency_code
		ORDER BY currency_code, direction`

	rows, err := r.db.Query(ctx, query, ownerID, rg.From, rg.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DirectionTotal, error) {
		var t DirectionTotal
		err := row.Scan(&t.Direction, &t.Currency, &t.TotalMinor, &t.Count)
		return t, err
	})
}

// TopMerchants returns the merchants with the largest totals.
func (r *PostgresRepository) TopMerchants(ctx context.Context, ownerID uuid.UUID, rg Range, limit int) ([]MerchantTotal, error) {
	query := `
		SELECT merchant, currency_code, SUM(amount_minor)::bigint, COUNT(*)
		FROM transactions
		WHERE ` + rangeFilter + ` AND merchant IS NOT NULL AND merchant <> ''
		GROUP BY merchant, currency_code
		ORDER BY 3 DESC, merchant
		LIMIT $4`

	rows, err := r.db.Query(ctx, query, ownerID, rg.From, rg.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top merchants: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MerchantTotal, error) {
		var t MerchantTotal
		err := row.Scan(&t.Merchant, &t.Currency, &t.TotalMinor, &t.Count)
		return t, err
	})
}
