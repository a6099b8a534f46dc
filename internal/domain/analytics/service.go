// Package analytics answers aggregate spending queries over the ledger and
// memoizes the answers in the per-owner result cache. The ingestion workers
// invalidate an owner's entries whenever they add transactions.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-ingest/pkg/cache"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/money"
)

// CacheTTL is how long an aggregate stays cached.
const CacheTTL = 300 * time.Second

const (
	DefaultMerchantLimit = 10
	MaxMerchantLimit     = 100
)

var (
	ErrInvalidRange    = errors.New("invalid date range")
	ErrInvalidInterval = errors.New("invalid interval")
)

// Interval groups expenses by date.
type Interval string

const (
	Day   Interval = "day"
	Week  Interval = "week"
	Month Interval = "month"
)

// Valid reports whether i is a supported interval.
func (i Interval) Valid() bool {
	return i == Day || i == Week || i == Month
}

// label formats the start of a period for display.
func (i Interval) label(t time.Time) string {
	switch i {
	case Week:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case Month:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// Query is a date range as received from a client: "YYYY-MM-DD" strings,
// either of which may be empty.
type Query struct {
	From string
	To   string
}

func (q Query) parse() (Range, error) {
	var r Range
	for _, f := range []struct {
		raw string
		dst **time.Time
	}{{q.From, &r.From}, {q.To, &r.To}} {
		if f.raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, f.raw)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, f.raw)
		}
		*f.dst = &t
	}
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return Range{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, q.From, q.To)
	}
	return r, nil
}

// Cache is the part of *cache.ResultCache the service uses.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

// CategoryExpense is the response row of ExpensesByCategory.
type CategoryExpense struct {
	Category string       `json:"category"`
	Total    *money.Money `json:"total"`
	Count    int          `json:"count"`
}

// PeriodExpense is the response row of ExpensesByDate.
type PeriodExpense struct {
	Period string       `json:"period"`
	Total  *money.Money `json:"total"`
	Count  int          `json:"count"`
}

// Totals is an amount and the number of transactions behind it.
type Totals struct {
	Total *money.Money `json:"total"`
	Count int          `json:"count"`
}

// Summary compares income and expenses in one currency.
type Summary struct {
	Currency string       `json:"currency"`
	Income   Totals       `json:"income"`
	Expenses Totals       `json:"expenses"`
	Balance  *money.Money `json:"balance"`
}

// MerchantSpend is the response row of TopMerchants.
type MerchantSpend struct {
	Merchant string       `json:"merchant"`
	Total    *money.Money `json:"total"`
	Count    int          `json:"count"`
}

// Service computes cached aggregates.
type Service struct {
	repo   Repository
	cache  Cache
	logger *slog.Logger
}

// NewService creates an analytics service.
func NewService(repo Repository, c Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: c, logger: logger}
}

// cached returns the value stored under key, or loads, stores and returns it.
func cached[T any](s *Service, key string, load func() (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
		s.logger.Warn("cached value has unexpected type", slog.String("key", key))
	}

	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	s.cache.Set(key, v, CacheTTL)
	return v, nil
}

// ExpensesByCategory sums an owner's expenses per category.
func (s *Service) ExpensesByCategory(ctx context.Context, ownerID uuid.UUID, q Query) ([]CategoryExpense, error) {
	rg, err := q.parse()
	if err != nil {
		return nil, err
	}
	key := cache.Key("expenses-by-category", ownerID.String(), q.From, q.To)

	return cached(s, key, func() ([]CategoryExpense, error) {
		rows, err := s.repo.ExpensesByCategory(ctx, ownerID, rg)
		if err != nil {
			return nil, err
		}
		out := make([]CategoryExpense, 0, len(rows))
		for _, r := range rows {
			out = append(out, CategoryExpense{
				Category: r.Category,
				Total:    money.New(r.TotalMinor, r.Currency),
				Count:    r.Count,
			})
		}
		return out, nil
	})
}

// ExpensesByDate sums an owner's expenses per day, week or month.
// An empty interval means day.
func (s *Service) ExpensesByDate(ctx context.Context, ownerID uuid.UUID, interval Interval, q Query) ([]PeriodExpense, error) {
	if interval == "" {
		interval = Day
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
	}
	rg, err := q.parse()
	if err != nil {
		return nil, err
	}
	key := cache.Key("expenses-by-date", ownerID.String(), string(interval), q.From, q.To)

	return cached(s, key, func() ([]PeriodExpense, error) {
		rows, err := s.repo.ExpensesByPeriod(ctx, ownerID, interval, rg)
		if err != nil {
			return nil, err
		}
		out := make([]PeriodExpense, 0, len(rows))
		for _, r := range rows {
			out = append(out, PeriodExpense{
				Period: interval.label(r.Period),
				Total:  money.New(r.TotalMinor, r.Currency),
				Count:  r.Count,
			})
		}
		return out, nil
	})
}

// Summary returns income, expenses and balance per currency.
func (s *Service) Summary(ctx context.Context, ownerID uuid.UUID, q Query) ([]Summary, error) {
	rg, err := q.parse()
	if err != nil {
		return nil, err
	}
	key := cache.Key("summary", ownerID.String(), q.From, q.To)

	return cached(s, key, func() ([]Summary, error) {
		rows, err := s.repo.TotalsByDirection(ctx, ownerID, rg)
		if err != nil {
			return nil, err
		}

		type sums struct {
			income, expense           int64
			incomeCount, expenseCount int
		}
		var order []string
		byCurrency := make(map[string]*sums)
		for _, r := range rows {
			acc, ok := byCurrency[r.Currency]
			if !ok {
				acc = &sums{}
				byCurrency[r.Currency] = acc
				order = append(order, r.Currency)
			}
			switch r.Direction {
			case "income":
				acc.income += r.TotalMinor
				acc.incomeCount += r.Count
			case "expense":
				acc.expense += r.TotalMinor
				acc.expenseCount += r.Count
			}
		}

		out := make([]Summary, 0, len(order))
		for _, cur := range order {
			acc := byCurrency[cur]
			out = append(out, Summary{
				Currency: cur,
				Income:   Totals{Total: money.New(acc.income, cur), Count: acc.incomeCount},
				Expenses: Totals{Total: money.New(acc.expense, cur), Count: acc.expenseCount},
				Balance:  money.New(acc.income-acc.expense, cur),
			})
		}
		return out, nil
	})
}

// TopMerchants returns the merchants an owner spent most at. A limit of 0
// means DefaultMerchantLimit; limits above MaxMerchantLimit are clamped.
func (s *Service) TopMerchants(ctx context.Context, ownerID uuid.UUID, q Query, limit int) ([]MerchantSpend, error) {
	switch {
	case limit <= 0:
		limit = DefaultMerchantLimit
	case limit > MaxMerchantLimit:
		limit = MaxMerchantLimit
	}
	rg, err := q.parse()
	if err != nil {
		return nil, err
	}
	key := cache.Key("top-merchants", ownerID.String(), q.From, q.To, strconv.Itoa(limit))

	return cached(s, key, func() ([]MerchantSpend, error) {
		rows, err := s.repo.TopMerchants(ctx, ownerID, rg, limit)
		if err != nil {
			return nil, err
		}
		out := make([]MerchantSpend, 0, len(rows))
		for _, r := range rows {
			out = append(out, MerchantSpend{
				Merchant: r.Merchant,
				Total:    money.New(r.TotalMinor, r.Currency),
				Count:    r.Count,
			})
		}
		return out, nil
	})
}
