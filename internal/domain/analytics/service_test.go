package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-ingest/pkg/cache"
)

type fakeRepo struct {
	mu         sync.Mutex
	calls      map[string]int
	categories []CategoryTotal
	periods    []PeriodTotal
	totals     []DirectionTotal
	merchants  []MerchantTotal
	lastRange  Range
	lastLimit  int
	err        error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{calls: make(map[string]int)}
}

func (f *fakeRepo) record(name string, r Range) {
	f.mu.Lock()
	f.calls[name]++
	f.lastRange = r
	f.mu.Unlock()
}

func (f *fakeRepo) ExpensesByCategory(_ context.Context, _ uuid.UUID, r Range) ([]CategoryTotal, error) {
	f.record("category", r)
	return f.categories, f.err
}

func (f *fakeRepo) ExpensesByPeriod(_ context.Context, _ uuid.UUID, _ Interval, r Range) ([]PeriodTotal, error) {
	f.record("period", r)
	return f.periods, f.err
}

func (f *fakeRepo) TotalsByDirection(_ context.Context, _ uuid.UUID, r Range) ([]DirectionTotal, error) {
	f.record("totals", r)
	return f.totals, f.err
}

func (f *fakeRepo) TopMerchants(_ context.Context, _ uuid.UUID, r Range, limit int) ([]MerchantTotal, error) {
	f.record("merchants", r)
	f.lastLimit = limit
	return f.merchants, f.err
}

func newTestService(repo Repository, now *time.Time) (*Service, *cache.ResultCache) {
	c := cache.New(cache.WithClock(func() time.Time { return *now }))
	return NewService(repo, c, slog.New(slog.NewTextHandler(io.Discard, nil))), c
}

func TestExpensesByCategory_Cached(t *testing.T) {
	repo := newFakeRepo()
	repo.categories = []CategoryTotal{
		{Category: "groceries", Currency: "INR", TotalMinor: 125050, Count: 3},
		{Category: "food", Currency: "INR", TotalMinor: 4000, Count: 1},
	}
	now := time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)
	svc, c := newTestService(repo, &now)
	owner := uuid.New()
	q := Query{From: "2025-04-01", To: "2025-04-30"}

	got, err := svc.ExpensesByCategory(context.Background(), owner, q)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "groceries", got[0].Category)
	assert.Equal(t, int64(125050), got[0].Total.Amount())
	assert.Equal(t, "INR", got[0].Total.Currency())
	assert.Equal(t, 3, got[0].Count)

	_, ok := c.Get("expenses-by-category:" + owner.String() + ":2025-04-01:2025-04-30")
	assert.True(t, ok)

	_, err = svc.ExpensesByCategory(context.Background(), owner, q)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls["category"], "second call served from cache")

	now = now.Add(CacheTTL + time.Second)
	_, err = svc.ExpensesByCategory(context.Background(), owner, q)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls["category"], "expired entry reloads")
}

func TestExpensesByCategory_InvalidateScope(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now()
	svc, c := newTestService(repo, &now)
	a, b := uuid.New(), uuid.New()

	for _, owner := range []uuid.UUID{a, b} {
		_, err := svc.ExpensesByCategory(context.Background(), owner, Query{})
		require.NoError(t, err)
	}
	c.Invalidate(a.String())

	for _, owner := range []uuid.UUID{a, b} {
		_, err := svc.ExpensesByCategory(context.Background(), owner, Query{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, repo.calls["category"], "only the invalidated owner reloads")
}

func TestExpensesByCategory_RangeParsing(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now()
	svc, _ := newTestService(repo, &now)

	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{"open range", Query{}, false},
		{"from only", Query{From: "2025-01-01"}, false},
		{"single day", Query{From: "2025-01-01", To: "2025-01-01"}, false},
		{"bad date", Query{From: "01/02/2025"}, true},
		{"from after to", Query{From: "2025-02-01", To: "2025-01-01"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ExpensesByCategory(context.Background(), uuid.New(), tt.q)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			require.NoError(t, err)
		})
	}

	_, err := svc.ExpensesByCategory(context.Background(), uuid.New(), Query{From: "2025-01-01"})
	require.NoError(t, err)
	require.NotNil(t, repo.lastRange.From)
	assert.Nil(t, repo.lastRange.To)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), *repo.lastRange.From)
}

func TestExpensesByDate(t *testing.T) {
	repo := newFakeRepo()
	repo.periods = []PeriodTotal{
		{Period: time.Date(2024, time.December, 30, 0, 0, 0, 0, time.UTC), Currency: "USD", TotalMinor: 1000, Count: 2},
	}
	now := time.Now()
	svc, c := newTestService(repo, &now)
	owner := uuid.New()

	tests := []struct {
		interval Interval
		want     string
	}{
		{"", "2024-12-30"},
		{Day, "2024-12-30"},
		{Week, "2025-W01"},
		{Month, "2024-12"},
	}
	for _, tt := range tests {
		t.Run(string(tt.interval), func(t *testing.T) {
			got, err := svc.ExpensesByDate(context.Background(), owner, tt.interval, Query{})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Period)
		})
	}

	_, ok := c.Get("expenses-by-date:" + owner.String() + ":week::")
	assert.True(t, ok)

	_, err := svc.ExpensesByDate(context.Background(), owner, "year", Query{})
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestSummary(t *testing.T) {
	repo := newFakeRepo()
	repo.totals = []DirectionTotal{
		{Direction: "expense", Currency: "INR", TotalMinor: 70000, Count: 4},
		{Direction: "income", Currency: "INR", TotalMinor: 250000, Count: 1},
		{Direction: "expense", Currency: "USD", TotalMinor: 1500, Count: 1},
	}
	now := time.Now()
	svc, _ := newTestService(repo, &now)

	got, err := svc.Summary(context.Background(), uuid.New(), Query{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	inr := got[0]
	assert.Equal(t, "INR", inr.Currency)
	assert.Equal(t, int64(250000), inr.Income.Total.Amount())
	assert.Equal(t, 1, inr.Income.Count)
	assert.Equal(t, int64(70000), inr.Expenses.Total.Amount())
	assert.Equal(t, 4, inr.Expenses.Count)
	assert.Equal(t, int64(180000), inr.Balance.Amount())

	usd := got[1]
	assert.Equal(t, int64(-1500), usd.Balance.Amount())
	assert.Zero(t, usd.Income.Count)
}

func TestTopMerchants_Limit(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now()
	svc, _ := newTestService(repo, &now)

	tests := []struct {
		in, want int
	}{
		{0, DefaultMerchantLimit},
		{5, 5},
		{1000, MaxMerchantLimit},
	}
	for _, tt := range tests {
		_, err := svc.TopMerchants(context.Background(), uuid.New(), Query{}, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, repo.lastLimit)
	}
}

func TestRepositoryErrorNotCached(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("db down")
	now := time.Now()
	svc, c := newTestService(repo, &now)

	_, err := svc.Summary(context.Background(), uuid.New(), Query{})
	require.Error(t, err)
	assert.Zero(t, c.Len())
}
