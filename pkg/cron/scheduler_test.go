package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct{ calls int }

func (f *fakeSweeper) Sweep() int { f.calls++; return 3 }

type fakeCounter struct {
	cutoff time.Time
	n      int
	err    error
}

func (f *fakeCounter) CountStale(_ context.Context, before time.Time) (int, error) {
	f.cutoff = before
	return f.n, f.err
}

type fakeGauge struct{ value int }

type fakeEvictor struct{ idle time.Duration }

func (f *fakeEvictor) EvictIdle(idle time.Duration) int { f.idle = idle; return 1 }

func (g *fakeGauge) SetStale(n int) { g.value = n }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunNow(t *testing.T) {
	sweeper := &fakeSweeper{}
	counter := &fakeCounter{n: 2}
	gauge := &fakeGauge{}
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	s := NewScheduler(Config{StaleAfter: 10 * time.Minute}, sweeper, counter, gauge, testLogger())
	s.now = func() time.Time { return now }
	s.RunNow()

	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, now.Add(-10*time.Minute), counter.cutoff)
	assert.Equal(t, 2, gauge.value)
}

func TestScheduler_CountStaleError(t *testing.T) {
	gauge := &fakeGauge{value: 7}
	s := NewScheduler(Config{}, nil, &fakeCounter{err: errors.New("db down")}, gauge, testLogger())
	s.RunNow()

	assert.Equal(t, 7, gauge.value, "gauge keeps its last value on error")
}

func TestScheduler_Start(t *testing.T) {
	s := NewScheduler(Config{}, &fakeSweeper{}, &fakeCounter{}, &fakeGauge{}, testLogger())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	<-s.Stop().Done()
}

func TestScheduler_Start_InvalidSchedule(t *testing.T) {
	s := NewScheduler(Config{SweepSchedule: "not a schedule"}, &fakeSweeper{}, nil, nil, testLogger())
	assert.Error(t, s.Start())
}

func TestScheduler_EvictsIdleLimiterClients(t *testing.T) {
	evictor := &fakeEvictor{}
	s := NewScheduler(Config{LimiterIdle: time.Hour}, nil, nil, nil, testLogger())
	s.SetLimiter(evictor)
	s.RunNow()
	assert.Equal(t, time.Hour, evictor.idle)

	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	<-s.Stop().Done()
}
