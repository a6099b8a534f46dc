package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	s := New(testLogger(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

type exhausted struct {
	job Job
	err error
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(2*time.Second, tt.attempts))
		})
	}
}

func TestSubmit_Defaults(t *testing.T) {
	s := New(testLogger())

	h, err := s.Submit(KindReceipt, "payload")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, h.ID)
	assert.Equal(t, KindReceipt, h.Kind)

	require.Len(t, s.pending, 1)
	job := s.pending[0]
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)
	assert.Equal(t, DefaultBackoffBase, job.BackoffBase)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, 1, s.Pending())
}

func TestSubmit_Overrides(t *testing.T) {
	s := New(testLogger(), WithDefaults(5, time.Second))

	_, err := s.Submit(KindImport, nil, WithMaxAttempts(7), WithBackoffBase(250*time.Millisecond))
	require.NoError(t, err)
	_, err = s.Submit(KindImport, nil, WithMaxAttempts(0))
	require.NoError(t, err)

	assert.Equal(t, 7, s.pending[0].MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, s.pending[0].BackoffBase)
	assert.Equal(t, 5, s.pending[1].MaxAttempts, "invalid override keeps the scheduler default")
	assert.Equal(t, time.Second, s.pending[1].BackoffBase)
}

func TestNext_EarliestRunnableFirst(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(testLogger(), WithClock(func() time.Time { return now }), WithPollInterval(time.Second))

	late := &Job{ID: uuid.New(), NextRunAt: now.Add(-1 * time.Second)}
	early := &Job{ID: uuid.New(), NextRunAt: now.Add(-5 * time.Second)}
	future := &Job{ID: uuid.New(), NextRunAt: now.Add(300 * time.Millisecond)}
	s.pending = []*Job{late, future, early}

	job, _ := s.next()
	require.NotNil(t, job)
	assert.Equal(t, early.ID, job.ID)

	job, _ = s.next()
	require.NotNil(t, job)
	assert.Equal(t, late.ID, job.ID)

	job, wait := s.next()
	assert.Nil(t, job, "a backing-off job is not runnable yet")
	assert.Equal(t, 300*time.Millisecond, wait, "sleep is shortened to the next due job")
	assert.Equal(t, 2, s.InFlight())
}

func TestScheduler_RunsJobOnce(t *testing.T) {
	s := startScheduler(t)

	got := make(chan Job, 4)
	s.Handle(KindReceipt, func(_ context.Context, job Job) error {
		got <- job
		return nil
	})
	s.Start(context.Background())

	h, err := s.Submit(KindReceipt, map[string]string{"recordId": "r1"})
	require.NoError(t, err)

	select {
	case job := <-got:
		assert.Equal(t, h.ID, job.ID)
		assert.Equal(t, 1, job.Attempts)
		assert.Equal(t, map[string]string{"recordId": "r1"}, job.Payload)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	select {
	case <-got:
		t.Fatal("successful job must not run again")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_BackoffAndExhaustion(t *testing.T) {
	const base = 40 * time.Millisecond
	s := startScheduler(t)

	handlerErr := errors.New("extraction failed")
	var mu sync.Mutex
	var attempts []time.Time

	s.Handle(KindReceipt, func(_ context.Context, _ Job) error {
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		return handlerErr
	})

	done := make(chan exhausted, 1)
	s.OnExhausted(func(_ context.Context, job Job, err error) {
		done <- exhausted{job: job, err: err}
	})
	s.Start(context.Background())

	_, err := s.Submit(KindReceipt, nil, WithMaxAttempts(3), WithBackoffBase(base))
	require.NoError(t, err)

	var ex exhausted
	select {
	case ex = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never exhausted")
	}

	assert.Equal(t, 3, ex.job.Attempts)
	assert.ErrorIs(t, ex.err, ErrJobExhausted)
	assert.ErrorIs(t, ex.err, handlerErr)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attempts, 3)
	assert.GreaterOrEqual(t, attempts[1].Sub(attempts[0]), base)
	assert.GreaterOrEqual(t, attempts[2].Sub(attempts[1]), 2*base)
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_RetryThenSucceed(t *testing.T) {
	s := startScheduler(t)

	var calls atomic.Int32
	succeeded := make(chan struct{})
	s.Handle(KindImport, func(_ context.Context, _ Job) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		close(succeeded)
		return nil
	})
	s.OnExhausted(func(context.Context, Job, error) {
		t.Error("job should not be exhausted")
	})
	s.Start(context.Background())

	_, err := s.Submit(KindImport, nil, WithBackoffBase(5*time.Millisecond))
	require.NoError(t, err)

	select {
	case <-succeeded:
	case <-time.After(time.Second):
		t.Fatal("job did not succeed on third attempt")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestScheduler_MissingHandlerExhausts(t *testing.T) {
	s := startScheduler(t)

	done := make(chan exhausted, 1)
	s.OnExhausted(func(_ context.Context, job Job, err error) {
		done <- exhausted{job: job, err: err}
	})
	s.Start(context.Background())

	_, err := s.Submit(Kind("unknown"), nil, WithBackoffBase(time.Millisecond))
	require.NoError(t, err)

	select {
	case ex := <-done:
		assert.ErrorIs(t, ex.err, ErrNoHandler)
		assert.Equal(t, DefaultMaxAttempts, ex.job.Attempts)
	case <-time.After(time.Second):
		t.Fatal("job without handler was never exhausted")
	}
}

func TestScheduler_PanicIsFailure(t *testing.T) {
	s := startScheduler(t)

	s.Handle(KindReceipt, func(context.Context, Job) error {
		panic("corrupt state")
	})
	done := make(chan error, 1)
	s.OnExhausted(func(_ context.Context, _ Job, err error) { done <- err })
	s.Start(context.Background())

	_, err := s.Submit(KindReceipt, nil, WithMaxAttempts(1))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "handler panicked")
	case <-time.After(time.Second):
		t.Fatal("panicking job was never exhausted")
	}
}

func TestScheduler_HandlerTimeout(t *testing.T) {
	s := startScheduler(t, WithHandlerTimeout(20*time.Millisecond))

	s.Handle(KindReceipt, func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		return ctx.Err()
	})
	done := make(chan error, 1)
	s.OnExhausted(func(_ context.Context, _ Job, err error) { done <- err })
	s.Start(context.Background())

	_, err := s.Submit(KindReceipt, nil, WithMaxAttempts(1))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("hung handler was not cut off")
	}
}

func TestScheduler_HungJobDoesNotStallOthers(t *testing.T) {
	s := startScheduler(t, WithWorkers(2))

	release := make(chan struct{})
	fast := make(chan struct{})
	s.Handle(KindImport, func(ctx context.Context, _ Job) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	s.Handle(KindReceipt, func(context.Context, Job) error {
		close(fast)
		return nil
	})
	s.Start(context.Background())
	defer close(release)

	_, err := s.Submit(KindImport, nil)
	require.NoError(t, err)
	_, err = s.Submit(KindReceipt, nil)
	require.NoError(t, err)

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("second job was blocked by the hung one")
	}
}

func TestScheduler_AtMostOneHandlerPerJob(t *testing.T) {
	s := startScheduler(t, WithWorkers(4))

	var mu sync.Mutex
	active := make(map[uuid.UUID]int)
	violations := atomic.Int32{}
	var finished sync.WaitGroup
	finished.Add(5)

	s.Handle(KindReceipt, func(_ context.Context, job Job) error {
		mu.Lock()
		active[job.ID]++
		if active[job.ID] > 1 {
			violations.Add(1)
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		active[job.ID]--
		mu.Unlock()
		return errors.New("always fails")
	})
	s.OnExhausted(func(context.Context, Job, error) { finished.Done() })
	s.Start(context.Background())

	for i := 0; i < 5; i++ {
		_, err := s.Submit(KindReceipt, i, WithMaxAttempts(4), WithBackoffBase(time.Millisecond))
		require.NoError(t, err)
	}

	waited := make(chan struct{})
	go func() {
		finished.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not finish")
	}
	assert.Zero(t, violations.Load())
}

func TestScheduler_SubmitAfterShutdown(t *testing.T) {
	s := New(testLogger())
	s.Start(context.Background())

	require.NoError(t, s.Shutdown(context.Background()))

	_, err := s.Submit(KindReceipt, nil)
	assert.ErrorIs(t, err, ErrStopped)
	assert.NoError(t, s.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestScheduler_ShutdownCancelsRunningHandler(t *testing.T) {
	s := New(testLogger(), WithPollInterval(5*time.Millisecond))

	started := make(chan struct{})
	s.Handle(KindImport, func(ctx context.Context, _ Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	s.Start(context.Background())

	_, err := s.Submit(KindImport, nil)
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)
}

func TestScheduler_StartContextCancelDoesNotCancelJobs(t *testing.T) {
	s := startScheduler(t)

	release := make(chan struct{})
	started := make(chan struct{})
	results := make(chan error, 2)
	s.Handle(KindReceipt, func(ctx context.Context, _ Job) error {
		close(started)
		<-release
		results <- ctx.Err()
		return ctx.Err()
	})
	s.Handle(KindImport, func(ctx context.Context, _ Job) error {
		results <- ctx.Err()
		return ctx.Err()
	})

	var exhaustedCount atomic.Int32
	s.OnExhausted(func(context.Context, Job, error) { exhaustedCount.Add(1) })

	startCtx, stop := context.WithCancel(context.Background())
	s.Start(startCtx)

	_, err := s.Submit(KindReceipt, nil)
	require.NoError(t, err)
	<-started

	stop()
	_, err = s.Submit(KindImport, nil)
	require.NoError(t, err)
	close(release)

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("handler was not invoked")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, int32(0), exhaustedCount.Load())
}
