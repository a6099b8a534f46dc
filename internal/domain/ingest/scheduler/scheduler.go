// Package scheduler runs ingestion jobs on a bounded worker pool with
// exponential-backoff retries. Jobs live in memory only; a restart loses them.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Observer receives job lifecycle notifications. Implemented by pkg/metrics.
type Observer interface {
	Submitted(kind string)
	Succeeded(kind string, d time.Duration)
	Retried(kind string, d time.Duration)
	Exhausted(kind string, d time.Duration)
	SetPending(n int)
}

type noopObserver struct{}

func (noopObserver) Submitted(string)                {}
func (noopObserver) Succeeded(string, time.Duration) {}
func (noopObserver) Retried(string, time.Duration)   {}
func (noopObserver) Exhausted(string, time.Duration) {}
func (noopObserver) SetPending(int)                  {}

// Scheduler dispatches runnable jobs, earliest NextRunAt first, to a pool of workers.
// A job is held by at most one worker at a time: it leaves the pending list when
// dispatched and only returns to it after its handler has finished.
type Scheduler struct {
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	workers        int
	queueSize      int
	pollInterval   time.Duration
	handlerTimeout time.Duration
	maxAttempts    int
	backoffBase    time.Duration

	mu          sync.Mutex
	handlers    map[Kind]Handler
	onExhausted ExhaustedFunc
	pending     []*Job
	inFlight    int
	started     bool
	stopped     bool

	work   chan *Job
	wake   chan struct{}
	stopCh chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the number of concurrent handlers. 1 reproduces a single cooperative loop.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize sets the buffer between the dispatcher and the workers.
func WithQueueSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithPollInterval sets how long the dispatcher sleeps when nothing is runnable.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithHandlerTimeout bounds each handler run. Zero means no deadline.
func WithHandlerTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.handlerTimeout = d }
}

// WithDefaults sets the retry settings applied to jobs submitted without overrides.
func WithDefaults(maxAttempts int, backoffBase time.Duration) Option {
	return func(s *Scheduler) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if backoffBase > 0 {
			s.backoffBase = backoffBase
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock overrides the time source used for NextRunAt bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler. Register handlers before calling Start.
func New(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		logger:       logger,
		observer:     noopObserver{},
		now:          time.Now,
		workers:      1,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		backoffBase:  DefaultBackoffBase,
		handlers:     make(map[Kind]Handler),
		wake:         make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.queueSize == 0 {
		s.queueSize = s.workers
	}
	s.work = make(chan *Job, s.queueSize)
	return s
}

// Handle registers the handler for kind, replacing any previous one.
func (s *Scheduler) Handle(kind Kind, h Handler) {
	s.mu.Lock()
	s.handlers[kind] = h
	s.mu.Unlock()
}

// OnExhausted registers the callback for jobs that ran out of attempts.
func (s *Scheduler) OnExhausted(fn ExhaustedFunc) {
	s.mu.Lock()
	s.onExhausted = fn
	s.mu.Unlock()
}

// Submit enqueues a job that is runnable immediately.
func (s *Scheduler) Submit(kind Kind, payload any, opts ...SubmitOption) (JobHandle, error) {
	now := s.now()
	job := &Job{
		ID:          uuid.New(),
		Kind:        kind,
		Payload:     payload,
		MaxAttempts: s.maxAttempts,
		BackoffBase: s.backoffBase,
		NextRunAt:   now,
		SubmittedAt: now,
	}
	for _, opt := range opts {
		opt(job)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return JobHandle{}, ErrStopped
	}
	s.pending = append(s.pending, job)
	n := len(s.pending)
	s.mu.Unlock()

	s.observer.Submitted(string(kind))
	s.observer.SetPending(n)
	s.logger.Info("job queued",
		slog.String("job_id", job.ID.String()),
		slog.String("kind", string(kind)),
		slog.Int("max_attempts", job.MaxAttempts),
	)
	s.signal()

	return JobHandle{ID: job.ID, Kind: kind}, nil
}

// Start launches the dispatcher and the worker goroutines. It returns immediately.
// Handler contexts keep the values of ctx but not its cancellation; only
// Shutdown cancels running work.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.logger.Info("job scheduler starting",
		slog.Int("workers", s.workers),
		slog.Int("queue_size", s.queueSize),
		slog.Duration("poll_interval", s.pollInterval),
	)

	s.wg.Add(1)
	go s.dispatchLoop()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(runCtx)
	}
}

// Shutdown stops dispatching and waits for running handlers. When ctx expires
// first, running handlers are cancelled through their context.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil
	}

	s.logger.Info("job scheduler stopping", slog.Int("pending", s.Pending()))
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("job scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("job scheduler shutdown timed out, cancelling running jobs")
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// Pending returns the number of jobs waiting to run, including those backing off.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// InFlight returns the number of jobs currently held by workers.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()
	defer close(s.work)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		job, wait := s.next()
		if job != nil {
			select {
			case s.work <- job:
				continue
			case <-s.stopCh:
				s.release(job)
				return
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.stopCh:
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// next removes and returns the runnable job with the earliest NextRunAt.
// When nothing is runnable it returns how long to sleep: the poll interval,
// shortened if a backing-off job becomes due sooner.
func (s *Scheduler) next() (*Job, time.Duration) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	wait := s.pollInterval
	for i, j := range s.pending {
		if !j.NextRunAt.After(now) {
			if idx < 0 || j.NextRunAt.Before(s.pending[idx].NextRunAt) {
				idx = i
			}
			continue
		}
		if d := j.NextRunAt.Sub(now); d < wait {
			wait = d
		}
	}
	if idx < 0 {
		return nil, wait
	}

	job := s.pending[idx]
	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
	s.inFlight++
	s.observer.SetPending(len(s.pending))
	return job, 0
}

// release puts an undispatched job back without consuming an attempt.
func (s *Scheduler) release(job *Job) {
	s.mu.Lock()
	s.pending = append(s.pending, job)
	s.inFlight--
	s.mu.Unlock()
}

func (s *Scheduler) workerLoop(ctx context.Context) {
	defer s.wg.Done()

	for job := range s.work {
		select {
		case <-s.stopCh:
			s.release(job)
			continue
		default:
		}
		s.run(ctx, job)
	}
}

func (s *Scheduler) run(ctx context.Context, job *Job) {
	job.Attempts++

	s.mu.Lock()
	h := s.handlers[job.Kind]
	s.mu.Unlock()

	log := s.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("kind", string(job.Kind)),
		slog.Int("attempt", job.Attempts),
	)
	log.Info("processing job")

	start := s.now()
	err := s.invoke(ctx, h, *job)
	elapsed := s.now().Sub(start)

	if err == nil {
		s.finish()
		s.observer.Succeeded(string(job.Kind), elapsed)
		log.Info("job completed", slog.Duration("duration", elapsed))
		return
	}

	log.Error("job failed", slog.Any("error", err))

	if job.Attempts < job.MaxAttempts {
		job.NextRunAt = s.now().Add(Backoff(job.BackoffBase, job.Attempts))

		s.mu.Lock()
		s.pending = append(s.pending, job)
		s.inFlight--
		n := len(s.pending)
		s.mu.Unlock()

		s.observer.Retried(string(job.Kind), elapsed)
		s.observer.SetPending(n)
		log.Info("job will retry", slog.Time("next_run_at", job.NextRunAt))
		s.signal()
		return
	}

	s.finish()
	s.observer.Exhausted(string(job.Kind), elapsed)
	log.Error("job reached max attempts", slog.Int("max_attempts", job.MaxAttempts))

	s.mu.Lock()
	cb := s.onExhausted
	s.mu.Unlock()
	if cb == nil {
		return
	}

	exhaustedErr := fmt.Errorf("%w after %d attempts: %w", ErrJobExhausted, job.Attempts, err)
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("exhausted callback panicked", slog.Any("panic", r))
			}
		}()
		cb(context.WithoutCancel(ctx), *job, exhaustedErr)
	}()
}

func (s *Scheduler) invoke(ctx context.Context, h Handler, job Job) (err error) {
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, job.Kind)
	}

	if s.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.handlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return h(ctx, job)
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}
