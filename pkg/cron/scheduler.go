// Package cron provides scheduled maintenance jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper drops expired cache entries.
type Sweeper interface {
	Sweep() int
}

// StaleCounter counts records stuck in processing since before a cutoff.
type StaleCounter interface {
	CountStale(ctx context.Context, startedBefore time.Time) (int, error)
}

// Evictor drops rate limiter clients that have been idle longer than idle.
type Evictor interface {
	EvictIdle(idle time.Duration) int
}

// Gauge receives the latest stale record count.
type Gauge interface {
	SetStale(n int)
}

// Config holds the job schedules in standard 5-field cron format.
type Config struct {
	SweepSchedule string
	StaleSchedule string
	StaleAfter    time.Duration

	LimiterSchedule string
	LimiterIdle     time.Duration
}

// Scheduler manages background maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	cache   Sweeper
	records StaleCounter
	gauge   Gauge
	limiter Evictor
	logger  *slog.Logger
	now     func() time.Time
}

// NewScheduler creates a new job scheduler.
func NewScheduler(cfg Config, cache Sweeper, records StaleCounter, gauge Gauge, logger *slog.Logger) *Scheduler {
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "*/10 * * * *"
	}
	if cfg.StaleSchedule == "" {
		cfg.StaleSchedule = "*/5 * * * *"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.LimiterSchedule == "" {
		cfg.LimiterSchedule = "*/15 * * * *"
	}
	if cfg.LimiterIdle <= 0 {
		cfg.LimiterIdle = 30 * time.Minute
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:    c,
		cfg:     cfg,
		cache:   cache,
		records: records,
		gauge:   gauge,
		logger:  logger,
		now:     time.Now,
	}
}

// SetLimiter registers a rate limiter whose idle clients are evicted
// periodically. It must be called before Start.
func (s *Scheduler) SetLimiter(ev Evictor) {
	s.limiter = ev
}

// Start registers the jobs and begins running them.
func (s *Scheduler) Start() error {
	if s.cache != nil {
		if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.sweepCache); err != nil {
			return err
		}
	}
	if s.records != nil {
		if _, err := s.cron.AddFunc(s.cfg.StaleSchedule, s.countStale); err != nil {
			return err
		}
	}

	if s.limiter != nil {
		if _, err := s.cron.AddFunc(s.cfg.LimiterSchedule, s.evictLimiter); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop stops the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs every job once, synchronously.
func (s *Scheduler) RunNow() {
	if s.cache != nil {
		s.sweepCache()
	}
	if s.records != nil {
		s.countStale()
	}
	if s.limiter != nil {
		s.evictLimiter()
	}
}

func (s *Scheduler) sweepCache() {
	n := s.cache.Sweep()
	s.logger.Debug("cache sweep completed", slog.Int("evicted", n))
}

func (s *Scheduler) evictLimiter() {
	n := s.limiter.EvictIdle(s.cfg.LimiterIdle)
	s.logger.Debug("rate limiter eviction completed", slog.Int("evicted", n))
}

// countStale reports receipts that have been processing longer than StaleAfter,
// which usually means a worker died mid-job.
func (s *Scheduler) countStale() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.records.CountStale(ctx, s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		s.logger.Error("failed to count stale records", slog.Any("error", err))
		return
	}
	if s.gauge != nil {
		s.gauge.SetStale(n)
	}
	if n > 0 {
		s.logger.Warn("records stuck in processing",
			slog.Int("count", n),
			slog.Duration("stale_after", s.cfg.StaleAfter),
		)
	}
}
