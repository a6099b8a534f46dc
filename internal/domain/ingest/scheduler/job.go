package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which handler processes a job.
type Kind string

const (
	KindReceipt Kind = "receipt"
	KindImport  Kind = "import"
)

const (
	DefaultMaxAttempts  = 3
	DefaultBackoffBase  = 2 * time.Second
	DefaultPollInterval = time.Second
)

var (
	// ErrJobExhausted wraps the last handler error once a job runs out of attempts.
	ErrJobExhausted = errors.New("job exhausted")
	// ErrNoHandler is the failure recorded for a job whose kind has no handler.
	ErrNoHandler = errors.New("no handler registered for job kind")
	// ErrStopped is returned by Submit after Shutdown.
	ErrStopped = errors.New("scheduler stopped")
)

// Job is a unit of scheduled work. The scheduler owns the job; handlers get a copy.
type Job struct {
	ID          uuid.UUID
	Kind        Kind
	Payload     any
	Attempts    int
	MaxAttempts int
	BackoffBase time.Duration
	NextRunAt   time.Time
	SubmittedAt time.Time
}

// JobHandle is returned to submitters.
type JobHandle struct {
	ID   uuid.UUID
	Kind Kind
}

// Handler processes one attempt of a job. A non-nil error (or a panic) marks the attempt failed.
type Handler func(ctx context.Context, job Job) error

// ExhaustedFunc is called once per job that failed MaxAttempts times.
type ExhaustedFunc func(ctx context.Context, job Job, err error)

// SubmitOption overrides per-job retry settings.
type SubmitOption func(*Job)

// WithMaxAttempts sets how many times the job may run. Values below 1 are ignored.
func WithMaxAttempts(n int) SubmitOption {
	return func(j *Job) {
		if n >= 1 {
			j.MaxAttempts = n
		}
	}
}

// WithBackoffBase sets the delay before the first retry. Later retries double it.
func WithBackoffBase(d time.Duration) SubmitOption {
	return func(j *Job) {
		if d > 0 {
			j.BackoffBase = d
		}
	}
}

// Backoff returns base × 2^(attempts-1).
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 31 {
		attempts = 31
	}
	return base * time.Duration(int64(1)<<uint(attempts-1))
}
