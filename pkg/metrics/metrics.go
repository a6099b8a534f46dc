// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ingest"

// Metrics groups the collectors shared by the scheduler, the extractor and the cache.
type Metrics struct {
	JobsSubmitted  *prometheus.CounterVec
	JobsSucceeded  *prometheus.CounterVec
	JobsRetried    *prometheus.CounterVec
	JobsExhausted  *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	JobsPending    prometheus.Gauge
	Extractions    *prometheus.CounterVec
	TxMaterialized *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	CacheEvictions prometheus.Counter
	StaleRecords   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_submitted_total",
			Help: "Jobs submitted to the scheduler.",
		}, []string{"kind"}),
		JobsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_succeeded_total",
			Help: "Jobs whose handler returned without error.",
		}, []string{"kind"}),
		JobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_retried_total",
			Help: "Failed attempts that were rescheduled with backoff.",
		}, []string{"kind"}),
		JobsExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_exhausted_total",
			Help: "Jobs discarded after reaching max attempts.",
		}, []string{"kind"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "job_duration_seconds",
			Help:    "Handler run time per attempt.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind", "outcome"}),
		JobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "jobs_pending",
			Help: "Jobs waiting in the scheduler, including those backing off.",
		}),
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "extractions_total",
			Help: "Text extractions by method and outcome.",
		}, []string{"method", "outcome"}),
		TxMaterialized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transactions_materialized_total",
			Help: "Ledger transactions created by the pipeline.",
		}, []string{"source"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_lookups_total",
			Help: "Result cache lookups by result.",
		}, []string{"result"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_evictions_total",
			Help: "Entries removed by invalidation, sweep or lazy expiry.",
		}),
		StaleRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stale_records",
			Help: "Records stuck in processing longer than the stale threshold.",
		}),
	}

	reg.MustRegister(
		m.JobsSubmitted, m.JobsSucceeded, m.JobsRetried, m.JobsExhausted,
		m.JobDuration, m.JobsPending, m.Extractions, m.TxMaterialized,
		m.CacheLookups, m.CacheEvictions, m.StaleRecords,
	)
	return m
}

// Submitted records a new job.
func (m *Metrics) Submitted(kind string) { m.JobsSubmitted.WithLabelValues(kind).Inc() }

// Succeeded records a successful attempt.
func (m *Metrics) Succeeded(kind string, d time.Duration) {
	m.JobsSucceeded.WithLabelValues(kind).Inc()
	m.JobDuration.WithLabelValues(kind, "success").Observe(d.Seconds())
}

// Retried records a failed attempt that will run again.
func (m *Metrics) Retried(kind string, d time.Duration) {
	m.JobsRetried.WithLabelValues(kind).Inc()
	m.JobDuration.WithLabelValues(kind, "retry").Observe(d.Seconds())
}

// Exhausted records a job that ran out of attempts.
func (m *Metrics) Exhausted(kind string, d time.Duration) {
	m.JobsExhausted.WithLabelValues(kind).Inc()
	m.JobDuration.WithLabelValues(kind, "exhausted").Observe(d.Seconds())
}

// SetPending reports the scheduler queue depth.
func (m *Metrics) SetPending(n int) { m.JobsPending.Set(float64(n)) }

// Extracted records one extraction attempt.
func (m *Metrics) Extracted(method string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Extractions.WithLabelValues(method, outcome).Inc()
}

// Materialized records created ledger transactions.
func (m *Metrics) Materialized(source string, n int) {
	m.TxMaterialized.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) CacheHit()          { m.CacheLookups.WithLabelValues("hit").Inc() }
func (m *Metrics) CacheMiss()         { m.CacheLookups.WithLabelValues("miss").Inc() }
func (m *Metrics) CacheEvicted(n int) { m.CacheEvictions.Add(float64(n)) }

// SetStale reports the number of records stuck in processing.
func (m *Metrics) SetStale(n int) { m.StaleRecords.Set(float64(n)) }
