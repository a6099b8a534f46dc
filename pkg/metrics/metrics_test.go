package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Submitted("receipt")
	m.Submitted("receipt")
	m.Retried("receipt", 10*time.Millisecond)
	m.Exhausted("import", time.Second)
	m.Succeeded("receipt", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsSubmitted.WithLabelValues("receipt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsRetried.WithLabelValues("receipt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsExhausted.WithLabelValues("import")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsSucceeded.WithLabelValues("receipt")))
}

func TestMetrics_ExtractionOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Extracted("pdf-text", nil)
	m.Extracted("image-ocr", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Extractions.WithLabelValues("pdf-text", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Extractions.WithLabelValues("image-ocr", "error")))
}

func TestMetrics_CacheAndGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.CacheEvicted(3)
	m.SetPending(7)
	m.SetStale(2)
	m.Materialized("import", 9)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheEvictions))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.JobsPending))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StaleRecords))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.TxMaterialized.WithLabelValues("import")))
}
