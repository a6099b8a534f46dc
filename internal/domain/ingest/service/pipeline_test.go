package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/ingesttest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/scheduler"
)

// recordingScheduler captures submissions without running them.
type recordingScheduler struct {
	mu        sync.Mutex
	submitted []any
	err       error
}

func (s *recordingScheduler) Handle(scheduler.Kind, scheduler.Handler) {}

func (s *recordingScheduler) OnExhausted(scheduler.ExhaustedFunc) {}

func (s *recordingScheduler) Submit(kind scheduler.Kind, payload any, _ ...scheduler.SubmitOption) (scheduler.JobHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return scheduler.JobHandle{}, s.err
	}
	s.submitted = append(s.submitted, payload)
	return scheduler.JobHandle{ID: uuid.New(), Kind: kind}, nil
}

func startPipeline(t *testing.T, f *fixture) *Pipeline {
	t.Helper()
	sched := scheduler.New(f.deps.Logger,
		scheduler.WithWorkers(2),
		scheduler.WithDefaults(2, 10*time.Millisecond),
		scheduler.WithPollInterval(5*time.Millisecond),
	)
	p := NewPipeline(sched, f.deps)
	sched.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})
	return p
}

func TestPipeline_ReceiptEndToEnd(t *testing.T) {
	f := newFixture()
	f.extractor.Text = "GREEN GROCERY\n2024-02-10\nTOTAL $ 56.70"
	p := startPipeline(t, f)
	owner := uuid.New()

	rec, err := p.SubmitReceipt(context.Background(), ReceiptUpload{
		OwnerID:  owner,
		Filename: "receipt.png",
		Body:     strings.NewReader("\x89PNG\r\n\x1a\nrest"),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := p.ReceiptStatus(context.Background(), owner, rec.ID)
		return err == nil && got.Status == ingest.RecordDone
	}, 2*time.Second, 5*time.Millisecond)

	txs := f.transactions.All()
	require.Len(t, txs, 1)
	assert.Equal(t, int64(5670), txs[0].AmountMinor)
	assert.Equal(t, "groceries", txs[0].Category)
}

func TestPipeline_ReceiptExhausted(t *testing.T) {
	f := newFixture()
	f.extractor.Err = errors.New("engine crashed")
	p := startPipeline(t, f)
	owner := uuid.New()

	rec, err := p.SubmitReceipt(context.Background(), ReceiptUpload{
		OwnerID:   owner,
		Filename:  "receipt.jpg",
		MediaType: "image/jpeg",
		Body:      strings.NewReader("jpeg"),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := p.ReceiptStatus(context.Background(), owner, rec.ID)
		return err == nil && got.ErrorMessage != nil && strings.HasPrefix(*got.ErrorMessage, "job exhausted")
	}, 2*time.Second, 5*time.Millisecond)

	got, err := p.ReceiptStatus(context.Background(), owner, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.RecordError, got.Status)
	assert.Contains(t, *got.ErrorMessage, "engine crashed")
	assert.Equal(t, 2, f.extractor.Calls())
	assert.Empty(t, f.transactions.All())
}

func TestPipeline_ImportEndToEnd(t *testing.T) {
	f := newFixture()
	text, _ := ingesttest.NewGenerator(11).Statement(4)
	f.extractor.Text = text
	p := startPipeline(t, f)
	owner := uuid.New()

	job, err := p.SubmitImport(context.Background(), owner, "jan.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, ingest.ImportQueued, job.Status)

	require.Eventually(t, func() bool {
		got, err := p.ImportStatus(context.Background(), owner, job.ID)
		return err == nil && got.Status == ingest.ImportFinished
	}, 2*time.Second, 5*time.Millisecond)

	got, err := p.ImportStatus(context.Background(), owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Summary.Imported)
	assert.Len(t, f.transactions.All(), 4)
	assert.Equal(t, 1, f.cache.Invalidations(owner.String()))
}

func TestPipeline_ImportExhausted(t *testing.T) {
	f := newFixture()
	f.extractor.Err = errors.New("encrypted document")
	p := startPipeline(t, f)
	owner := uuid.New()

	job, err := p.SubmitImport(context.Background(), owner, "locked.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := p.ImportStatus(context.Background(), owner, job.ID)
		return err == nil && got.Status == ingest.ImportFailed &&
			len(got.Summary.Errors) == 1 && strings.HasPrefix(got.Summary.Errors[0], "job exhausted")
	}, 2*time.Second, 5*time.Millisecond)
}
