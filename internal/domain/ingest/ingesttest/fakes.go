// Package ingesttest provides in-memory collaborators and generated fixtures
// for exercising the ingestion pipeline without PostgreSQL or Tesseract.
package ingesttest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/extract"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/storage"
)

// Records is an in-memory repository.RecordRepository.
type Records struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*repository.Record
	CreateErr error
}

func NewRecords() *Records {
	return &Records{byID: make(map[uuid.UUID]*repository.Record)}
}

func (r *Records) Create(_ context.Context, rec *repository.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = ingest.RecordUploaded
	}
	rec.CreatedAt = time.Now()
	cp := *rec
	r.byID[rec.ID] = &cp
	return nil
}

func (r *Records) Get(_ context.Context, id uuid.UUID) (*repository.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *Records) MarkProcessing(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(rec *repository.Record) {
		rec.Status = ingest.RecordProcessing
		rec.ProcessingStartedAt = &at
		rec.ErrorMessage = nil
	})
}

func (r *Records) Complete(_ context.Context, id uuid.UUID, res repository.RecordResult, at time.Time) error {
	return r.update(id, func(rec *repository.Record) {
		rec.Status = ingest.RecordDone
		rec.ExtractedText = &res.Text
		rec.Confidence = &res.Confidence
		rec.ParsedFields = res.Fields
		rec.ProcessedAt = &at
	})
}

func (r *Records) Fail(_ context.Context, id uuid.UUID, msg string, at time.Time) error {
	return r.update(id, func(rec *repository.Record) {
		rec.Status = ingest.RecordError
		rec.ErrorMessage = &msg
		rec.ProcessedAt = &at
	})
}

func (r *Records) CountStale(_ context.Context, startedBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.byID {
		if rec.Status == ingest.RecordProcessing && rec.ProcessingStartedAt != nil && rec.ProcessingStartedAt.Before(startedBefore) {
			n++
		}
	}
	return n, nil
}

// All returns copies of every stored record.
func (r *Records) All() []repository.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]repository.Record, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, *rec)
	}
	return out
}

func (r *Records) update(id uuid.UUID, fn func(*repository.Record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(rec)
	return nil
}

// Imports is an in-memory repository.ImportRepository.
type Imports struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*repository.ImportJob
}

func NewImports() *Imports {
	return &Imports{byID: make(map[uuid.UUID]*repository.ImportJob)}
}

func (r *Imports) Create(_ context.Context, job *repository.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = ingest.ImportQueued
	}
	job.CreatedAt = time.Now()
	cp := *job
	r.byID[job.ID] = &cp
	return nil
}

func (r *Imports) Get(_ context.Context, id uuid.UUID) (*repository.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *Imports) MarkRunning(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(j *repository.ImportJob) {
		j.Status = ingest.ImportRunning
		j.StartedAt = &at
	})
}

func (r *Imports) LinkFile(_ context.Context, id, fileID uuid.UUID) error {
	return r.update(id, func(j *repository.ImportJob) { j.FileID = &fileID })
}

func (r *Imports) Finish(_ context.Context, id uuid.UUID, status ingest.ImportStatus, summary repository.ImportSummary, at time.Time) error {
	return r.update(id, func(j *repository.ImportJob) {
		j.Status = status
		j.Summary = summary
		j.FinishedAt = &at
	})
}

func (r *Imports) update(id uuid.UUID, fn func(*repository.ImportJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(job)
	return nil
}

// Transactions is an in-memory repository.TransactionRepository that honours
// idempotency keys. FailOn, when set, can reject individual inserts.
type Transactions struct {
	mu     sync.Mutex
	rows   []repository.Transaction
	keys   map[string]bool
	FailOn func(tx *repository.Transaction) error
}

func NewTransactions() *Transactions {
	return &Transactions{keys: make(map[string]bool)}
}

func (r *Transactions) Insert(_ context.Context, tx *repository.Transaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailOn != nil {
		if err := r.FailOn(tx); err != nil {
			return false, err
		}
	}
	if tx.IdempotencyKey != "" && r.keys[tx.IdempotencyKey] {
		return false, nil
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	r.keys[tx.IdempotencyKey] = true
	r.rows = append(r.rows, *tx)
	return true, nil
}

// All returns the inserted transactions in insertion order.
func (r *Transactions) All() []repository.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]repository.Transaction(nil), r.rows...)
}

// Storage is an in-memory storage.Storage.
type Storage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewStorage() *Storage {
	return &Storage{files: make(map[string][]byte)}
}

func (s *Storage) Save(_ context.Context, ownerID uuid.UUID, filename string, r io.Reader) (*storage.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/%s_%s", ownerID, uuid.NewString()[:8], filename)
	s.mu.Lock()
	s.files[path] = data
	s.mu.Unlock()
	return &storage.FileInfo{Path: path, Name: filename, Size: int64(len(data))}, nil
}

func (s *Storage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := s.ReadAll(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Storage) ReadAll(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	return data, nil
}

func (s *Storage) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	delete(s.files, path)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored files.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Extractor returns canned text, or Err when set.
type Extractor struct {
	mu         sync.Mutex
	Text       string
	Confidence float64
	Err        error
	calls      int
}

func (e *Extractor) Extract(_ context.Context, doc extract.Document) (extract.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	method := extract.MethodImageOCR
	if _, ok := doc.(extract.PDF); ok {
		method = extract.MethodPDFText
	}
	if e.Err != nil {
		return extract.Result{}, &extract.ExtractionError{Method: method, Err: e.Err}
	}
	return extract.Result{Text: e.Text, Confidence: e.Confidence, Pages: 1, Method: method}, nil
}

// Calls returns how many times Extract ran.
func (e *Extractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Cache counts invalidations per owner.
type Cache struct {
	mu    sync.Mutex
	calls map[string]int
}

func NewCache() *Cache {
	return &Cache{calls: make(map[string]int)}
}

func (c *Cache) Invalidate(ownerID string) int {
	c.mu.Lock()
	c.calls[ownerID]++
	c.mu.Unlock()
	return 0
}

// Invalidations returns how often ownerID was invalidated.
func (c *Cache) Invalidations(ownerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[ownerID]
}
