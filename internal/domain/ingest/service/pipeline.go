package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/scheduler"
)

// Scheduler is the part of *scheduler.Scheduler the pipeline uses.
type Scheduler interface {
	Handle(kind scheduler.Kind, h scheduler.Handler)
	OnExhausted(fn scheduler.ExhaustedFunc)
	Submit(kind scheduler.Kind, payload any, opts ...scheduler.SubmitOption) (scheduler.JobHandle, error)
}

// Pipeline accepts uploads, queues them on the scheduler and answers status
// queries. It is the only entry point the HTTP layer talks to.
type Pipeline struct {
	sched    Scheduler
	receipts *ReceiptWorker
	imports  *ImportWorker
	deps     Deps
}

// NewPipeline registers the receipt and import handlers on sched.
func NewPipeline(sched Scheduler, deps Deps) *Pipeline {
	deps = deps.withDefaults()
	p := &Pipeline{
		sched:    sched,
		receipts: NewReceiptWorker(deps),
		imports:  NewImportWorker(deps),
		deps:     deps,
	}

	sched.Handle(scheduler.KindReceipt, p.handleReceipt)
	sched.Handle(scheduler.KindImport, p.handleImport)
	sched.OnExhausted(p.exhausted)
	return p
}

func (p *Pipeline) handleReceipt(ctx context.Context, job scheduler.Job) error {
	payload, ok := job.Payload.(ingest.ReceiptPayload)
	if !ok {
		return fmt.Errorf("unexpected receipt payload %T", job.Payload)
	}
	return p.receipts.Run(ctx, payload)
}

func (p *Pipeline) handleImport(ctx context.Context, job scheduler.Job) error {
	payload, ok := job.Payload.(ingest.ImportPayload)
	if !ok {
		return fmt.Errorf("unexpected import payload %T", job.Payload)
	}
	return p.imports.Run(ctx, payload)
}

// exhausted records the final failure on the record or import job.
func (p *Pipeline) exhausted(ctx context.Context, job scheduler.Job, err error) {
	msg := err.Error()
	log := p.deps.Logger.With(slog.String("job_id", job.ID.String()), slog.String("kind", string(job.Kind)))

	switch payload := job.Payload.(type) {
	case ingest.ReceiptPayload:
		if ferr := p.deps.Records.Fail(ctx, payload.RecordID, msg, p.deps.Now()); ferr != nil {
			log.Error("failed to record exhausted receipt", slog.Any("error", ferr))
		}
	case ingest.ImportPayload:
		summary := repository.ImportSummary{Errors: []string{msg}}
		if ferr := p.deps.Imports.Finish(ctx, payload.JobID, ingest.ImportFailed, summary, p.deps.Now()); ferr != nil {
			log.Error("failed to record exhausted import", slog.Any("error", ferr))
		}
	default:
		log.Error("exhausted job has unknown payload", slog.String("payload", fmt.Sprintf("%T", job.Payload)))
	}
}

// ReceiptUpload is an incoming receipt file.
type ReceiptUpload struct {
	OwnerID   uuid.UUID
	Filename  string
	MediaType string
	Body      io.Reader
}

// SubmitReceipt stores the file, creates its record and queues processing.
func (p *Pipeline) SubmitReceipt(ctx context.Context, up ReceiptUpload) (*repository.Record, error) {
	info, err := p.deps.Files.Save(ctx, up.OwnerID, up.Filename, up.Body)
	if err != nil {
		return nil, fmt.Errorf("save receipt: %w", err)
	}

	rec := &repository.Record{
		OwnerID:      up.OwnerID,
		Kind:         ingest.RecordReceipt,
		StoragePath:  info.Path,
		OriginalName: up.Filename,
		MediaType:    up.MediaType,
		Size:         info.Size,
		Status:       ingest.RecordUploaded,
	}
	if err := p.deps.Records.Create(ctx, rec); err != nil {
		if derr := p.deps.Files.Delete(context.WithoutCancel(ctx), info.Path); derr != nil {
			p.deps.Logger.Warn("failed to remove orphaned receipt", slog.String("path", info.Path), slog.Any("error", derr))
		}
		return nil, err
	}

	handle, err := p.sched.Submit(scheduler.KindReceipt, ingest.ReceiptPayload{
		RecordID:    rec.ID,
		OwnerID:     up.OwnerID,
		StoragePath: info.Path,
		MediaType:   up.MediaType,
	})
	if err != nil {
		if ferr := p.deps.Records.Fail(context.WithoutCancel(ctx), rec.ID, err.Error(), p.deps.Now()); ferr != nil {
			p.deps.Logger.Error("failed to mark unqueued receipt", slog.Any("error", ferr))
		}
		return nil, fmt.Errorf("queue receipt: %w", err)
	}

	p.deps.Logger.Info("receipt queued",
		slog.String("record_id", rec.ID.String()),
		slog.String("job_id", handle.ID.String()),
	)
	return rec, nil
}

// SubmitImport creates a queued import job for a statement PDF.
func (p *Pipeline) SubmitImport(ctx context.Context, ownerID uuid.UUID, filename string, data []byte) (*repository.ImportJob, error) {
	job := &repository.ImportJob{OwnerID: ownerID, Status: ingest.ImportQueued}
	if err := p.deps.Imports.Create(ctx, job); err != nil {
		return nil, err
	}

	handle, err := p.sched.Submit(scheduler.KindImport, ingest.ImportPayload{
		JobID:        job.ID,
		OwnerID:      ownerID,
		FileBytes:    data,
		OriginalName: filename,
	})
	if err != nil {
		summary := repository.ImportSummary{Errors: []string{err.Error()}}
		if ferr := p.deps.Imports.Finish(context.WithoutCancel(ctx), job.ID, ingest.ImportFailed, summary, p.deps.Now()); ferr != nil {
			p.deps.Logger.Error("failed to mark unqueued import", slog.Any("error", ferr))
		}
		return nil, fmt.Errorf("queue import: %w", err)
	}

	p.deps.Logger.Info("import queued",
		slog.String("import_id", job.ID.String()),
		slog.String("job_id", handle.ID.String()),
	)
	return job, nil
}

// ReceiptStatus returns the owner's record. Records of other owners are not found.
func (p *Pipeline) ReceiptStatus(ctx context.Context, ownerID, recordID uuid.UUID) (*repository.Record, error) {
	rec, err := p.deps.Records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

// ImportStatus returns the owner's import job. Jobs of other owners are not found.
func (p *Pipeline) ImportStatus(ctx context.Context, ownerID, jobID uuid.UUID) (*repository.ImportJob, error) {
	job, err := p.deps.Imports.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return job, nil
}

// IsNotFound reports whether err means the requested record or job does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
