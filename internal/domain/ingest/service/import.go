package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/extract"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/parser"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/money"
)

// ImportWorker processes a bank statement import batch.
type ImportWorker struct {
	deps Deps
}

// NewImportWorker creates an import worker.
func NewImportWorker(deps Deps) *ImportWorker {
	return &ImportWorker{deps: deps.withDefaults()}
}

// Run stores the statement, extracts its text and writes one ledger entry per
// parsed row. A failing row is counted in the summary and does not stop the
// batch. Failures outside the row loop mark the job failed and are returned.
func (w *ImportWorker) Run(ctx context.Context, p ingest.ImportPayload) (err error) {
	ctx, span := tracer().Start(ctx, "ImportWorker.Run", trace.WithAttributes(
		attribute.String("import.id", p.JobID.String()),
		attribute.String("owner.id", p.OwnerID.String()),
		attribute.Int("file.size", len(p.FileBytes)),
	))
	defer func() { endSpan(span, err) }()

	log := w.deps.Logger.With(slog.String("import_id", p.JobID.String()))

	summary, err := w.process(ctx, p, log)
	if err != nil {
		failed := repository.ImportSummary{Errors: []string{err.Error()}}
		if ferr := w.deps.Imports.Finish(context.WithoutCancel(ctx), p.JobID, ingest.ImportFailed, failed, w.deps.Now()); ferr != nil {
			log.Error("failed to mark import as failed", slog.Any("error", ferr))
		}
		log.Warn("import failed", slog.Any("error", err))
		return err
	}

	span.SetAttributes(
		attribute.Int("import.imported", summary.Imported),
		attribute.Int("import.failed", summary.Failed),
	)
	log.Info("import finished",
		slog.Int("imported", summary.Imported),
		slog.Int("failed", summary.Failed),
	)
	return nil
}

func (w *ImportWorker) process(ctx context.Context, p ingest.ImportPayload, log *slog.Logger) (repository.ImportSummary, error) {
	d := w.deps
	var summary repository.ImportSummary

	if err := d.Imports.MarkRunning(ctx, p.JobID, d.Now()); err != nil {
		return summary, fmt.Errorf("mark running: %w", err)
	}

	file, err := w.statementFile(ctx, p)
	if err != nil {
		return summary, err
	}

	res, err := d.Extractor.Extract(ctx, extract.PDF{Data: p.FileBytes})
	if err != nil {
		return summary, err
	}

	for row := range d.Parser.ParseStatement(res.Text) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := w.materialize(ctx, p, file.ID, row); err != nil {
			summary.AddError(fmt.Sprintf("row %d: %v", row.Index, err))
			continue
		}
		summary.Imported++
	}

	if err := d.Imports.Finish(ctx, p.JobID, ingest.ImportFinished, summary, d.Now()); err != nil {
		return summary, fmt.Errorf("finish import: %w", err)
	}

	d.Recorder.Materialized(string(ingest.SourceImport), summary.Imported)
	if d.Cache != nil {
		d.Cache.Invalidate(p.OwnerID.String())
	}

	log.Debug("statement parsed",
		slog.String("method", res.Method),
		slog.Int("pages", res.Pages),
	)
	return summary, nil
}

// statementFile returns the statement record linked to the job, saving and
// linking the PDF on the first attempt only.
func (w *ImportWorker) statementFile(ctx context.Context, p ingest.ImportPayload) (*repository.Record, error) {
	d := w.deps

	job, err := d.Imports.Get(ctx, p.JobID)
	if err != nil {
		return nil, fmt.Errorf("load import job: %w", err)
	}
	if job.FileID != nil {
		rec, err := d.Records.Get(ctx, *job.FileID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load statement file: %w", err)
		}
	}

	file, err := w.storeStatement(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := d.Imports.LinkFile(ctx, p.JobID, file.ID); err != nil {
		return nil, fmt.Errorf("link file: %w", err)
	}
	return file, nil
}

// storeStatement saves the PDF and records it as a finished statement file.
// The saved bytes are removed again if the record cannot be created.
func (w *ImportWorker) storeStatement(ctx context.Context, p ingest.ImportPayload) (*repository.Record, error) {
	d := w.deps

	info, err := d.Files.Save(ctx, p.OwnerID, p.OriginalName, bytes.NewReader(p.FileBytes))
	if err != nil {
		return nil, fmt.Errorf("save statement: %w", err)
	}

	rec := &repository.Record{
		OwnerID:      p.OwnerID,
		Kind:         ingest.RecordStatement,
		StoragePath:  info.Path,
		OriginalName: p.OriginalName,
		MediaType:    extract.MediaTypePDF,
		Size:         info.Size,
		Status:       ingest.RecordDone,
	}
	if err := d.Records.Create(ctx, rec); err != nil {
		if derr := d.Files.Delete(context.WithoutCancel(ctx), info.Path); derr != nil {
			d.Logger.Warn("failed to remove orphaned statement", slog.String("path", info.Path), slog.Any("error", derr))
		}
		return nil, fmt.Errorf("create file record: %w", err)
	}
	return rec, nil
}

func (w *ImportWorker) materialize(ctx context.Context, p ingest.ImportPayload, fileID uuid.UUID, row parser.StatementRow) error {
	amount, err := money.FromDecimal(row.Amount, w.deps.Currency)
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount %s rounds to zero", row.Amount)
	}

	tx := &repository.Transaction{
		OwnerID:        p.OwnerID,
		Direction:      row.Direction,
		AmountMinor:    amount.Amount(),
		CurrencyCode:   amount.Currency(),
		Date:           row.Date,
		Category:       string(row.Category),
		Merchant:       w.deps.Merchants.Normalize(row.Description),
		Description:    row.Description,
		SourceRecordID: &fileID,
		Source:         ingest.SourceImport,
		IdempotencyKey: fmt.Sprintf("%s:%d", p.JobID, row.Index),
	}
	_, err = w.deps.Transactions.Insert(ctx, tx)
	return err
}
