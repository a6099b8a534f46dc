package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/categorization"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/extract"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/money"
)

// ReceiptWorker processes a single uploaded receipt.
type ReceiptWorker struct {
	deps Deps
}

// NewReceiptWorker creates a receipt worker.
func NewReceiptWorker(deps Deps) *ReceiptWorker {
	return &ReceiptWorker{deps: deps.withDefaults()}
}

// Run extracts and parses the receipt, stores the result on its record and,
// when a positive amount was found, writes one expense to the ledger.
// Any failure marks the record as errored and is returned for retry.
func (w *ReceiptWorker) Run(ctx context.Context, p ingest.ReceiptPayload) (err error) {
	ctx, span := tracer().Start(ctx, "ReceiptWorker.Run", trace.WithAttributes(
		attribute.String("record.id", p.RecordID.String()),
		attribute.String("owner.id", p.OwnerID.String()),
	))
	defer func() { endSpan(span, err) }()

	log := w.deps.Logger.With(slog.String("record_id", p.RecordID.String()))

	if err = w.process(ctx, p, log); err != nil {
		// The error state must be written even when ctx was cancelled.
		if ferr := w.deps.Records.Fail(context.WithoutCancel(ctx), p.RecordID, err.Error(), w.deps.Now()); ferr != nil {
			log.Error("failed to mark receipt as errored", slog.Any("error", ferr))
		}
		log.Warn("receipt processing failed", slog.Any("error", err))
		return err
	}
	return nil
}

func (w *ReceiptWorker) process(ctx context.Context, p ingest.ReceiptPayload, log *slog.Logger) error {
	d := w.deps

	if err := d.Records.MarkProcessing(ctx, p.RecordID, d.Now()); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	data, err := d.Files.ReadAll(ctx, p.StoragePath)
	if err != nil {
		return fmt.Errorf("read receipt: %w", err)
	}

	mediaType := p.MediaType
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	doc, err := extract.NewDocument(data, mediaType)
	if err != nil {
		return err
	}

	res, err := d.Extractor.Extract(ctx, doc)
	if err != nil {
		return err
	}

	fields := d.Parser.ParseReceipt(res.Text)
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode parsed fields: %w", err)
	}

	if err := d.Records.Complete(ctx, p.RecordID, repository.RecordResult{
		Text:       res.Text,
		Confidence: res.Confidence,
		Fields:     encoded,
	}, d.Now()); err != nil {
		return fmt.Errorf("store result: %w", err)
	}

	if fields.Amount == nil || !fields.Amount.IsPositive() {
		log.Info("receipt processed without amount", slog.String("method", res.Method))
		return nil
	}

	amount, err := money.FromDecimal(*fields.Amount, d.Currency)
	if err != nil {
		return err
	}

	date := today(d.Now())
	if fields.Date != nil {
		date = *fields.Date
	}
	category := fields.Category
	if category == "" {
		category = categorization.Other
	}

	tx := &repository.Transaction{
		OwnerID:        p.OwnerID,
		Direction:      fields.Direction,
		AmountMinor:    amount.Amount(),
		CurrencyCode:   amount.Currency(),
		Date:           date,
		Category:       string(category),
		Merchant:       fields.Merchant,
		SourceRecordID: &p.RecordID,
		Source:         ingest.SourceOCR,
		IdempotencyKey: p.RecordID.String(),
	}
	inserted, err := d.Transactions.Insert(ctx, tx)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	if inserted {
		d.Recorder.Materialized(string(ingest.SourceOCR), 1)
	}

	if d.Cache != nil {
		d.Cache.Invalidate(p.OwnerID.String())
	}

	log.Info("receipt processed",
		slog.String("amount", amount.String()),
		slog.String("category", tx.Category),
		slog.Bool("inserted", inserted),
	)
	return nil
}
