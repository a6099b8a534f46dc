// Package service runs the ingestion workers: receipt OCR into a single
// ledger entry, and statement imports into a batch of entries.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/extract"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/parser"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/money"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/storage"
)

const tracerName = "github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/service"

// Extractor turns a document into text.
type Extractor interface {
	Extract(ctx context.Context, doc extract.Document) (extract.Result, error)
}

// Invalidator drops cached aggregates for an owner.
type Invalidator interface {
	Invalidate(ownerID string) int
}

// Recorder counts materialized ledger rows.
type Recorder interface {
	Materialized(source string, n int)
}

type noopRecorder struct{}

func (noopRecorder) Materialized(string, int) {}

// Deps are the collaborators shared by both workers.
type Deps struct {
	Records      repository.RecordRepository
	Imports      repository.ImportRepository
	Transactions repository.TransactionRepository
	Files        storage.Storage
	Extractor    Extractor
	Parser       *parser.Parser
	Merchants    *normalizer.MerchantNormalizer
	Cache        Invalidator
	Recorder     Recorder
	Currency     string
	Logger       *slog.Logger
	Now          func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Parser == nil {
		d.Parser = parser.New()
	}
	if d.Merchants == nil {
		d.Merchants = normalizer.NewMerchantNormalizer()
	}
	if d.Currency == "" {
		d.Currency = money.INR
	}
	if d.Recorder == nil {
		d.Recorder = noopRecorder{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// today truncates t to a UTC calendar date.
func today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
