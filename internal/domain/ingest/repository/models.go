package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// Record is an uploaded document and its processing outcome.
type Record struct {
	ID                  uuid.UUID
	OwnerID             uuid.UUID
	Kind                ingest.RecordKind
	StoragePath         string
	OriginalName        string
	MediaType           string
	Size                int64
	Status              ingest.RecordStatus
	ExtractedText       *string
	Confidence          *float64
	ParsedFields        json.RawMessage
	ErrorMessage        *string
	CreatedAt           time.Time
	ProcessingStartedAt *time.Time
	ProcessedAt         *time.Time
}

// RecordResult is what a finished receipt stores.
type RecordResult struct {
	Text       string
	Confidence float64
	Fields     json.RawMessage
}

// ImportSummary is the outcome of a statement import.
type ImportSummary struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
}

// AddError counts a failed row and keeps its message while under the cap.
func (s *ImportSummary) AddError(msg string) {
	s.Failed++
	if len(s.Errors) < ingest.MaxImportErrors {
		s.Errors = append(s.Errors, msg)
	}
}

// ImportJob tracks one statement import batch.
type ImportJob struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	FileID     *uuid.UUID
	Status     ingest.ImportStatus
	Summary    ImportSummary
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}

// Transaction is a ledger entry.
type Transaction struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	Direction      ingest.Direction
	AmountMinor    int64
	CurrencyCode   string
	Date           time.Time
	Category       string
	Merchant       string
	Description    string
	SourceRecordID *uuid.UUID
	Source         ingest.Source
	IdempotencyKey string
	CreatedAt      time.Time
}
