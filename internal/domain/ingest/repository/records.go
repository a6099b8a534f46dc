package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// RecordRepository persists uploaded documents.
type RecordRepository interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) error
	Complete(ctx context.Context, id uuid.UUID, res RecordResult, at time.Time) error
	Fail(ctx context.Context, id uuid.UUID, msg string, at time.Time) error
	CountStale(ctx context.Context, startedBefore time.Time) (int, error)
}

// PostgresRecordRepository implements RecordRepository.
type PostgresRecordRepository struct {
	db DB
}

// NewPostgresRecordRepository creates a record repository over db.
func NewPostgresRecordRepository(db DB) *PostgresRecordRepository {
	return &PostgresRecordRepository{db: db}
}

// Create inserts rec, assigning an ID when it has none.
func (r *PostgresRecordRepository) Create(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO ingestion_records (id, owner_id, kind, storage_path, original_name, media_type, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = ingest.RecordUploaded
	}

	err := r.db.QueryRow(ctx, query,
		rec.ID,
		rec.OwnerID,
		rec.Kind,
		rec.StoragePath,
		rec.OriginalName,
		rec.MediaType,
		rec.Size,
		rec.Status,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return persistErr("create record", err)
	}
	return nil
}

// Get returns the record with id, or ErrNotFound.
func (r *PostgresRecordRepository) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	query := `
		SELECT id, owner_id, kind, storage_path, original_name, media_type, size_bytes, status,
			extracted_text, confidence, parsed_fields, error_message,
			created_at, processing_started_at, processed_at
		FROM ingestion_records
		WHERE id = $1`

	rec := &Record{}
	var fields []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.Kind,
		&rec.StoragePath,
		&rec.OriginalName,
		&rec.MediaType,
		&rec.Size,
		&rec.Status,
		&rec.ExtractedText,
		&rec.Confidence,
		&fields,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.ProcessingStartedAt,
		&rec.ProcessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get record", err)
	}
	rec.ParsedFields = fields
	return rec, nil
}

// MarkProcessing moves a record into processing and stamps the start time.
func (r *PostgresRecordRepository) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE ingestion_records
		SET status = $2, processing_started_at = $3, error_message = NULL
		WHERE id = $1`

	return r.update(ctx, "mark record processing", query, id, ingest.RecordProcessing, at)
}

// Complete stores the extraction result and marks the record done.
func (r *PostgresRecordRepository) Complete(ctx context.Context, id uuid.UUID, res RecordResult, at time.Time) error {
	query := `
		UPDATE ingestion_records
		SET status = $2, extracted_text = $3, confidence = $4, parsed_fields = $5, processed_at = $6
		WHERE id = $1`

	return r.update(ctx, "complete record", query, id, ingest.RecordDone, res.Text, res.Confidence, []byte(res.Fields), at)
}

// Fail marks the record as errored with msg, stamped as processed at at.
func (r *PostgresRecordRepository) Fail(ctx context.Context, id uuid.UUID, msg string, at time.Time) error {
	query := `
		UPDATE ingestion_records
		SET status = $2, error_message = $3, processed_at = $4
		WHERE id = $1`

	return r.update(ctx, "fail record", query, id, ingest.RecordError, msg, at)
}

// CountStale counts records stuck in processing since before startedBefore.
func (r *PostgresRecordRepository) CountStale(ctx context.Context, startedBefore time.Time) (int, error) {
	query := `
		SELECT count(*)
		FROM ingestion_records
		WHERE status = $1 AND processing_started_at < $2`

	var n int
	if err := r.db.QueryRow(ctx, query, ingest.RecordProcessing, startedBefore).Scan(&n); err != nil {
		return 0, persistErr("count stale records", err)
	}
	return n, nil
}

func (r *PostgresRecordRepository) update(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return persistErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
