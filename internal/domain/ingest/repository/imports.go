package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// ImportRepository persists statement import jobs.
type ImportRepository interface {
	Create(ctx context.Context, job *ImportJob) error
	Get(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error
	LinkFile(ctx context.Context, id, fileID uuid.UUID) error
	Finish(ctx context.Context, id uuid.UUID, status ingest.ImportStatus, summary ImportSummary, at time.Time) error
}

// PostgresImportRepository implements ImportRepository.
type PostgresImportRepository struct {
	db DB
}

// NewPostgresImportRepository creates an import job repository over db.
func NewPostgresImportRepository(db DB) *PostgresImportRepository {
	return &PostgresImportRepository{db: db}
}

// Create inserts a queued job.
func (r *PostgresImportRepository) Create(ctx context.Context, job *ImportJob) error {
	query := `
		INSERT INTO import_jobs (id, owner_id, status, summary)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = ingest.ImportQueued
	}
	summary, err := encodeSummary(job.Summary)
	if err != nil {
		return persistErr("create import job", err)
	}

	if err := r.db.QueryRow(ctx, query, job.ID, job.OwnerID, job.Status, summary).Scan(&job.CreatedAt); err != nil {
		return persistErr("create import job", err)
	}
	return nil
}

// Get returns the job with id, or ErrNotFound.
func (r *PostgresImportRepository) Get(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	query := `
		SELECT id, owner_id, file_id, status, summary, started_at, finished_at, created_at
		FROM import_jobs
		WHERE id = $1`

	job := &ImportJob{}
	var summary []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.OwnerID,
		&job.FileID,
		&job.Status,
		&summary,
		&job.StartedAt,
		&job.FinishedAt,
		&job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get import job", err)
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &job.Summary); err != nil {
			return nil, persistErr("decode import summary", err)
		}
	}
	return job, nil
}

// MarkRunning moves a job into running and stamps the start time.
func (r *PostgresImportRepository) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE import_jobs SET status = $2, started_at = $3 WHERE id = $1`
	return r.update(ctx, "mark import running", query, id, ingest.ImportRunning, at)
}

// LinkFile points the job at its stored statement record.
func (r *PostgresImportRepository) LinkFile(ctx context.Context, id, fileID uuid.UUID) error {
	query := `UPDATE import_jobs SET file_id = $2 WHERE id = $1`
	return r.update(ctx, "link import file", query, id, fileID)
}

// Finish records the final status and summary of a job.
func (r *PostgresImportRepository) Finish(ctx context.Context, id uuid.UUID, status ingest.ImportStatus, summary ImportSummary, at time.Time) error {
	query := `UPDATE import_jobs SET status = $2, summary = $3, finished_at = $4 WHERE id = $1`

	encoded, err := encodeSummary(summary)
	if err != nil {
		return persistErr("finish import job", err)
	}
	return r.update(ctx, "finish import job", query, id, status, encoded, at)
}

func (r *PostgresImportRepository) update(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return persistErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// encodeSummary always writes an errors array, never null.
func encodeSummary(s ImportSummary) ([]byte, error) {
	if s.Errors == nil {
		s.Errors = []string{}
	}
	return json.Marshal(s)
}
