// Package handler exposes receipt and statement uploads and their status over HTTP.
package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/extract"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/service"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/interceptors"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/response"
)

const (
	MaxReceiptSize = 10 << 20
	MaxImportSize  = 50 << 20

	// formField is the multipart field carrying the file.
	formField = "file"
	// multipart headers and boundaries
	formOverhead = 1 << 20
)

// Pipeline is what the handler needs from service.Pipeline.
type Pipeline interface {
	SubmitReceipt(ctx context.Context, up service.ReceiptUpload) (*repository.Record, error)
	SubmitImport(ctx context.Context, ownerID uuid.UUID, filename string, data []byte) (*repository.ImportJob, error)
	ReceiptStatus(ctx context.Context, ownerID, recordID uuid.UUID) (*repository.Record, error)
	ImportStatus(ctx context.Context, ownerID, jobID uuid.UUID) (*repository.ImportJob, error)
}

// IngestHandler handles upload and status requests.
type IngestHandler struct {
	pipeline Pipeline
	logger   *slog.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(pipeline Pipeline, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{pipeline: pipeline, logger: logger}
}

// Register mounts the routes on mux. Every route expects an authenticated user.
func (h *IngestHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/receipts", h.UploadReceipt)
	mux.HandleFunc("GET /api/v1/receipts/{id}/status", h.ReceiptStatus)
	mux.HandleFunc("POST /api/v1/imports", h.UploadImport)
	mux.HandleFunc("GET /api/v1/imports/{id}/status", h.ImportStatus)
}

// UploadResponse acknowledges a queued upload.
type UploadResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// ReceiptStatusResponse describes a receipt record.
type ReceiptStatusResponse struct {
	ID           uuid.UUID           `json:"id"`
	Status       ingest.RecordStatus `json:"status"`
	OriginalName string              `json:"originalName"`
	Confidence   *float64            `json:"confidence,omitempty"`
	ParsedFields any                 `json:"parsedFields,omitempty"`
	ErrorMessage *string             `json:"errorMessage,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	ProcessedAt  *time.Time          `json:"processedAt,omitempty"`
}

// ImportStatusResponse describes an import job.
type ImportStatusResponse struct {
	ID         uuid.UUID                `json:"id"`
	Status     ingest.ImportStatus      `json:"status"`
	FileID     *uuid.UUID               `json:"fileId,omitempty"`
	Summary    repository.ImportSummary `json:"summary"`
	CreatedAt  time.Time                `json:"createdAt"`
	StartedAt  *time.Time               `json:"startedAt,omitempty"`
	FinishedAt *time.Time               `json:"finishedAt,omitempty"`
}

// UploadReceipt accepts an image or PDF receipt of up to MaxReceiptSize bytes.
func (h *IngestHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := interceptors.GetUserIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	data, header, status, err := readUpload(w, r, MaxReceiptSize)
	if err != nil {
		response.Error(w, status, err.Error())
		return
	}

	mediaType := mediaTypeOf(header, data)
	if mediaType != extract.MediaTypePDF && !strings.HasPrefix(mediaType, "image/") {
		response.Error(w, http.StatusUnsupportedMediaType, "receipt must be an image or a PDF")
		return
	}

	rec, err := h.pipeline.SubmitReceipt(r.Context(), service.ReceiptUpload{
		OwnerID:   ownerID,
		Filename:  header.Filename,
		MediaType: mediaType,
		Body:      bytes.NewReader(data),
	})
	if err != nil {
		h.logger.Error("failed to submit receipt", slog.Any("error", err))
		response.Error(w, http.StatusInternalServerError, "failed to queue receipt")
		return
	}

	response.JSON(w, http.StatusAccepted, UploadResponse{ID: rec.ID, Status: string(rec.Status)})
}

// UploadImport accepts a PDF bank statement of up to MaxImportSize bytes.
func (h *IngestHandler) UploadImport(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := interceptors.GetUserIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	data, header, status, err := readUpload(w, r, MaxImportSize)
	if err != nil {
		response.Error(w, status, err.Error())
		return
	}
	if mediaTypeOf(header, data) != extract.MediaTypePDF {
		response.Error(w, http.StatusUnsupportedMediaType, "statement must be a PDF")
		return
	}

	job, err := h.pipeline.SubmitImport(r.Context(), ownerID, header.Filename, data)
	if err != nil {
		h.logger.Error("failed to submit import", slog.Any("error", err))
		response.Error(w, http.StatusInternalServerError, "failed to queue import")
		return
	}

	response.JSON(w, http.StatusAccepted, UploadResponse{ID: job.ID, Status: string(job.Status)})
}

// ReceiptStatus reports the processing state of one of the caller's receipts.
func (h *IngestHandler) ReceiptStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	rec, err := h.pipeline.ReceiptStatus(r.Context(), ownerID, id)
	if err != nil {
		h.lookupError(w, "receipt", err)
		return
	}

	resp := ReceiptStatusResponse{
		ID:           rec.ID,
		Status:       rec.Status,
		OriginalName: rec.OriginalName,
		Confidence:   rec.Confidence,
		ErrorMessage: rec.ErrorMessage,
		CreatedAt:    rec.CreatedAt,
		ProcessedAt:  rec.ProcessedAt,
	}
	if len(rec.ParsedFields) > 0 {
		resp.ParsedFields = rec.ParsedFields
	}
	response.JSON(w, http.StatusOK, resp)
}

// ImportStatus reports the progress and summary of one of the caller's imports.
func (h *IngestHandler) ImportStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	job, err := h.pipeline.ImportStatus(r.Context(), ownerID, id)
	if err != nil {
		h.lookupError(w, "import", err)
		return
	}

	summary := job.Summary
	if summary.Errors == nil {
		summary.Errors = []string{}
	}
	response.JSON(w, http.StatusOK, ImportStatusResponse{
		ID:         job.ID,
		Status:     job.Status,
		FileID:     job.FileID,
		Summary:    summary,
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	})
}

func (h *IngestHandler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	ownerID, ok := interceptors.GetUserIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthenticated")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, id, true
}

func (h *IngestHandler) lookupError(w http.ResponseWriter, what string, err error) {
	if service.IsNotFound(err) {
		response.Error(w, http.StatusNotFound, what+" not found")
		return
	}
	h.logger.Error("failed to load "+what+" status", slog.Any("error", err))
	response.Error(w, http.StatusInternalServerError, "failed to load "+what)
}

var errTooLarge = errors.New("file too large")

// readUpload reads the multipart file field, rejecting bodies over limit.
// It returns the HTTP status to answer with when it fails.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, *multipart.FileHeader, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, http.StatusRequestEntityTooLarge, errTooLarge
		}
		return nil, nil, http.StatusBadRequest, errors.New("expected a multipart form")
	}

	file, header, err := r.FormFile(formField)
	if err != nil {
		return nil, nil, http.StatusBadRequest, errors.New("missing file field")
	}
	defer file.Close()

	if header.Size > limit {
		return nil, nil, http.StatusRequestEntityTooLarge, errTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, nil, http.StatusBadRequest, errors.New("failed to read file")
	}
	if int64(len(data)) > limit {
		return nil, nil, http.StatusRequestEntityTooLarge, errTooLarge
	}
	if len(data) == 0 {
		return nil, nil, http.StatusBadRequest, errors.New("file is empty")
	}
	return data, header, 0, nil
}

// mediaTypeOf prefers the sniffed type and falls back to the declared part
// type when sniffing is inconclusive.
func mediaTypeOf(header *multipart.FileHeader, data []byte) string {
	sniffed := http.DetectContentType(data)
	if sniffed != "application/octet-stream" {
		if mt, _, ok := strings.Cut(sniffed, ";"); ok {
			return strings.TrimSpace(mt)
		}
		return sniffed
	}
	return strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
}
