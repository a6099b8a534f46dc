// Package ingest holds the types shared by the document ingestion pipeline:
// record states, ledger provenance and the job payloads.
package ingest

import "github.com/google/uuid"

// Direction of a ledger transaction.
type Direction string

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

// Source records how a ledger transaction was created.
type Source string

const (
	SourceManual Source = "manual"
	SourceOCR    Source = "ocr"
	SourceImport Source = "import"
)

// RecordStatus is the state of an uploaded document.
//
//	uploaded -> processing -> done
//	uploaded -> processing -> error
type RecordStatus string

const (
	RecordUploaded   RecordStatus = "uploaded"
	RecordProcessing RecordStatus = "processing"
	RecordDone       RecordStatus = "done"
	RecordError      RecordStatus = "error"
)

// RecordKind distinguishes single receipts from stored statement files.
type RecordKind string

const (
	RecordReceipt   RecordKind = "receipt"
	RecordStatement RecordKind = "statement"
)

// ImportStatus is the state of a statement import batch.
type ImportStatus string

const (
	ImportQueued   ImportStatus = "queued"
	ImportRunning  ImportStatus = "running"
	ImportFinished ImportStatus = "finished"
	ImportFailed   ImportStatus = "failed"
)

// MaxImportErrors bounds the per-row error messages kept on an import summary.
const MaxImportErrors = 50

// ReceiptPayload is the job payload for a single receipt.
// MediaType may be empty, in which case it is sniffed from the stored bytes.
type ReceiptPayload struct {
	RecordID    uuid.UUID `json:"recordId"`
	OwnerID     uuid.UUID `json:"ownerId"`
	StoragePath string    `json:"storagePath"`
	MediaType   string    `json:"mediaType,omitempty"`
}

// ImportPayload is the job payload for a statement import.
type ImportPayload struct {
	JobID        uuid.UUID `json:"jobId"`
	OwnerID      uuid.UUID `json:"ownerId"`
	FileBytes    []byte    `json:"-"`
	OriginalName string    `json:"originalName"`
}
