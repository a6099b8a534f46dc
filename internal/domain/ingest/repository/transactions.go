package repository

import (
	"context"

	"github.com/google/uuid"
)

// TransactionRepository writes ledger transactions.
type TransactionRepository interface {
	// Insert writes tx unless its idempotency key was already used.
	// It reports whether a new row was created.
	Insert(ctx context.Context, tx *Transaction) (bool, error)
}

// PostgresTransactionRepository implements TransactionRepository.
type PostgresTransactionRepository struct {
	db DB
}

// NewPostgresTransactionRepository creates a transaction repository over db.
func NewPostgresTransactionRepository(db DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func (r *PostgresTransactionRepository) Insert(ctx context.Context, tx *Transaction) (bool, error) {
	query := `
		INSERT INTO transactions (
			id, owner_id, direction, amount_minor, currency_code, occurred_on,
			category, merchant, description, source_record_id, source, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, NULLIF($12, ''))
		ON CONFLICT (idempotency_key) DO NOTHING`

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}

	tag, err := r.db.Exec(ctx, query,
		tx.ID,
		tx.OwnerID,
		tx.Direction,
		tx.AmountMinor,
		tx.CurrencyCode,
		tx.Date,
		tx.Category,
		tx.Merchant,
		tx.Description,
		tx.SourceRecordID,
		tx.Source,
		tx.IdempotencyKey,
	)
	if err != nil {
		return false, persistErr("insert transaction", err)
	}
	return tag.RowsAffected() == 1, nil
}
