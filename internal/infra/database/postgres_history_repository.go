package database

import (
	"context"
	"database/sql"
	"fmt"

	"payment_scheduler/internal/domain/history"

	"github.com/google/uuid"
)

type PostgresHistoryRepository struct {
	db *sql.DB
}

func NewPostgresHistoryRepository(db *sql.DB) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{db: db}
}

// Create assigns an ID when the entry has none.
func (r *PostgresHistoryRepository) Create(ctx context.Context, e *history.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `INSERT INTO transfer_history (id, owner_id, payment_id, direction, counterparty, amount, transaction_id)
              VALUES ($1, $2, $3, $4, $5, $6, $7)
              RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.OwnerID, nullIfEmpty(e.PaymentID), e.Direction, e.Counterparty, e.Amount, e.TransactionID,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating history entry: %w", err)
	}
	return nil
}

func (r *PostgresHistoryRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*history.Entry, error) {
	query := `SELECT id, owner_id, payment_id, direction, counterparty, amount, transaction_id, created_at
              FROM transfer_history WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error querying history by owner: %w", err)
	}
	defer rows.Close()

	entries := make([]*history.Entry, 0)
	for rows.Next() {
		e := &history.Entry{}
		var paymentID sql.NullString
		if err := rows.Scan(&e.ID, &e.OwnerID, &paymentID, &e.Direction, &e.Counterparty, &e.Amount,
			&e.TransactionID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning history row: %w", err)
		}
		e.PaymentID = paymentID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return entries, nil
}
