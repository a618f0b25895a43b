// internal/infra/database/postgres_payment_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"payment_scheduler/internal/domain/payment"

	"github.com/lib/pq" // For pq.Array
)

// Custom errors specific to the payment repository
var ErrPaymentNotFound = fmt.Errorf("scheduled payment not found")

const paymentColumns = `id, owner_id, payment_type, recipient_address, amount, frequency, condition_expression,
       start_date, end_date, next_execution_date, last_execution_date, execution_count, max_executions,
       status, last_error, last_transaction_id, pending_transaction_id, created_at, updated_at`

type PostgresPaymentRepository struct {
	db *sql.DB
}

func NewPostgresPaymentRepository(db *sql.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

func (r *PostgresPaymentRepository) Create(ctx context.Context, p *payment.ScheduledPayment) error {
	query := `INSERT INTO scheduled_payments (id, owner_id, payment_type, recipient_address, amount, frequency,
                  condition_expression, start_date, end_date, next_execution_date, execution_count, max_executions, status)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
              RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.OwnerID, p.Type, p.RecipientAddress, p.Amount,
		nullIfEmpty(string(p.Frequency())), nullIfEmpty(p.ConditionExpression()),
		p.Window.StartDate, p.Window.EndDate, p.NextExecutionDate,
		p.ExecutionCount, p.Window.MaxExecutions, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating scheduled payment: %w", err)
	}
	return nil
}

func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id string) (*payment.ScheduledPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM scheduled_payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("error getting scheduled payment by ID: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*payment.ScheduledPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM scheduled_payments
              WHERE owner_id = $1 ORDER BY created_at DESC, id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error querying scheduled payments by owner: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

// ListDue orders by next_execution_date then id so fixtures are reproducible.
func (r *PostgresPaymentRepository) ListDue(ctx context.Context, now time.Time, filter payment.DueFilter) ([]*payment.ScheduledPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM scheduled_payments
              WHERE status = $1
                AND next_execution_date IS NOT NULL
                AND next_execution_date <= $2
                AND ($3::bigint IS NULL OR owner_id = $3)
                AND (cardinality($4::varchar[]) = 0 OR payment_type = ANY($4::varchar[]))
              ORDER BY next_execution_date ASC, id ASC`

	var ownerID sql.NullInt64
	if filter.OwnerID != nil {
		ownerID = sql.NullInt64{Int64: *filter.OwnerID, Valid: true}
	}
	types := make([]string, len(filter.Types))
	for i, t := range filter.Types {
		types[i] = string(t)
	}

	rows, err := r.db.QueryContext(ctx, query, payment.StatusActive, now, ownerID, pq.Array(types))
	if err != nil {
		return nil, fmt.Errorf("error querying due scheduled payments: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (r *PostgresPaymentRepository) UpdateState(ctx context.Context, p *payment.ScheduledPayment) error {
	query := `UPDATE scheduled_payments
              SET status = $1, next_execution_date = $2, last_execution_date = $3, execution_count = $4,
                  last_error = $5, last_transaction_id = $6, pending_transaction_id = $7, updated_at = NOW()
              WHERE id = $8
              RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		p.Status, p.NextExecutionDate, p.LastExecutionDate, p.ExecutionCount,
		p.LastError, p.LastTransactionID, p.PendingTransactionID, p.ID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("error updating scheduled payment state: %w", err)
	}
	return nil
}

func (r *PostgresPaymentRepository) Delete(ctx context.Context, id string, ownerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_payments WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("error deleting scheduled payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading deleted rows: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*payment.ScheduledPayment, error) {
	p := payment.ScheduledPayment{}
	var frequency, condition sql.NullString
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Type, &p.RecipientAddress, &p.Amount, &frequency, &condition,
		&p.Window.StartDate, &p.Window.EndDate, &p.NextExecutionDate, &p.LastExecutionDate,
		&p.ExecutionCount, &p.Window.MaxExecutions, &p.Status, &p.LastError, &p.LastTransactionID,
		&p.PendingTransactionID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	switch p.Type {
	case payment.TypeRecurring:
		p.Recurring = &payment.RecurringConfig{Frequency: payment.Frequency(frequency.String)}
	case payment.TypeConditional:
		p.Conditional = payment.NewConditionalConfig(condition.String)
	}
	return &p, nil
}

// Helper to scan multiple rows
func scanPayments(rows *sql.Rows) ([]*payment.ScheduledPayment, error) {
	payments := make([]*payment.ScheduledPayment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning scheduled payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled payment rows: %w", err)
	}
	return payments, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
