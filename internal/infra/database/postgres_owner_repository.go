package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt" // For error wrapping

	"payment_scheduler/internal/domain/owner"
)

// Custom errors
var ErrOwnerNotFound = fmt.Errorf("owner not found")

const ownerColumns = `id, display_name, email, sending_address, encrypted_signing_key, telegram_chat_id, created_at, updated_at`

// PostgresOwnerRepository is the read side of the account directory.
type PostgresOwnerRepository struct {
	db *sql.DB
}

func NewPostgresOwnerRepository(db *sql.DB) *PostgresOwnerRepository {
	return &PostgresOwnerRepository{db: db}
}

func (r *PostgresOwnerRepository) GetByID(ctx context.Context, id int64) (*owner.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE id = $1`
	o, err := scanOwner(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOwnerNotFound
		}
		return nil, fmt.Errorf("error getting owner by ID: %w", err)
	}
	return o, nil
}

func (r *PostgresOwnerRepository) GetByAddress(ctx context.Context, address string) (*owner.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE LOWER(sending_address) = LOWER($1)`
	o, err := scanOwner(r.db.QueryRowContext(ctx, query, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOwnerNotFound
		}
		return nil, fmt.Errorf("error getting owner by address: %w", err)
	}
	return o, nil
}

func scanOwner(row rowScanner) (*owner.Owner, error) {
	o := &owner.Owner{}
	err := row.Scan(&o.ID, &o.DisplayName, &o.Email, &o.SendingAddress, &o.EncryptedSigningKey,
		&o.TelegramChatID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}
