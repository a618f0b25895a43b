package history

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a transfer an entry is recorded for.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Entry is one line in an owner's transfer history.
type Entry struct {
	ID            string
	OwnerID       int64
	PaymentID     string
	Direction     Direction
	Counterparty  string
	Amount        decimal.Decimal
	TransactionID string
	CreatedAt     time.Time
}

// Repository defines persistence for history entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	ListByOwner(ctx context.Context, ownerID int64) ([]*Entry, error)
}
