// internal/domain/payment/repository.go
package payment

import (
	"context"
	"time"
)

// DueFilter narrows the readiness query. Zero values mean "no filter".
type DueFilter struct {
	OwnerID *int64
	Types   []Type
}

// Repository defines persistence for ScheduledPayment entries.
type Repository interface {
	Create(ctx context.Context, p *ScheduledPayment) error
	GetByID(ctx context.Context, id string) (*ScheduledPayment, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*ScheduledPayment, error)
	// ListDue returns active entries with next_execution_date <= now.
	ListDue(ctx context.Context, now time.Time, filter DueFilter) ([]*ScheduledPayment, error)
	// UpdateState persists status, timing, counters and last-attempt fields.
	UpdateState(ctx context.Context, p *ScheduledPayment) error
	// Delete removes an entry owned by ownerID. It reports whether a row was removed.
	Delete(ctx context.Context, id string, ownerID int64) (bool, error)
}
