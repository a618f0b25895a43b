package owner

import (
	"context"
)

// Directory defines read access to owners.
type Directory interface {
	GetByID(ctx context.Context, id int64) (*Owner, error)
	// GetByAddress matches the sending address case-insensitively.
	GetByAddress(ctx context.Context, address string) (*Owner, error)
}
