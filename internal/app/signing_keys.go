package app

import (
	"context"
	"fmt"

	"payment_scheduler/internal/domain/owner"
)

var ErrSigningKeyMissing = fmt.Errorf("owner has no stored signing key")

// Decrypter opens signing material sealed for an owner.
type Decrypter interface {
	Decrypt(ownerID int64, sealed string) (string, error)
}

// SigningKeyService recovers an owner's signing material right before an execution.
// Nothing is cached; the caller drops the value after the call.
type SigningKeyService struct {
	owners owner.Directory
	vault  Decrypter
}

func NewSigningKeyService(owners owner.Directory, vault Decrypter) *SigningKeyService {
	return &SigningKeyService{owners: owners, vault: vault}
}

func (s *SigningKeyService) Authorization(ctx context.Context, ownerID int64) (string, error) {
	o, err := s.owners.GetByID(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("load owner %d: %w", ownerID, err)
	}
	if o.EncryptedSigningKey == "" {
		return "", ErrSigningKeyMissing
	}
	key, err := s.vault.Decrypt(o.ID, o.EncryptedSigningKey)
	if err != nil {
		return "", fmt.Errorf("decrypt signing key of owner %d: %w", ownerID, err)
	}
	return key, nil
}
