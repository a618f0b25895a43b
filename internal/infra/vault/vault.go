// Package vault seals owners' signing keys at rest.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	version = "v1"
	keySize = 32
)

var ErrDecryption = errors.New("signing key could not be decrypted")

// Vault derives one AES-256-GCM key per owner from a master secret.
// Ciphertexts look like "v1:<base64(nonce||sealed)>" and are bound to the owner id.
type Vault struct {
	secret []byte
}

func New(secret string) (*Vault, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("vault: master secret must be at least 16 bytes")
	}
	return &Vault{secret: []byte(secret)}, nil
}

func (v *Vault) Encrypt(ownerID int64, plaintext string) (string, error) {
	aead, err := v.aead(ownerID)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), ownerAAD(ownerID))
	return version + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt for the same owner. Every failure wraps ErrDecryption.
func (v *Vault) Decrypt(ownerID int64, sealed string) (string, error) {
	ver, payload, ok := strings.Cut(sealed, ":")
	if !ok || ver != version {
		return "", fmt.Errorf("%w: unsupported format", ErrDecryption)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrDecryption, err)
	}
	aead, err := v.aead(ownerID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, ownerAAD(ownerID))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plain), nil
}

func (v *Vault) aead(ownerID int64) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, v.secret, nil, []byte("payment-signing-key:"+strconv.FormatInt(ownerID, 10)))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func ownerAAD(ownerID int64) []byte {
	return []byte("owner:" + strconv.FormatInt(ownerID, 10))
}
