// Package cryptox holds the cryptographic primitives of the vault:
// Argon2id key derivation, verifier hashing and AES-256-GCM sealing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"golang.org/x/crypto/argon2"
)

// Sizes in bytes of the primitives' inputs and outputs.
const (
	SaltSize  = 16 // Argon2id salt
	NonceSize = 12 // AES-GCM nonce
	KeySize   = 32 // AES-256 key, also the only accepted KDFParams.KeyLen
	TagSize   = 16 // AES-GCM authentication tag
)

// ErrInvalidParams is returned by KDFParams.Validate.
var ErrInvalidParams = errors.New("invalid kdf parameters")

// KDFParams are the Argon2id cost parameters. They are stored next to the
// verifier so that a vault keeps opening after the defaults change.
type KDFParams struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memory_kib"`
	Threads   uint8  `json:"threads"`
	KeyLen    uint32 `json:"key_len"`
}

// DefaultKDFParams targets well above 100ms per derivation on a laptop.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Time:      3,
		MemoryKiB: 64 * 1024,
		Threads:   4,
		KeyLen:    KeySize,
	}
}

// Validate rejects parameter sets that are either unusable by argon2 or so
// weak/huge that they can only come from a damaged record.
func (p KDFParams) Validate() error {
	switch {
	case p.Time < 1 || p.Time > 64:
		return fmt.Errorf("%w: time=%d", ErrInvalidParams, p.Time)
	case p.Threads < 1 || p.Threads > 64:
		return fmt.Errorf("%w: threads=%d", ErrInvalidParams, p.Threads)
	case p.MemoryKiB < 1024 || p.MemoryKiB > 4*1024*1024:
		return fmt.Errorf("%w: memory=%dKiB", ErrInvalidParams, p.MemoryKiB)
	case p.KeyLen != KeySize:
		return fmt.Errorf("%w: key_len=%d", ErrInvalidParams, p.KeyLen)
	}
	return nil
}

// DeriveMasterKey runs Argon2id over password and salt. The result is
// deterministic for the same (password, salt, params).
func DeriveMasterKey(password []byte, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
}

// MakeVerifier hashes a derived key so the stored verifier is never usable as
// an encryption key itself.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// NewSalt returns SaltSize random bytes. Every verifier and every vault key
// gets its own salt.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// NewNonce returns NonceSize random bytes. A nonce must never be reused with
// the same key, so Seal callers take a fresh one each time.
func NewNonce() []byte {
	return common.GenerateRandByteArray(NonceSize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aesgcm, nil
}

// Seal encrypts plaintext with AES-GCM under key. aad is authenticated but
// not encrypted; the same aad must be passed to Open.
func Seal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", aesgcm.NonceSize(), len(nonce))
	}
	return aesgcm.Seal(nil, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext. Nothing is returned unless the
// tag verifies.
func Open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", aesgcm.NonceSize(), len(nonce))
	}
	return aesgcm.Open(nil, nonce, ciphertext, aad)
}
