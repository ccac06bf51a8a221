// Package vaultfile encodes the on-disk vault container.
//
// Layout (version 1):
//
//	offset  size  field
//	0       1     version
//	1       16    salt (Argon2id)
//	17      12    nonce (AES-GCM)
//	29      n+16  ciphertext || tag
//
// The 29 header bytes are passed to AES-GCM as additional data, so changing
// the version, salt or nonce fails authentication like any ciphertext flip.
package vaultfile

import (
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
)

// Version is bumped on every layout change. Files carrying any other value
// are refused with common.ErrUnsupportedVersion.
const Version uint8 = 1

// HeaderSize is the length of the plaintext header: version, salt, nonce.
const HeaderSize = 1 + cryptox.SaltSize + cryptox.NonceSize

// Header is the unencrypted prefix of a vault file. Salt and Nonce alias the
// buffer given to ParseHeader.
type Header struct {
	Version uint8
	Salt    []byte
	Nonce   []byte
}

// Bytes encodes h in file order. The result doubles as the AES-GCM
// additional data.
func (h Header) Bytes() []byte {
	b := make([]byte, 0, HeaderSize)
	b = append(b, h.Version)
	b = append(b, h.Salt...)
	b = append(b, h.Nonce...)
	return b
}

// ParseHeader splits raw into header and sealed body without trusting either.
func ParseHeader(raw []byte) (Header, []byte, error) {
	if len(raw) == 0 {
		return Header{}, nil, fmt.Errorf("%w: empty file", common.ErrCorruptFile)
	}
	if raw[0] != Version {
		return Header{}, nil, fmt.Errorf("%w: %d", common.ErrUnsupportedVersion, raw[0])
	}
	if len(raw) < HeaderSize+cryptox.TagSize {
		return Header{}, nil, fmt.Errorf("%w: truncated (%d bytes)", common.ErrCorruptFile, len(raw))
	}

	h := Header{
		Version: raw[0],
		Salt:    raw[1 : 1+cryptox.SaltSize],
		Nonce:   raw[1+cryptox.SaltSize : HeaderSize],
	}
	return h, raw[HeaderSize:], nil
}

// Seal encrypts plaintext under key with a fresh nonce and returns the full
// file contents. salt is recorded so the key can be derived again on open.
func Seal(key, salt, plaintext []byte) ([]byte, error) {
	if len(salt) != cryptox.SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", cryptox.SaltSize, len(salt))
	}

	h := Header{Version: Version, Salt: salt, Nonce: cryptox.NewNonce()}
	header := h.Bytes()

	ct, err := cryptox.Seal(key, h.Nonce, plaintext, header)
	if err != nil {
		return nil, err
	}
	return append(header, ct...), nil
}

// Open authenticates and decrypts a file produced by Seal. Any failure of the
// tag check is reported as common.ErrWrongPassword, because a wrong key and a
// modified file cannot be told apart.
func Open(key, raw []byte) ([]byte, error) {
	h, body, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}

	pt, err := cryptox.Open(key, h.Nonce, body, raw[:HeaderSize])
	if err != nil {
		return nil, common.ErrWrongPassword
	}
	return pt, nil
}
