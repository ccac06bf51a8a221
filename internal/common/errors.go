// Package common defines sentinel errors and small helpers shared by the
// vault layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Gate / verifier errors.
	ErrAlreadyInitialized = errors.New("vault already initialized")
	ErrNotInitialized     = errors.New("vault not initialized")
	ErrCorruptVerifier    = errors.New("corrupt master password verifier")

	// Both a bad master password and tampered ciphertext end up here; the
	// message must not say which one it was.
	ErrWrongPassword = errors.New("wrong password or corrupted vault")

	// Vault file errors.
	ErrCorruptFile        = errors.New("corrupt vault file")
	ErrUnsupportedVersion = errors.New("unsupported vault file version")
	ErrFileNotFound       = errors.New("vault file not found")
	ErrIOFailure          = errors.New("i/o failure")
	ErrLocked             = errors.New("vault is in use by another process")

	// ErrNotSaved accompanies ErrIOFailure when replacing the vault file
	// failed; the previous file is still in place.
	ErrNotSaved = errors.New("vault file not saved")

	// Store lifecycle / validation errors.
	ErrClosed            = errors.New("vault is closed")
	ErrInvalidCredential = errors.New("invalid credential: site, username and secret are required")

	// Presentation layer: command requires an unlocked vault.
	ErrVaultLocked = errors.New("vault is locked, run unlock first")
)
