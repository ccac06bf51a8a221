// Package store keeps the credential mapping of an unlocked vault.
//
// A Store owns the decrypted mapping site -> username -> secret and the key
// derived from the master password. Every mutation re-encrypts the whole
// mapping and atomically replaces the vault file. While a Store is open it
// holds an advisory lock on the file, so a second process cannot interleave
// its own open-modify-persist cycle.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/vaultfile"
	"github.com/go-playground/validator/v10"
)

const filePerm = 0o600

// writeFile is a test seam over the atomic writer.
var writeFile = filex.WriteFileAtomic

var validate = validator.New(validator.WithRequiredStructEnabled())

// KeySource derives the vault key from the master password. It is satisfied
// by *gate.MasterVerifier.
type KeySource interface {
	DeriveKey(password, salt []byte) ([]byte, error)
	ID() string
}

// Credential is one (site, username, secret) entry. All three fields are
// required; site and username are capped at 512 bytes, the secret at 64 KiB.
type Credential struct {
	Site     string `json:"site" validate:"required,max=512"`
	Username string `json:"username" validate:"required,max=512"`
	Secret   string `json:"secret" validate:"required,max=65536"`
}

// Validate checks the credential before it is stored.
func (c Credential) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidCredential, err)
	}
	return nil
}

// payload is the plaintext sealed inside the vault file.
type payload struct {
	VaultID string                       `json:"vault_id"`
	Entries map[string]map[string]string `json:"entries"`
}

// Store is an open vault: the decrypted mapping, the derived key and the
// file lock. It is safe for concurrent use. Obtain one with Create or Open
// and release it with Close.
type Store struct {
	mu      sync.Mutex
	path    string
	vaultID string
	salt    []byte
	key     []byte
	entries map[string]map[string]string
	lock    filex.Unlocker
	log     logging.Logger
	closed  bool
}

// Create writes a new, empty vault file at path for a freshly initialized
// verifier and returns it open. It refuses to overwrite an existing file.
func Create(ctx context.Context, path string, password []byte, keys KeySource, log logging.Logger) (*Store, error) {
	lock, err := filex.Lock(path)
	if err != nil {
		return nil, lockError(err)
	}

	if _, err := os.Stat(path); err == nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("%w: %s exists", common.ErrAlreadyInitialized, path)
	}

	salt := cryptox.NewSalt()
	key, err := keys.DeriveKey(password, salt)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	s := &Store{
		path:    path,
		vaultID: keys.ID(),
		salt:    salt,
		key:     key,
		entries: make(map[string]map[string]string),
		lock:    lock,
		log:     log.With("component", "store", "path", path),
	}

	if err := s.persistLocked(ctx); err != nil {
		s.wipe()
		_ = lock.Unlock()
		return nil, err
	}

	s.log.Info(ctx, "vault created")
	return s, nil
}

// Open decrypts the vault file at path. A bad password and a modified file
// both end in common.ErrWrongPassword; nothing from the file is trusted
// before the authentication tag verifies.
func Open(ctx context.Context, path string, password []byte, keys KeySource, log logging.Logger) (*Store, error) {
	lock, err := filex.Lock(path)
	if err != nil {
		return nil, lockError(err)
	}

	s, err := open(path, password, keys)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	s.lock = lock
	s.log = log.With("component", "store", "path", path)
	s.log.Info(ctx, "vault opened", "entries", s.countLocked())
	return s, nil
}

func open(path string, password []byte, keys KeySource) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", common.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: read vault: %w", common.ErrIOFailure, err)
	}

	h, _, err := vaultfile.ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	salt := append([]byte(nil), h.Salt...)

	key, err := keys.DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := vaultfile.Open(key, raw)
	if err != nil {
		common.WipeByteArray(key)
		return nil, err
	}
	defer common.WipeByteArray(plaintext)

	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("%w: payload", common.ErrCorruptFile)
	}
	if p.VaultID != keys.ID() {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("%w: vault file belongs to another verifier", common.ErrCorruptFile)
	}
	if p.Entries == nil {
		p.Entries = make(map[string]map[string]string)
	}

	return &Store{
		path:    path,
		vaultID: p.VaultID,
		salt:    salt,
		key:     key,
		entries: p.Entries,
	}, nil
}

func lockError(err error) error {
	if errors.Is(err, common.ErrLocked) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrIOFailure, err)
}

// Add inserts or overwrites the secret of (site, username) and persists. If
// persisting fails the in-memory mapping is restored.
func (s *Store) Add(ctx context.Context, site, username, secret string) error {
	if err := (Credential{Site: site, Username: username, Secret: secret}).Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return common.ErrClosed
	}

	users, siteExisted := s.entries[site]
	if !siteExisted {
		users = make(map[string]string)
		s.entries[site] = users
	}
	prev, userExisted := users[username]
	users[username] = secret

	if err := s.persistLocked(ctx); err != nil {
		switch {
		case !siteExisted:
			delete(s.entries, site)
		case !userExisted:
			delete(users, username)
		default:
			users[username] = prev
		}
		return err
	}

	s.log.Debug(ctx, "credential saved", "site", site, "replaced", userExisted)
	return nil
}

// Remove deletes (site, username). It reports whether an entry existed and
// persists only in that case.
func (s *Store) Remove(ctx context.Context, site, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, common.ErrClosed
	}

	users, ok := s.entries[site]
	if !ok {
		return false, nil
	}
	prev, ok := users[username]
	if !ok {
		return false, nil
	}

	delete(users, username)
	if len(users) == 0 {
		delete(s.entries, site)
	}

	if err := s.persistLocked(ctx); err != nil {
		if s.entries[site] == nil {
			s.entries[site] = users
		}
		users[username] = prev
		return false, err
	}

	s.log.Debug(ctx, "credential removed", "site", site)
	return true, nil
}

// Get returns the credential for (site, username).
func (s *Store) Get(site, username string) (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Credential{}, false
	}
	secret, ok := s.entries[site][username]
	if !ok {
		return Credential{}, false
	}
	return Credential{Site: site, Username: username, Secret: secret}, true
}

// List returns a snapshot sorted by site, then username.
func (s *Store) List() []Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Credential, 0, s.countLocked())
	if s.closed {
		return out
	}
	for site, users := range s.entries {
		for username, secret := range users {
			out = append(out, Credential{Site: site, Username: username, Secret: secret})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Site != out[j].Site {
			return out[i].Site < out[j].Site
		}
		return out[i].Username < out[j].Username
	})
	return out
}

// Persist re-encrypts the mapping with a fresh nonce and replaces the file.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return common.ErrClosed
	}
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	plaintext, err := json.Marshal(payload{VaultID: s.vaultID, Entries: s.entries})
	if err != nil {
		return fmt.Errorf("encode vault: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	raw, err := vaultfile.Seal(s.key, s.salt, plaintext)
	if err != nil {
		return fmt.Errorf("seal vault: %w", err)
	}

	if err := writeFile(s.path, raw, filePerm); err != nil {
		s.log.Error(ctx, "persist failed, previous vault file kept", "error", err)
		return fmt.Errorf("%w: %w: %w", common.ErrIOFailure, common.ErrNotSaved, err)
	}

	s.log.Debug(ctx, "vault persisted", "entries", s.countLocked(), "bytes", len(raw))
	return nil
}

// Rekey re-encrypts the vault under a key derived from password with a new
// salt. On failure the previous key stays in effect.
func (s *Store) Rekey(ctx context.Context, password []byte, keys KeySource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return common.ErrClosed
	}
	if keys.ID() != s.vaultID {
		return fmt.Errorf("%w: verifier belongs to another vault", common.ErrCorruptVerifier)
	}

	salt := cryptox.NewSalt()
	key, err := keys.DeriveKey(password, salt)
	if err != nil {
		return err
	}

	oldSalt, oldKey := s.salt, s.key
	s.salt, s.key = salt, key

	if err := s.persistLocked(ctx); err != nil {
		s.salt, s.key = oldSalt, oldKey
		common.WipeByteArray(key)
		return err
	}

	common.WipeByteArray(oldKey)
	s.log.Info(ctx, "vault rekeyed")
	return nil
}

// Close wipes the key, drops the mapping and releases the file lock.
// Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.wipe()

	var err error
	if s.lock != nil {
		err = s.lock.Unlock()
		s.lock = nil
	}
	s.log.Info(context.Background(), "vault closed")
	return err
}

// Len is the number of stored credentials.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked()
}

func (s *Store) countLocked() int {
	n := 0
	for _, users := range s.entries {
		n += len(users)
	}
	return n
}

// wipe zeroes the key and forgets the mapping. Go strings cannot be
// overwritten, so secrets only become unreachable.
func (s *Store) wipe() {
	common.WipeByteArray(s.key)
	s.key = nil
	s.entries = nil
	s.closed = true
}
