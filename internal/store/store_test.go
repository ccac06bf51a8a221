package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/vaultfile"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastParams = cryptox.KDFParams{Time: 1, MemoryKiB: 1024, Threads: 1, KeyLen: cryptox.KeySize}

// testKeys is a KeySource with cheap KDF parameters.
type testKeys struct {
	id string
}

func newTestKeys() testKeys { return testKeys{id: uuid.NewString()} }

func (k testKeys) DeriveKey(password, salt []byte) ([]byte, error) {
	return cryptox.DeriveMasterKey(password, salt, fastParams), nil
}

func (k testKeys) ID() string { return k.id }

func vaultPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "vault.bin")
}

func create(t *testing.T, path, password string, keys KeySource) *Store {
	t.Helper()
	s, err := Create(context.Background(), path, []byte(password), keys, logging.Discard())
	require.NoError(t, err)
	return s
}

func reopen(t *testing.T, path, password string, keys KeySource) *Store {
	t.Helper()
	s, err := Open(context.Background(), path, []byte(password), keys, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreate_WritesEmptyVault(t *testing.T) {
	path := vaultPath(t)
	keys := newTestKeys()

	s := create(t, path, "pw", keys)
	assert.Empty(t, s.List())
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, vaultfile.Version, raw[0])

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerm), fi.Mode().Perm())

	s = reopen(t, path, "pw", keys)
	assert.Equal(t, 0, s.Len())
}

func TestCreate_RefusesExistingFile(t *testing.T) {
	path := vaultPath(t)
	keys := newTestKeys()
	require.NoError(t, create(t, path, "pw", keys).Close())

	_, err := Create(context.Background(), path, []byte("other"), keys, logging.Discard())
	require.ErrorIs(t, err, common.ErrAlreadyInitialized)

	reopen(t, path, "pw", keys)
}

func TestRoundTrip(t *testing.T) {
	path := vaultPath(t)
	keys := newTestKeys()
	ctx := context.Background()

	want := []Credential{
		{Site: "a.example", Username: "bob", Secret: "1"},
		{Site: "example.com", Username: "alice", Secret: "s3cr3t"},
		{Site: "example.com", Username: "carol", Secret: "päss wörd \"quoted\""},
	}

	s := create(t, path, "pw", keys)
	for _, c := range want {
		require.NoError(t, s.Add(ctx, c.Site, c.Username, c.Secret))
	}
	require.NoError(t, s.Close())

	s = reopen(t, path, "pw", keys)
	assert.Equal(t, want, s.List())
	require.NoError(t, s.Close())

	_, err := Open(ctx, path, []byte("PW"), keys, logging.Discard())
	require.ErrorIs(t, err, common.ErrWrongPassword)
}

func TestEndToEnd(t *testing.T) {
	path := vaultPath(t)
	keys := newTestKeys()
	ctx := context.Background()

	s := create(t, path, "hunter2", keys)
	require.NoError(t, s.Add(ctx, "example.com", "alice", "s3cr3t"))
	require.NoError(t, s.Close())

	s = reopen(t, path, "hunter2", keys)
	assert.Equal(t, []Credential{{Site: "example.com", Username: "alice", Secret: "s3cr3t"}}, s.List())
	require.NoError(t, s.Close())

	_, err := Open(ctx, path, []byte("wrong"), keys, logging.Discard())
	require.ErrorIs(t, err, common.ErrWrongPassword)
}

func TestAdd_SameEntryTwiceIsSingleEntry(t *testing.T) {
	s := create(t, vaultPath(t), "pw", newTestKeys())
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "example.com", "alice", "s3cr3t"))
	require.NoError(t, s.Add(ctx, "example.com", "alice", "s3cr3t"))
	assert.Len(t, s.List(), 1)

	require.NoError(t, s.Add(ctx, "example.com", "alice", "newer"))
	c, ok := s.Get("example.com", "alice")
	require.True(t, ok)
	assert.Equal(t, "newer", c.Secret, "last write wins")
	assert.Equal(t, 1, s.Len())
}

func TestAdd_Validation(t *testing.T) {
	s := create(t, vaultPath(t), "pw", newTestKeys())
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.ErrorIs(t, s.Add(ctx, "", "alice", "x"), common.ErrInvalidCredential)
	require.ErrorIs(t, s.Add(ctx, "example.com", "", "x"), common.ErrInvalidCredential)
	require.ErrorIs(t, s.Add(ctx, strings.Repeat("x", 513), "alice", "x"), common.ErrInvalidCredential)
	require.ErrorIs(t, s.Add(ctx, "example.com", "alice", ""), common.ErrInvalidCredential)
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.Add(ctx, "example.com", "alice", "x"))
	assert.Equal(t, 1, s.Len())
}

func TestRemove(t *testing.T) {
	path := vaultPath(t)
	keys := newTestKeys()
	ctx := context.Background()

	s := create(t, path, "pw", keys)
	require.NoError(t, s.Add(ctx, "example.com", "alice", "1"))
	require.NoError(t, s.Add(ctx, "example.com", "bob", "2"))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	removed, err := s.Remove(ctx, "example.com", "nobody")
	require.NoError(t, err)
	assert.False(t, removed)
	removed, err = s.Remove(ctx, "nowhere.org", "alice")
	require.NoError(t, err)
	assert.False(t, removed)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "nothing removed, nothing persisted")

	removed, err = s.Remove(ctx, "example.com", "alice")
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, s.Close())

	s = reopen(t, path, "pw", keys)
	assert.Equal(t, []Credential{{Site: "example.com", Username: "bob", Secret: "2"}}, s.List())

	removed, err = s.Remove(ctx, "example.com", "bob")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, s.List())
}

func TestList_IsSnapshot(t *testing.T) {
	s := create(t, vaultPath(t), "pw", newTestKeys())
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "example.com", "alice", "1"))
	snap := s.List()
	snap[0].Secret = "mutated"

	c, ok := s.Get("example.com", "alice")
	require.True(t, ok)
	assert.Equal(t, "1", c.Secret)

	_, ok = s.Get("example.com", "bob")
	assert.False(t, ok)
}

func TestOpen_TamperedFileNeverYieldsPlaintext(t *testing.T) {
	path := vaultPath(t)
	keys := newTestKeys()
	ctx := context.Background()

	s := create(t, path, "pw", keys)
	require.NoError(t, s.Add(ctx, "example.com", "alice", "s3cr3t"))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// header, first ciphertext byte, last tag byte
	for _, i := range []int{0, 1, vaultfile.HeaderSize - 1, vaultfile.HeaderSize, len(raw) - 1} {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0x01
		require.NoError(t, os.WriteFile(path, tampered, 0o600))

		got, err := Open(ctx, path, []byte("pw"), keys, logging.Discard())
		require.Error(t, err, "byte %d", i)
		require.Nil(t, got)
		if i == 0 {
			require.ErrorIs(t, err, common.ErrUnsupportedVersion)
		} else {
			require.ErrorIs(t, err, common.ErrWrongPassword)
		}
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	keys := newTestKeys()

	_, err := Open(ctx, vaultPath(t), []byte("pw"), keys, logging.Discard())
	require.ErrorIs(t, err, common.ErrFileNotFound)

	path := vaultPath(t)
	require.NoError(t, os.WriteFile(path, []byte{vaultfile.Version, 1, 2}, 0o600))
	_, err = Open(ctx, path, []byte("pw"), keys, logging.Discard())
	require.ErrorIs(t, err, common.ErrCorruptFile)

	require.NoError(t, os.WriteFile(path, append([]byte{9}, make([]byte, 64)...), 0o600))
	_, err = Open(ctx, path, []byte("pw"), keys, logging.Discard())
	require.ErrorIs(t, err, common.ErrUnsupportedVersion)
}

func TestOpen_ForeignVaultID(t *testing.T) {
	path := vaultPath(t)
	keys := newTestKeys()
	require.NoError(t, create(t, path, "pw", keys).Close())

	other := testKeys{id: uuid.NewString()}
	_, err := Open(context.Background(), path, []byte("pw"), other, logging.Discard())
	require.ErrorIs(t, err, common.ErrCorruptFile)
}

func TestPersist_FailureKeepsPreviousFileAndMemory(t *testing.T) {
	path := vaultPath(t)
	keys := newTestKeys()
	ctx := context.Background()

	s := create(t, path, "pw", keys)
	require.NoError(t, s.Add(ctx, "example.com", "alice", "old"))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	orig := writeFile
	writeFile = func(string, []byte, os.FileMode) error { return errors.New("interrupted write") }
	t.Cleanup(func() { writeFile = orig })

	err = s.Add(ctx, "example.com", "alice", "new")
	require.ErrorIs(t, err, common.ErrIOFailure)
	require.ErrorIs(t, err, common.ErrNotSaved)
	err = s.Add(ctx, "other.org", "bob", "x")
	require.ErrorIs(t, err, common.ErrIOFailure)
	removed, err := s.Remove(ctx, "example.com", "alice")
	require.ErrorIs(t, err, common.ErrIOFailure)
	assert.False(t, removed)

	assert.Equal(t, []Credential{{Site: "example.com", Username: "alice", Secret: "old"}}, s.List())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	writeFile = orig
	require.NoError(t, s.Close())

	s = reopen(t, path, "pw", keys)
	assert.Equal(t, []Credential{{Site: "example.com", Username: "alice", Secret: "old"}}, s.List())
}

func TestPersist_FreshNonce(t *testing.T) {
	path := vaultPath(t)
	s := create(t, path, "pw", newTestKeys())
	t.Cleanup(func() { _ = s.Close() })

	a, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Persist(context.Background()))
	b, err := os.ReadFile(path)
	require.NoError(t, err)

	ha, _, err := vaultfile.ParseHeader(a)
	require.NoError(t, err)
	hb, _, err := vaultfile.ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, ha.Salt, hb.Salt)
	assert.NotEqual(t, ha.Nonce, hb.Nonce)
}

func TestRekey(t *testing.T) {
	path := vaultPath(t)
	keys := newTestKeys()
	ctx := context.Background()

	s := create(t, path, "old", keys)
	require.NoError(t, s.Add(ctx, "example.com", "alice", "s3cr3t"))
	require.NoError(t, s.Rekey(ctx, []byte("new"), keys))
	require.NoError(t, s.Add(ctx, "example.com", "bob", "x"))
	require.NoError(t, s.Close())

	_, err := Open(ctx, path, []byte("old"), keys, logging.Discard())
	require.ErrorIs(t, err, common.ErrWrongPassword)

	s = reopen(t, path, "new", keys)
	assert.Equal(t, 2, s.Len())

	err = s.Rekey(ctx, []byte("x"), testKeys{id: uuid.NewString()})
	require.ErrorIs(t, err, common.ErrCorruptVerifier)
}

func TestRekey_FailureKeepsOldKey(t *testing.T) {
	path := vaultPath(t)
	keys := newTestKeys()
	ctx := context.Background()

	s := create(t, path, "old", keys)

	orig := writeFile
	writeFile = func(string, []byte, os.FileMode) error { return errors.New("no space") }
	err := s.Rekey(ctx, []byte("new"), keys)
	writeFile = orig
	require.ErrorIs(t, err, common.ErrIOFailure)

	require.NoError(t, s.Add(ctx, "example.com", "alice", "1"))
	require.NoError(t, s.Close())

	s = reopen(t, path, "old", keys)
	assert.Equal(t, 1, s.Len())
}

func TestClose(t *testing.T) {
	s := create(t, vaultPath(t), "pw", newTestKeys())
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "example.com", "alice", "1"))

	key := s.key
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, make([]byte, cryptox.KeySize), key, "key must be zeroed")
	assert.Empty(t, s.List())
	_, ok := s.Get("example.com", "alice")
	assert.False(t, ok)

	require.ErrorIs(t, s.Add(ctx, "a", "b", "c"), common.ErrClosed)
	_, err := s.Remove(ctx, "example.com", "alice")
	require.ErrorIs(t, err, common.ErrClosed)
	require.ErrorIs(t, s.Persist(ctx), common.ErrClosed)
	require.ErrorIs(t, s.Rekey(ctx, []byte("x"), newTestKeys()), common.ErrClosed)
}
