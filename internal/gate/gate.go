// Package gate guards the vault with the master password.
//
// The gate keeps a MasterVerifier (salt, Argon2id-derived hash, KDF parameters
// and the id of the vault it belongs to) in the vault_meta table. The master
// password itself is never stored and never logged.
//
// A password change first records the new verifier as pending, then rekeys
// the vault data, then promotes the pending verifier in one transaction. If
// the process dies in between, UnlockWith finds the vault sealed under the
// pending verifier and finishes the promotion.
package gate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/repositories/metadata"
	"github.com/google/uuid"
)

const (
	keySalt     = "salt"
	keyVerifier = "verifier"
	keyParams   = "kdf_params"
	keyVaultID  = "vault_id"

	pendingPrefix = "pending_"
)

var verifierKeys = []string{keySalt, keyVerifier, keyParams, keyVaultID}

func pendingKeys() []string {
	out := make([]string, len(verifierKeys))
	for i, k := range verifierKeys {
		out[i] = pendingPrefix + k
	}
	return out
}

// Gate initializes, loads and checks the master password verifier.
type Gate struct {
	db     *sql.DB
	params cryptox.KDFParams
	log    logging.Logger
}

// New returns a Gate over db. params are used for new verifiers only;
// existing ones keep the parameters they were created with.
func New(db *sql.DB, params cryptox.KDFParams, log logging.Logger) *Gate {
	return &Gate{db: db, params: params, log: log.With("component", "gate")}
}

func (g *Gate) repo() metadata.Repository {
	return metadata.NewSQLiteRepository(g.db)
}

// IsInitialized reports whether a verifier record exists.
func (g *Gate) IsInitialized(ctx context.Context) (bool, error) {
	v, err := g.repo().Get(ctx, keyVerifier)
	if err != nil {
		return false, fmt.Errorf("%w: %w", common.ErrIOFailure, err)
	}
	return v != nil, nil
}

// Initialize creates the verifier for password. It fails with
// common.ErrAlreadyInitialized if one exists.
func (g *Gate) Initialize(ctx context.Context, password []byte) (*MasterVerifier, error) {
	if err := g.params.Validate(); err != nil {
		return nil, err
	}

	ok, err := g.IsInitialized(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, common.ErrAlreadyInitialized
	}

	v := newVerifier(password, g.params, uuid.NewString())
	if err := g.save(ctx, "", v); err != nil {
		return nil, err
	}

	g.log.Info(ctx, "master password initialized", "vault_id", v.VaultID)
	return v, nil
}

// Reset removes the verifier, including any pending one, so Initialize can
// run again. It is meant for undoing an Initialize whose vault file could
// not be created.
func (g *Gate) Reset(ctx context.Context) error {
	err := dbx.WithTx(ctx, g.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).Delete(ctx, append(append([]string{}, verifierKeys...), pendingKeys()...)...)
	})
	if err != nil {
		return fmt.Errorf("%w: reset verifier: %w", common.ErrIOFailure, err)
	}
	g.log.Warn(ctx, "master password verifier removed")
	return nil
}

// Load reads the stored verifier.
func (g *Gate) Load(ctx context.Context) (*MasterVerifier, error) {
	m, err := g.repo().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrIOFailure, err)
	}
	if m[keyVerifier] == nil {
		return nil, common.ErrNotInitialized
	}
	return fromMeta(m, "")
}

// loadPending returns the pending verifier, or nil if there is none.
func (g *Gate) loadPending(ctx context.Context) (*MasterVerifier, error) {
	m, err := g.repo().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrIOFailure, err)
	}
	if m[pendingPrefix+keyVerifier] == nil {
		return nil, nil
	}
	return fromMeta(m, pendingPrefix)
}

func fromMeta(m map[string][]byte, prefix string) (*MasterVerifier, error) {
	v := &MasterVerifier{
		Salt:    m[prefix+keySalt],
		Hash:    m[prefix+keyVerifier],
		VaultID: string(m[prefix+keyVaultID]),
	}
	if err := json.Unmarshal(m[prefix+keyParams], &v.Params); err != nil {
		return nil, fmt.Errorf("%w: kdf params: %v", common.ErrCorruptVerifier, err)
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Unlock loads the verifier and checks password against it.
func (g *Gate) Unlock(ctx context.Context, password []byte) (*MasterVerifier, error) {
	v, err := g.Load(ctx)
	if err != nil {
		return nil, err
	}

	ok, err := Verify(password, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		g.log.Warn(ctx, "unlock rejected", "vault_id", v.VaultID)
		return nil, common.ErrWrongPassword
	}
	return v, nil
}

// OpenFunc opens vault data with the keys of v. It returns
// common.ErrWrongPassword when the data is not sealed under v.
type OpenFunc func(v *MasterVerifier) error

// UnlockWith checks password and opens the vault data through open.
//
// When the active verifier rejects the password, or accepts it but open
// fails with common.ErrWrongPassword, a pending verifier left by an
// interrupted ChangePassword is tried. If it opens the data it is promoted.
// A successful open under the active verifier discards any stale pending one.
func (g *Gate) UnlockWith(ctx context.Context, password []byte, open OpenFunc) (*MasterVerifier, error) {
	v, err := g.Unlock(ctx, password)
	if err == nil {
		if err = open(v); err == nil {
			g.discardPending(ctx)
			return v, nil
		}
	}
	if !errors.Is(err, common.ErrWrongPassword) {
		return nil, err
	}

	p, perr := g.loadPending(ctx)
	if perr != nil || p == nil {
		if perr != nil {
			g.log.Warn(ctx, "pending verifier unreadable", "error", perr)
		}
		return nil, err
	}
	if ok, verr := Verify(password, p); verr != nil || !ok {
		return nil, err
	}
	if oerr := open(p); oerr != nil {
		return nil, oerr
	}

	if perr := g.promote(ctx, p); perr != nil {
		// the data is open under p; the next unlock retries the promotion
		g.log.Error(ctx, "promote pending verifier", "error", perr)
		return p, nil
	}
	g.log.Warn(ctx, "finished interrupted password change", "vault_id", p.VaultID)
	return p, nil
}

// RekeyFunc re-encrypts vault data for password under the keys of v.
type RekeyFunc func(password []byte, v *MasterVerifier) error

// ChangePassword replaces the verifier after checking oldPassword.
//
// The new verifier is stored as pending before rekey is called, and promoted
// after rekey succeeds. If promoting fails, rekey is called again with the
// old password and verifier to roll the data back; if that fails too the
// pending verifier is kept so UnlockWith can recover with the new password.
func (g *Gate) ChangePassword(ctx context.Context, oldPassword, newPassword []byte, rekey RekeyFunc) (*MasterVerifier, error) {
	if err := g.params.Validate(); err != nil {
		return nil, err
	}

	old, err := g.Unlock(ctx, oldPassword)
	if err != nil {
		return nil, err
	}

	next := newVerifier(newPassword, g.params, old.VaultID)
	if err := g.save(ctx, pendingPrefix, next); err != nil {
		return nil, err
	}

	if rekey != nil {
		if err := rekey(newPassword, next); err != nil {
			g.discardPending(ctx)
			return nil, fmt.Errorf("rekey vault: %w", err)
		}
	}

	if err := g.promote(ctx, next); err != nil {
		if rekey != nil {
			if rerr := rekey(oldPassword, old); rerr != nil {
				g.log.Error(ctx, "rollback after failed password change", "error", rerr)
				return nil, errors.Join(err, rerr)
			}
		}
		g.discardPending(ctx)
		return nil, err
	}

	g.log.Info(ctx, "master password changed", "vault_id", next.VaultID)
	return next, nil
}

func verifierValues(prefix string, v *MasterVerifier) (map[string][]byte, error) {
	params, err := json.Marshal(v.Params)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		prefix + keySalt:     v.Salt,
		prefix + keyParams:   params,
		prefix + keyVaultID:  []byte(v.VaultID),
		prefix + keyVerifier: v.Hash,
	}, nil
}

func (g *Gate) save(ctx context.Context, prefix string, v *MasterVerifier) error {
	values, err := verifierValues(prefix, v)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, g.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).Put(ctx, values)
	})
	if err != nil {
		return fmt.Errorf("%w: save verifier: %w", common.ErrIOFailure, err)
	}
	return nil
}

// promote makes v the active verifier and drops the pending rows in one
// transaction.
func (g *Gate) promote(ctx context.Context, v *MasterVerifier) error {
	values, err := verifierValues("", v)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, g.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Put(ctx, values); err != nil {
			return err
		}
		return repo.Delete(ctx, pendingKeys()...)
	})
	if err != nil {
		return fmt.Errorf("%w: save verifier: %w", common.ErrIOFailure, err)
	}
	return nil
}

func (g *Gate) discardPending(ctx context.Context) {
	if err := g.repo().Delete(ctx, pendingKeys()...); err != nil {
		g.log.Warn(ctx, "discard pending verifier", "error", err)
	}
}
