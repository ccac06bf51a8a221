package gate

import (
	"crypto/subtle"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/google/uuid"
)

// MasterVerifier is the stored proof of the master password.
type MasterVerifier struct {
	Salt    []byte
	Hash    []byte
	Params  cryptox.KDFParams
	VaultID string
}

func newVerifier(password []byte, params cryptox.KDFParams, vaultID string) *MasterVerifier {
	salt := cryptox.NewSalt()
	key := cryptox.DeriveMasterKey(password, salt, params)
	defer common.WipeByteArray(key)

	return &MasterVerifier{
		Salt:    salt,
		Hash:    cryptox.MakeVerifier(key),
		Params:  params,
		VaultID: vaultID,
	}
}

func (v *MasterVerifier) validate() error {
	if v == nil {
		return fmt.Errorf("%w: missing", common.ErrCorruptVerifier)
	}
	if len(v.Salt) != cryptox.SaltSize {
		return fmt.Errorf("%w: salt length %d", common.ErrCorruptVerifier, len(v.Salt))
	}
	if len(v.Hash) != 32 {
		return fmt.Errorf("%w: hash length %d", common.ErrCorruptVerifier, len(v.Hash))
	}
	if err := v.Params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCorruptVerifier, err)
	}
	if _, err := uuid.Parse(v.VaultID); err != nil {
		return fmt.Errorf("%w: vault id", common.ErrCorruptVerifier)
	}
	return nil
}

// Verify recomputes the hash of password with the stored salt and compares
// it in constant time. A wrong password is (false, nil); only a malformed
// verifier is an error.
func Verify(password []byte, v *MasterVerifier) (bool, error) {
	if err := v.validate(); err != nil {
		return false, err
	}

	key := cryptox.DeriveMasterKey(password, v.Salt, v.Params)
	defer common.WipeByteArray(key)

	return subtle.ConstantTimeCompare(cryptox.MakeVerifier(key), v.Hash) == 1, nil
}

// DeriveKey derives the vault encryption key for salt with the verifier's
// KDF parameters. The caller owns (and should wipe) the result.
func (v *MasterVerifier) DeriveKey(password, salt []byte) ([]byte, error) {
	if err := v.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptVerifier, err)
	}
	if len(salt) != cryptox.SaltSize {
		return nil, fmt.Errorf("%w: salt length %d", common.ErrCorruptFile, len(salt))
	}
	return cryptox.DeriveMasterKey(password, salt, v.Params), nil
}

// ID is the vault id this verifier is bound to.
func (v *MasterVerifier) ID() string {
	return v.VaultID
}
