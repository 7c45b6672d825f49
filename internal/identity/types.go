package identity

import (
	"fmt"

	"did-vault/go-backend/internal/domains/contracts"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	SeedBytes        = 64
	ExtendedKeyBytes = 82
	PublicKeyBytes   = 33
	PrivateKeyBytes  = 32
)

var (
	ErrInvalidMnemonic = fmt.Errorf("invalid mnemonic: %w", contracts.ErrInvalidArgument)
	ErrUnknownLanguage = fmt.Errorf("unsupported mnemonic language: %w", contracts.ErrInvalidArgument)
	ErrInvalidIndex    = fmt.Errorf("derivation index out of range: %w", contracts.ErrInvalidArgument)
	ErrWiped           = fmt.Errorf("key material already wiped: %w", contracts.ErrInvalidKeyMaterial)
)

// RootIdentity is the BIP32 master private key every DID key descends from.
type RootIdentity struct {
	key *hdkeychain.ExtendedKey
}

// DerivedKey is one leaf of the hierarchy. The owner must call Wipe.
type DerivedKey struct {
	index   uint32
	priv    *btcec.PrivateKey
	pub     []byte
	address string
}

func (k *DerivedKey) Index() uint32 {
	return k.index
}

// PublicKey returns the 33-byte compressed public key.
func (k *DerivedKey) PublicKey() []byte {
	return append([]byte(nil), k.pub...)
}

// PrivateKey returns a copy of the 32-byte scalar. The caller owns the copy
// and must scrub it.
func (k *DerivedKey) PrivateKey() []byte {
	if k.priv == nil {
		return nil
	}
	return k.priv.Serialize()
}

func (k *DerivedKey) Address() string {
	return k.address
}

func (k *DerivedKey) Sign(data ...[]byte) ([]byte, error) {
	if k.priv == nil {
		return nil, ErrWiped
	}
	return signDigest(k.priv, data...), nil
}

// Wipe zeroes the private scalar. Safe to call more than once or on nil.
func (k *DerivedKey) Wipe() {
	if k == nil || k.priv == nil {
		return
	}
	k.priv.Zero()
	k.priv = nil
}
