package identity

import (
	"fmt"

	"did-vault/go-backend/internal/domains/contracts"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/mr-tron/base58"
)

// Every DID key lives under m/44'/0'/0'/0/<index>.
var accountPath = []uint32{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 0,
	hdkeychain.HardenedKeyStart + 0,
	0,
}

var netParams = &chaincfg.MainNetParams

func FromSeed(seed []byte) (*RootIdentity, error) {
	if len(seed) != SeedBytes {
		return nil, fmt.Errorf("seed must be %d bytes: %w", SeedBytes, contracts.ErrInvalidKeyMaterial)
	}
	key, err := hdkeychain.NewMaster(seed, netParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInvalidKeyMaterial, err)
	}
	return &RootIdentity{key: key}, nil
}

// ParseExtendedKey accepts the base58 xprv form.
func ParseExtendedKey(encoded string) (*RootIdentity, error) {
	key, err := hdkeychain.NewKeyFromString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInvalidKeyMaterial, err)
	}
	if !key.IsPrivate() {
		return nil, fmt.Errorf("extended key is public: %w", contracts.ErrInvalidKeyMaterial)
	}
	return &RootIdentity{key: key}, nil
}

// Deserialize accepts either a raw seed or a serialized extended private key
// including its checksum.
func Deserialize(data []byte) (*RootIdentity, error) {
	switch len(data) {
	case SeedBytes:
		return FromSeed(data)
	case ExtendedKeyBytes:
		return ParseExtendedKey(base58.Encode(data))
	default:
		return nil, fmt.Errorf("root identity of %d bytes: %w", len(data), contracts.ErrInvalidKeyMaterial)
	}
}

// Serialize returns the 82-byte extended private key. The caller must scrub it.
func (r *RootIdentity) Serialize() ([]byte, error) {
	if r == nil || r.key == nil {
		return nil, ErrWiped
	}
	return base58.Decode(r.key.String())
}

func (r *RootIdentity) Derive(index uint32) (*DerivedKey, error) {
	if r == nil || r.key == nil {
		return nil, ErrWiped
	}
	if index >= hdkeychain.HardenedKeyStart {
		return nil, ErrInvalidIndex
	}
	path := append(append([]uint32(nil), accountPath...), index)
	current := r.key
	for _, step := range path {
		next, err := current.Derive(step)
		if current != r.key {
			current.Zero()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: derive step: %v", contracts.ErrInvalidKeyMaterial, err)
		}
		current = next
	}
	defer current.Zero()

	priv, err := current.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInvalidKeyMaterial, err)
	}
	return newDerivedKey(index, priv), nil
}

// Wipe zeroes the master key. Safe to call more than once or on nil.
func (r *RootIdentity) Wipe() {
	if r == nil || r.key == nil {
		return
	}
	r.key.Zero()
	r.key = nil
}

// KeyFromPrivate rebuilds a key pair from a stored 32-byte scalar.
func KeyFromPrivate(privateKey []byte) (*DerivedKey, error) {
	if len(privateKey) != PrivateKeyBytes {
		return nil, fmt.Errorf("private key must be %d bytes: %w", PrivateKeyBytes, contracts.ErrInvalidKeyMaterial)
	}
	priv, _ := btcec.PrivKeyFromBytes(privateKey)
	return newDerivedKey(0, priv), nil
}

func newDerivedKey(index uint32, priv *btcec.PrivateKey) *DerivedKey {
	pub := priv.PubKey().SerializeCompressed()
	return &DerivedKey{
		index:   index,
		priv:    priv,
		pub:     pub,
		address: Address(pub),
	}
}
