package identity

import (
	"crypto/sha256"
	"fmt"

	"did-vault/go-backend/internal/domains/contracts"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Sign hashes the concatenation of data once and returns a DER signature.
func Sign(privateKey []byte, data ...[]byte) ([]byte, error) {
	if len(privateKey) != PrivateKeyBytes {
		return nil, fmt.Errorf("private key must be %d bytes: %w", PrivateKeyBytes, contracts.ErrInvalidKeyMaterial)
	}
	priv, _ := btcec.PrivKeyFromBytes(privateKey)
	defer priv.Zero()
	return signDigest(priv, data...), nil
}

// Verify never fails loudly: malformed keys or signatures verify as false.
func Verify(publicKey, signature []byte, data ...[]byte) bool {
	pub, err := btcec.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	digest := digestOf(data...)
	return sig.Verify(digest[:], pub)
}

func signDigest(priv *btcec.PrivateKey, data ...[]byte) []byte {
	digest := digestOf(data...)
	return ecdsa.Sign(priv, digest[:]).Serialize()
}

func digestOf(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, chunk := range data {
		h.Write(chunk)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}
