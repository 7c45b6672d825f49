package identity

import (
	"bytes"
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address format is fixed by the DID method
)

const (
	scriptPushPubKey   = 0x21
	scriptCheckSig     = 0xAD
	addressVersionByte = 0x67
	checksumBytes      = 4
	addressBytes       = 1 + ripemd160.Size + checksumBytes
)

// Address derives the DID method-specific id from a compressed public key.
func Address(publicKey []byte) string {
	program := programHash(publicKey)
	sum := doubleSHA256(program)
	return base58.Encode(append(program, sum[:checksumBytes]...))
}

func IsAddressValid(address string) bool {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != addressBytes || raw[0] != addressVersionByte {
		return false
	}
	program := raw[:len(raw)-checksumBytes]
	sum := doubleSHA256(program)
	return bytes.Equal(raw[len(raw)-checksumBytes:], sum[:checksumBytes])
}

func programHash(publicKey []byte) []byte {
	script := make([]byte, 0, len(publicKey)+2)
	script = append(script, scriptPushPubKey)
	script = append(script, publicKey...)
	script = append(script, scriptCheckSig)

	sha := sha256.Sum256(script)
	h := ripemd160.New()
	h.Write(sha[:])

	program := make([]byte, 0, addressBytes)
	program = append(program, addressVersionByte)
	return h.Sum(program)
}

func doubleSHA256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}
