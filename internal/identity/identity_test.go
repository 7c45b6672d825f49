package identity

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"did-vault/go-backend/internal/domains/contracts"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestRoot(t *testing.T) *RootIdentity {
	t.Helper()
	root, err := FromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("root from mnemonic failed: %v", err)
	}
	t.Cleanup(root.Wipe)
	return root
}

func TestDeriveDeterministic(t *testing.T) {
	root := newTestRoot(t)
	for _, index := range []uint32{0, 1, 7, 1000} {
		k1, err := root.Derive(index)
		if err != nil {
			t.Fatalf("derive %d failed: %v", index, err)
		}
		k2, err := root.Derive(index)
		if err != nil {
			t.Fatalf("derive %d again failed: %v", index, err)
		}
		if !bytes.Equal(k1.PublicKey(), k2.PublicKey()) {
			t.Fatalf("public key at %d is not deterministic", index)
		}
		if !bytes.Equal(k1.PrivateKey(), k2.PrivateKey()) {
			t.Fatalf("private key at %d is not deterministic", index)
		}
		if k1.Address() != k2.Address() {
			t.Fatalf("address at %d is not deterministic", index)
		}
		if len(k1.PublicKey()) != PublicKeyBytes {
			t.Fatalf("expected compressed public key, got %d bytes", len(k1.PublicKey()))
		}
		k1.Wipe()
		k2.Wipe()
	}
}

func TestDeriveDistinctIndexes(t *testing.T) {
	root := newTestRoot(t)
	seen := make(map[string]uint32)
	for i := uint32(0); i < 10; i++ {
		key, err := root.Derive(i)
		if err != nil {
			t.Fatalf("derive %d failed: %v", i, err)
		}
		if prev, dup := seen[key.Address()]; dup {
			t.Fatalf("index %d and %d share an address", prev, i)
		}
		seen[key.Address()] = i
		key.Wipe()
	}
}

func TestDeriveRejectsHardenedIndex(t *testing.T) {
	root := newTestRoot(t)
	if _, err := root.Derive(1 << 31); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestSerializeRoundtripKeepsDerivation(t *testing.T) {
	root := newTestRoot(t)
	raw, err := root.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	if len(raw) != ExtendedKeyBytes {
		t.Fatalf("expected %d bytes, got %d", ExtendedKeyBytes, len(raw))
	}
	restored, err := Deserialize(raw)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	defer restored.Wipe()

	a, _ := root.Derive(3)
	b, _ := restored.Derive(3)
	if a.Address() != b.Address() {
		t.Fatalf("restored root derives a different address")
	}
}

func TestDeserializeSeedDiffersFromMnemonicRoot(t *testing.T) {
	root := newTestRoot(t)
	seed := make([]byte, SeedBytes)
	copy(seed, "seed-material")
	fromSeed, err := Deserialize(seed)
	if err != nil {
		t.Fatalf("deserialize seed failed: %v", err)
	}
	defer fromSeed.Wipe()
	a, _ := root.Derive(0)
	b, _ := fromSeed.Derive(0)
	if a.Address() == b.Address() {
		t.Fatal("different seeds must not collide")
	}
}

func TestDeserializeRejectsUnknownLength(t *testing.T) {
	for _, n := range []int{0, 32, 63, 65, 78, 81, 83} {
		_, err := Deserialize(make([]byte, n))
		if !errors.Is(err, contracts.ErrInvalidKeyMaterial) {
			t.Fatalf("length %d: expected ErrInvalidKeyMaterial, got %v", n, err)
		}
	}
}

func TestDeserializeRejectsCorruptChecksum(t *testing.T) {
	root := newTestRoot(t)
	raw, _ := root.Serialize()
	raw[len(raw)-1] ^= 0x01
	if _, err := Deserialize(raw); !errors.Is(err, contracts.ErrInvalidKeyMaterial) {
		t.Fatalf("expected ErrInvalidKeyMaterial, got %v", err)
	}
}

func TestWipeIsIdempotent(t *testing.T) {
	root, err := FromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("root failed: %v", err)
	}
	key, _ := root.Derive(0)
	key.Wipe()
	key.Wipe()
	if key.PrivateKey() != nil {
		t.Fatal("wiped key still exposes private material")
	}
	if _, err := key.Sign([]byte("x")); !errors.Is(err, ErrWiped) {
		t.Fatalf("expected ErrWiped, got %v", err)
	}
	root.Wipe()
	root.Wipe()
	if _, err := root.Derive(0); !errors.Is(err, ErrWiped) {
		t.Fatalf("expected ErrWiped after root wipe, got %v", err)
	}
	var nilKey *DerivedKey
	nilKey.Wipe()
}

func TestAddressRoundtripAndMutation(t *testing.T) {
	root := newTestRoot(t)
	key, _ := root.Derive(0)
	defer key.Wipe()
	addr := Address(key.PublicKey())
	if addr != key.Address() {
		t.Fatal("Address must match the derived key's address")
	}
	if !IsAddressValid(addr) {
		t.Fatalf("derived address %q reported invalid", addr)
	}
	if !strings.HasPrefix(addr, "i") {
		t.Fatalf("expected address to start with 'i', got %q", addr)
	}

	const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	for i := range addr {
		replacement := alphabet[0]
		if addr[i] == replacement {
			replacement = alphabet[1]
		}
		mutated := addr[:i] + string(replacement) + addr[i+1:]
		if IsAddressValid(mutated) {
			t.Fatalf("mutation at %d still valid: %q", i, mutated)
		}
	}
	if IsAddressValid("0OIl") || IsAddressValid("") {
		t.Fatal("garbage must not validate")
	}
}

func TestSignVerify(t *testing.T) {
	root := newTestRoot(t)
	key, _ := root.Derive(1)
	defer key.Wipe()

	payloads := [][][]byte{
		{[]byte("hello")},
		{[]byte("hel"), []byte("lo")},
		{{}, []byte("data"), {}},
		{},
	}
	for i, data := range payloads {
		sig, err := key.Sign(data...)
		if err != nil {
			t.Fatalf("payload %d: sign failed: %v", i, err)
		}
		if !Verify(key.PublicKey(), sig, data...) {
			t.Fatalf("payload %d: signature did not verify", i)
		}
	}

	priv := key.PrivateKey()
	sig, err := Sign(priv, []byte("a"), []byte("b"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !Verify(key.PublicKey(), sig, []byte("ab")) {
		t.Fatal("signature over split input must verify over concatenation")
	}
	if Verify(key.PublicKey(), sig, []byte("ba")) {
		t.Fatal("signature verified over different data")
	}

	corrupted := append([]byte(nil), sig...)
	corrupted[0] ^= 0xFF
	if Verify(key.PublicKey(), corrupted, []byte("ab")) {
		t.Fatal("corrupted DER must not verify")
	}
	if Verify(key.PublicKey(), nil, []byte("ab")) {
		t.Fatal("empty signature must not verify")
	}
	if Verify([]byte{0x01}, sig, []byte("ab")) {
		t.Fatal("malformed public key must not verify")
	}
}

func TestKeyFromPrivateMatchesDerived(t *testing.T) {
	root := newTestRoot(t)
	key, _ := root.Derive(5)
	defer key.Wipe()
	priv := key.PrivateKey()
	rebuilt, err := KeyFromPrivate(priv)
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	defer rebuilt.Wipe()
	if rebuilt.Address() != key.Address() {
		t.Fatal("rebuilt key has different address")
	}
	if _, err := KeyFromPrivate(priv[:10]); !errors.Is(err, contracts.ErrInvalidKeyMaterial) {
		t.Fatalf("expected ErrInvalidKeyMaterial, got %v", err)
	}
}
