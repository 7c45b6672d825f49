package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/internal/testutil/fsperm"
	"did-vault/go-backend/pkg/models"
)

type storeFactory struct {
	name string
	open func(t *testing.T) contracts.Storage
}

func factories() []storeFactory {
	return []storeFactory{
		{name: "memory", open: func(t *testing.T) contracts.Storage {
			return NewMemoryStore()
		}},
		{name: "snapshot", open: func(t *testing.T) contracts.Storage {
			s, err := NewSnapshotStore(securestore.FileOptions{
				Path:       filepath.Join(t.TempDir(), "vault", "store.json"),
				Passphrase: "file-pass",
				KDF:        securestore.FastKDFParams(),
			})
			if err != nil {
				t.Fatalf("open snapshot store: %v", err)
			}
			return s
		}},
		{name: "badger", open: func(t *testing.T) contracts.Storage {
			s, err := OpenBadgerStore(BadgerOptions{InMemory: true})
			if err != nil {
				t.Fatalf("open badger store: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s contracts.Storage)) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			fn(t, f.open(t))
		})
	}
}

func testDID(id string) models.DID {
	return models.NewDID(id)
}

func testDocument(did models.DID) *models.Document {
	key := models.NewDIDURL(did, "primary")
	return &models.Document{
		Subject: did,
		PublicKeys: []models.PublicKey{{
			ID:              key,
			Type:            models.PublicKeyType,
			Controller:      did,
			PublicKeyBase58: "pk-" + did.MethodSpecificID,
		}},
		Authentication: []models.DIDURL{key},
		Expires:        time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Proof: &models.Proof{
			Type:           models.ProofType,
			Created:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Creator:        key,
			SignatureValue: "sig-" + did.MethodSpecificID,
		},
	}
}

func testCredential(did models.DID, fragment string) *models.Credential {
	return &models.Credential{
		ID:           models.NewDIDURL(did, fragment),
		Types:        []string{"BasicProfileCredential"},
		Issuer:       did,
		IssuanceDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Subject: models.CredentialSubject{
			ID:     did,
			Claims: map[string]string{"name": fragment},
		},
	}
}

func TestRootMaterialAndCursor(t *testing.T) {
	forEachStore(t, func(t *testing.T, s contracts.Storage) {
		if ok, err := s.ContainsRootIdentity(); err != nil || ok {
			t.Fatalf("fresh store: contains=%v err=%v", ok, err)
		}
		if _, err := s.LoadRootIdentity(); !errors.Is(err, contracts.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := s.LoadMnemonic(); !errors.Is(err, contracts.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for mnemonic, got %v", err)
		}
		if cursor, err := s.LoadCursor(); err != nil || cursor != 0 {
			t.Fatalf("fresh cursor: %d, %v", cursor, err)
		}
		if err := s.StoreRootIdentity("enc-root"); err != nil {
			t.Fatalf("store root: %v", err)
		}
		if err := s.StoreMnemonic("enc-words"); err != nil {
			t.Fatalf("store mnemonic: %v", err)
		}
		if err := s.StoreCursor(42); err != nil {
			t.Fatalf("store cursor: %v", err)
		}
		root, _ := s.LoadRootIdentity()
		words, _ := s.LoadMnemonic()
		cursor, _ := s.LoadCursor()
		if root != "enc-root" || words != "enc-words" || cursor != 42 {
			t.Fatalf("unexpected root material: %q %q %d", root, words, cursor)
		}
		if ok, _ := s.ContainsRootIdentity(); !ok {
			t.Fatal("root identity should be present")
		}
	})
}

func TestDocumentLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s contracts.Storage) {
		did := testDID("iAlice")
		doc := testDocument(did)
		if _, err := s.LoadDocument(did); !errors.Is(err, contracts.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.StoreDocument(doc); err != nil {
			t.Fatalf("store document: %v", err)
		}
		meta := models.Metadata{Alias: "alice", Extra: map[string]string{"k": "v"}}
		if err := s.StoreDocumentMeta(did, meta); err != nil {
			t.Fatalf("store meta: %v", err)
		}
		got, err := s.LoadDocument(did)
		if err != nil {
			t.Fatalf("load document: %v", err)
		}
		want, _ := doc.CanonicalJSON()
		have, _ := got.CanonicalJSON()
		if string(want) != string(have) {
			t.Fatalf("document mismatch:\nwant %s\nhave %s", want, have)
		}
		if got.Meta.Alias != "alice" || got.Meta.Extra["k"] != "v" {
			t.Fatalf("metadata not attached: %+v", got.Meta)
		}
		if ok, _ := s.ContainsDocument(did); !ok {
			t.Fatal("document should exist")
		}
	})
}

func TestDeleteDIDRemovesEverything(t *testing.T) {
	forEachStore(t, func(t *testing.T, s contracts.Storage) {
		did := testDID("iBob")
		other := testDID("iCarol")
		for _, d := range []models.DID{did, other} {
			if err := s.StoreDocument(testDocument(d)); err != nil {
				t.Fatalf("store document: %v", err)
			}
			if err := s.StoreCredential(testCredential(d, "profile")); err != nil {
				t.Fatalf("store credential: %v", err)
			}
			if err := s.StorePrivateKey(d, models.NewDIDURL(d, "primary"), "enc-key"); err != nil {
				t.Fatalf("store key: %v", err)
			}
		}
		deleted, err := s.DeleteDID(did)
		if err != nil || !deleted {
			t.Fatalf("delete: deleted=%v err=%v", deleted, err)
		}
		if ok, _ := s.ContainsDocument(did); ok {
			t.Fatal("document survived delete")
		}
		if ok, _ := s.ContainsCredentials(did); ok {
			t.Fatal("credentials survived delete")
		}
		if ok, _ := s.ContainsPrivateKeys(did); ok {
			t.Fatal("private keys survived delete")
		}
		if ok, _ := s.ContainsPrivateKeys(other); !ok {
			t.Fatal("delete leaked into another DID")
		}
		deleted, err = s.DeleteDID(did)
		if err != nil || deleted {
			t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
		}
	})
}

func TestListDIDsFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, s contracts.Storage) {
		withKey := testDID("iWithKey")
		withoutKey := testDID("iNoKey")
		for _, d := range []models.DID{withoutKey, withKey} {
			if err := s.StoreDocument(testDocument(d)); err != nil {
				t.Fatalf("store document: %v", err)
			}
		}
		if err := s.StorePrivateKey(withKey, models.NewDIDURL(withKey, "primary"), "enc"); err != nil {
			t.Fatalf("store key: %v", err)
		}
		all, _ := s.ListDIDs(contracts.DIDsAll)
		if len(all) != 2 || all[0] != withoutKey || all[1] != withKey {
			t.Fatalf("unexpected all listing: %v", all)
		}
		has, _ := s.ListDIDs(contracts.DIDsWithPrivateKey)
		if len(has) != 1 || has[0] != withKey {
			t.Fatalf("unexpected with-key listing: %v", has)
		}
		none, _ := s.ListDIDs(contracts.DIDsWithoutPrivateKey)
		if len(none) != 1 || none[0] != withoutKey {
			t.Fatalf("unexpected without-key listing: %v", none)
		}
	})
}

func TestCredentialsAndPrivateKeys(t *testing.T) {
	forEachStore(t, func(t *testing.T, s contracts.Storage) {
		did := testDID("iDave")
		for _, frag := range []string{"b", "a"} {
			cred := testCredential(did, frag)
			if err := s.StoreCredential(cred); err != nil {
				t.Fatalf("store credential: %v", err)
			}
			if err := s.StoreCredentialMeta(did, cred.ID, models.Metadata{Alias: "cred-" + frag}); err != nil {
				t.Fatalf("store credential meta: %v", err)
			}
		}
		ids, err := s.ListCredentials(did)
		if err != nil || len(ids) != 2 || ids[0].Fragment != "a" || ids[1].Fragment != "b" {
			t.Fatalf("unexpected credential listing: %v, %v", ids, err)
		}
		got, err := s.LoadCredential(did, models.NewDIDURL(did, "a"))
		if err != nil {
			t.Fatalf("load credential: %v", err)
		}
		if got.Subject.Claims["name"] != "a" || got.Meta.Alias != "cred-a" {
			t.Fatalf("unexpected credential: %+v", got)
		}
		deleted, err := s.DeleteCredential(did, models.NewDIDURL(did, "a"))
		if err != nil || !deleted {
			t.Fatalf("delete credential: %v %v", deleted, err)
		}
		if _, err := s.LoadCredential(did, models.NewDIDURL(did, "a")); !errors.Is(err, contracts.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}

		key := models.NewDIDURL(did, "primary")
		if _, err := s.LoadPrivateKey(did, key); !errors.Is(err, contracts.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for key, got %v", err)
		}
		if err := s.StorePrivateKey(did, key, "enc-key"); err != nil {
			t.Fatalf("store key: %v", err)
		}
		if v, _ := s.LoadPrivateKey(did, key); v != "enc-key" {
			t.Fatalf("unexpected key blob %q", v)
		}
		keys, _ := s.ListPrivateKeys(did)
		if len(keys) != 1 || keys[0] != key {
			t.Fatalf("unexpected key listing: %v", keys)
		}
		if deleted, _ := s.DeletePrivateKey(did, key); !deleted {
			t.Fatal("expected key delete")
		}
		if ok, _ := s.ContainsPrivateKeys(did); ok {
			t.Fatal("key survived delete")
		}
	})
}

func TestReEncryptIsAllOrNothing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s contracts.Storage) {
		did := testDID("iErin")
		_ = s.StoreRootIdentity("root")
		_ = s.StoreMnemonic("words")
		_ = s.StorePrivateKey(did, models.NewDIDURL(did, "k1"), "key1")
		_ = s.StorePrivateKey(did, models.NewDIDURL(did, "k2"), "key2")

		boom := errors.New("boom")
		calls := 0
		err := s.ReEncrypt(func(v string) (string, error) {
			calls++
			if calls == 3 {
				return "", boom
			}
			return "new-" + v, nil
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected callback error, got %v", err)
		}
		root, _ := s.LoadRootIdentity()
		words, _ := s.LoadMnemonic()
		k1, _ := s.LoadPrivateKey(did, models.NewDIDURL(did, "k1"))
		k2, _ := s.LoadPrivateKey(did, models.NewDIDURL(did, "k2"))
		for _, v := range []string{root, words, k1, k2} {
			if strings.HasPrefix(v, "new-") {
				t.Fatalf("partial re-encryption committed: %q", v)
			}
		}

		if err := s.ReEncrypt(func(v string) (string, error) { return "new-" + v, nil }); err != nil {
			t.Fatalf("re-encrypt: %v", err)
		}
		root, _ = s.LoadRootIdentity()
		k2, _ = s.LoadPrivateKey(did, models.NewDIDURL(did, "k2"))
		if root != "new-root" || k2 != "new-key2" {
			t.Fatalf("re-encryption not applied: %q %q", root, k2)
		}
	})
}

func TestSnapshotStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vault")
	opts := securestore.FileOptions{
		Path:       filepath.Join(dir, "store.json"),
		Passphrase: "file-pass",
		KDF:        securestore.FastKDFParams(),
	}
	s, err := NewSnapshotStore(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	did := testDID("iFrank")
	if err := s.StoreDocument(testDocument(did)); err != nil {
		t.Fatalf("store document: %v", err)
	}
	if err := s.StoreCursor(7); err != nil {
		t.Fatalf("store cursor: %v", err)
	}
	fsperm.AssertPrivateDirPerm(t, dir)

	reopened, err := NewSnapshotStore(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if ok, _ := reopened.ContainsDocument(did); !ok {
		t.Fatal("document lost across reopen")
	}
	if cursor, _ := reopened.LoadCursor(); cursor != 7 {
		t.Fatalf("cursor lost across reopen: %d", cursor)
	}

	opts.Passphrase = "wrong"
	if _, err := NewSnapshotStore(opts); !errors.Is(err, contracts.ErrStorage) {
		t.Fatalf("expected storage error for wrong file passphrase, got %v", err)
	}
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBadgerStore(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	did := testDID("iGrace")
	if err := s.StoreDocument(testDocument(did)); err != nil {
		t.Fatalf("store document: %v", err)
	}
	if err := s.StoreCursor(3); err != nil {
		t.Fatalf("store cursor: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := OpenBadgerStore(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if ok, _ := reopened.ContainsDocument(did); !ok {
		t.Fatal("document lost across reopen")
	}
	if cursor, _ := reopened.LoadCursor(); cursor != 3 {
		t.Fatalf("cursor lost across reopen: %d", cursor)
	}
}
