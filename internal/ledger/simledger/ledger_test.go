package simledger

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"did-vault/go-backend/internal/didoc"
	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/identity"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/pkg/models"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// keySigner signs with in-memory derived keys keyed by DID.
type keySigner struct {
	keys map[models.DID]*identity.DerivedKey
}

func (s keySigner) Sign(did models.DID, _ models.DIDURL, _ string, data ...[]byte) (string, error) {
	key, ok := s.keys[did]
	if !ok {
		return "", contracts.ErrKeyNotFound
	}
	sig, err := key.Sign(data...)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

func testDocuments(t *testing.T, n int, now time.Time) ([]*models.Document, keySigner) {
	t.Helper()
	root, err := identity.FromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	t.Cleanup(root.Wipe)
	signer := keySigner{keys: make(map[models.DID]*identity.DerivedKey)}
	var docs []*models.Document
	for i := range n {
		key, err := root.Derive(uint32(i))
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		t.Cleanup(key.Wipe)
		doc, err := didoc.Build(key, now)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		signer.keys[doc.Subject] = key
		docs = append(docs, doc)
	}
	return docs, signer
}

func primary(doc *models.Document) models.DIDURL {
	return models.NewDIDURL(doc.Subject, didoc.PrimaryKeyFragment)
}

func TestCreateResolveUpdate(t *testing.T) {
	ctx := context.Background()
	l, err := New(Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	docs, signer := testDocuments(t, 1, time.Now())
	doc := docs[0]

	if got, err := l.Resolve(ctx, doc.Subject, true); got != nil || err != nil {
		t.Fatalf("expected nothing registered, got %v %v", got, err)
	}
	txid, err := l.Create(ctx, contracts.PublishRequest{Document: doc, SignKey: primary(doc), Signer: signer})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.Create(ctx, contracts.PublishRequest{Document: doc, SignKey: primary(doc), Signer: signer}); !errors.Is(err, contracts.ErrLedger) {
		t.Fatalf("expected duplicate create to fail, got %v", err)
	}
	resolved, err := l.Resolve(ctx, doc.Subject, true)
	if err != nil || resolved.TransactionID() != txid || resolved.Meta.Signature != doc.Signature() {
		t.Fatalf("unexpected resolve %+v (%v)", resolved, err)
	}

	if _, err := l.Update(ctx, contracts.PublishRequest{Document: doc, PreviousTxID: "bogus", SignKey: primary(doc), Signer: signer}); !errors.Is(err, contracts.ErrLedger) {
		t.Fatalf("expected previous txid mismatch, got %v", err)
	}
	next, err := l.Update(ctx, contracts.PublishRequest{Document: doc, PreviousTxID: txid, SignKey: primary(doc), Signer: signer})
	if err != nil || next == txid {
		t.Fatalf("update: %q %v", next, err)
	}
	if got := l.Resolved(); len(got) != 2 {
		t.Fatalf("expected two recorded resolves, got %v", got)
	}
}

func TestCreateRejectsTamperedDocument(t *testing.T) {
	l, _ := New(Options{})
	docs, signer := testDocuments(t, 1, time.Now())
	doc := docs[0]
	doc.Expires = doc.Expires.Add(time.Hour)
	if _, err := l.Create(context.Background(), contracts.PublishRequest{Document: doc, SignKey: primary(doc), Signer: signer}); !errors.Is(err, contracts.ErrIntegrity) {
		t.Fatalf("expected integrity failure, got %v", err)
	}
}

func TestCreateRejectsForeignSignature(t *testing.T) {
	l, _ := New(Options{})
	docs, signer := testDocuments(t, 2, time.Now())
	// Sign doc 0 with the key of doc 1.
	signer.keys[docs[0].Subject] = signer.keys[docs[1].Subject]
	_, err := l.Create(context.Background(), contracts.PublishRequest{Document: docs[0], SignKey: primary(docs[0]), Signer: signer})
	if !errors.Is(err, contracts.ErrLedger) {
		t.Fatalf("expected ledger error, got %v", err)
	}
}

func TestResolveReportsExpiredAndDeactivated(t *testing.T) {
	ctx := context.Background()
	l, _ := New(Options{})
	old, _ := testDocuments(t, 1, time.Now().Add(-2*didoc.DefaultValidity))
	if _, err := l.Register(old[0]); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := l.Resolve(ctx, old[0].Subject, true); !errors.Is(err, contracts.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	docs, signer := testDocuments(t, 2, time.Now())
	doc := docs[1]
	if _, err := l.Create(ctx, contracts.PublishRequest{Document: doc, SignKey: primary(doc), Signer: signer}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.Deactivate(ctx, contracts.DeactivateRequest{Document: doc, SignKey: primary(doc), Signer: signer}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := l.Resolve(ctx, doc.Subject, true); !errors.Is(err, contracts.ErrDeactivated) {
		t.Fatalf("expected deactivated, got %v", err)
	}
	if _, err := l.Deactivate(ctx, contracts.DeactivateRequest{Document: doc, SignKey: primary(doc), Signer: signer}); !errors.Is(err, contracts.ErrDeactivated) {
		t.Fatalf("expected second deactivate to fail, got %v", err)
	}
}

func TestFaultIsReportedAsLedgerFailure(t *testing.T) {
	boom := errors.New("unreachable")
	l, _ := New(Options{Fault: func(op string, _ models.DID) error {
		if op == "simledger.resolve" {
			return boom
		}
		return nil
	}})
	_, err := l.Resolve(context.Background(), models.NewDID("iA"), true)
	if !errors.Is(err, contracts.ErrLedger) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped ledger failure, got %v", err)
	}
}

func TestChainPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	file := securestore.FileOptions{
		Path:       filepath.Join(t.TempDir(), "ledger.json"),
		Passphrase: "chain-pass",
		KDF:        securestore.FastKDFParams(),
	}
	l, err := New(Options{File: file})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	docs, signer := testDocuments(t, 1, time.Now())
	txid, err := l.Create(ctx, contracts.PublishRequest{Document: docs[0], SignKey: primary(docs[0]), Signer: signer})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	reopened, err := New(Options{File: file})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	resolved, err := reopened.Resolve(ctx, docs[0].Subject, true)
	if err != nil || resolved == nil || resolved.TransactionID() != txid {
		t.Fatalf("chain not persisted: %+v (%v)", resolved, err)
	}
	if _, err := New(Options{File: securestore.FileOptions{Path: file.Path, Passphrase: "wrong", KDF: file.KDF}}); !errors.Is(err, contracts.ErrLedger) {
		t.Fatalf("expected ledger failure with wrong passphrase, got %v", err)
	}
}
