// Package simledger is an in-process DID registry with the same contract as
// the public ledger. It verifies document proofs and transaction signatures,
// tracks transaction ids and can persist its chain to a snapshot file.
package simledger

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"did-vault/go-backend/internal/didoc"
	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/identity"
	"did-vault/go-backend/internal/platform/ratelimiter"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/pkg/models"
)

const (
	opResolve = "resolve"
	opPublish = "publish"
)

type Options struct {
	// File persists the chain; an empty Path keeps it in memory.
	File    securestore.FileOptions
	Limiter *ratelimiter.MapLimiter
	Logger  *slog.Logger
	Now     func() time.Time
	// Fault, when set, runs before every operation; a non-nil result is
	// reported as a ledger failure.
	Fault func(op string, did models.DID) error
}

type record struct {
	Document    json.RawMessage `json:"document"`
	TxID        string          `json:"txid"`
	Deactivated bool            `json:"deactivated,omitempty"`
	History     []string        `json:"history,omitempty"`
}

type chain struct {
	Seq     uint64             `json:"seq"`
	Records map[string]*record `json:"records"`
}

func (c *chain) clone() *chain {
	out := &chain{Seq: c.Seq, Records: maps.Clone(c.Records)}
	if out.Records == nil {
		out.Records = make(map[string]*record)
	}
	return out
}

type Ledger struct {
	mu       sync.Mutex
	state    *chain
	resolved []models.DID

	file    securestore.FileOptions
	limiter *ratelimiter.MapLimiter
	logger  *slog.Logger
	now     func() time.Time
	fault   func(op string, did models.DID) error
}

var _ contracts.Ledger = (*Ledger)(nil)

func New(opts Options) (*Ledger, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	l := &Ledger{
		state:   &chain{Records: make(map[string]*record)},
		file:    opts.File.Normalize(),
		limiter: opts.Limiter,
		logger:  logger.With("component", "simledger"),
		now:     now,
		fault:   opts.Fault,
	}
	if l.file.Path != "" {
		loaded := &chain{}
		found, err := securestore.ReadJSON(l.file, loaded)
		if err != nil {
			return nil, contracts.LedgerFailure("simledger.open", "", err)
		}
		if found {
			l.state = loaded.clone()
		}
	}
	return l, nil
}

func (l *Ledger) check(ctx context.Context, op, kind string, did models.DID) error {
	if err := l.limiter.Wait(ctx, kind); err != nil {
		return contracts.LedgerFailure(op, did.String(), err)
	}
	if l.fault != nil {
		if err := l.fault(op, did); err != nil {
			return contracts.LedgerFailure(op, did.String(), err)
		}
	}
	return nil
}

// Resolve returns the registered document with its txid and signature in
// Meta, nil when nothing is registered, or an error matching
// contracts.ErrDeactivated or contracts.ErrExpired.
func (l *Ledger) Resolve(ctx context.Context, did models.DID, force bool) (*models.Document, error) {
	const op = "simledger.resolve"
	if err := l.check(ctx, op, opResolve, did); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolved = append(l.resolved, did)

	rec, ok := l.state.Records[did.String()]
	if !ok {
		return nil, nil
	}
	if rec.Deactivated {
		return nil, contracts.NewError(op, did.String(), contracts.ErrDeactivated, nil)
	}
	doc, err := decode(rec.Document)
	if err != nil {
		return nil, contracts.LedgerFailure(op, did.String(), err)
	}
	if doc.IsExpired(l.now()) {
		return nil, contracts.NewError(op, did.String(), contracts.ErrExpired, nil)
	}
	doc.Meta = models.Metadata{TransactionID: rec.TxID, Signature: doc.Signature()}
	return doc, nil
}

// Resolved lists every DID passed to Resolve, in call order.
func (l *Ledger) Resolved() []models.DID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.DID(nil), l.resolved...)
}

func (l *Ledger) ResetResolved() {
	l.mu.Lock()
	l.resolved = nil
	l.mu.Unlock()
}

func (l *Ledger) Create(ctx context.Context, req contracts.PublishRequest) (string, error) {
	const op = "simledger.create"
	doc, err := publishable(op, req.Document, req.Signer)
	if err != nil {
		return "", err
	}
	if err := l.check(ctx, op, opPublish, doc.Subject); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.state.Records[doc.Subject.String()]; exists {
		return "", contracts.Errorf(op, doc.Subject.String(), contracts.ErrLedger, "did already registered")
	}
	payload, err := transactionPayload("create", doc, "")
	if err != nil {
		return "", err
	}
	if err := verifyTransaction(op, req.Signer, doc, doc, req.SignKey, req.StorePassword, payload); err != nil {
		return "", err
	}
	return l.commit(op, doc, payload, nil)
}

func (l *Ledger) Update(ctx context.Context, req contracts.PublishRequest) (string, error) {
	const op = "simledger.update"
	doc, err := publishable(op, req.Document, req.Signer)
	if err != nil {
		return "", err
	}
	if err := l.check(ctx, op, opPublish, doc.Subject); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, current, err := l.active(op, doc.Subject)
	if err != nil {
		return "", err
	}
	if req.PreviousTxID != rec.TxID {
		return "", contracts.Errorf(op, doc.Subject.String(), contracts.ErrLedger, "previous transaction id does not match")
	}
	payload, err := transactionPayload("update", doc, rec.TxID)
	if err != nil {
		return "", err
	}
	// The update must be signed by a key the registered copy already trusts.
	if err := verifyTransaction(op, req.Signer, doc, current, req.SignKey, req.StorePassword, payload); err != nil {
		return "", err
	}
	return l.commit(op, doc, payload, rec)
}

func (l *Ledger) Deactivate(ctx context.Context, req contracts.DeactivateRequest) (string, error) {
	const op = "simledger.deactivate"
	if req.Document == nil || req.Signer == nil {
		return "", contracts.Errorf(op, "", contracts.ErrInvalidArgument, "document and signer are required")
	}
	did := req.Document.Subject
	if err := l.check(ctx, op, opPublish, did); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, current, err := l.active(op, did)
	if err != nil {
		return "", err
	}
	payload, err := transactionPayload("deactivate", current, rec.TxID)
	if err != nil {
		return "", err
	}
	if err := verifyTransaction(op, req.Signer, current, current, req.SignKey, req.StorePassword, payload); err != nil {
		return "", err
	}
	return l.deactivate(op, did, rec, payload)
}

func (l *Ledger) DeactivateTarget(ctx context.Context, req contracts.DeactivateTargetRequest) (string, error) {
	const op = "simledger.deactivateTarget"
	if req.Document == nil || req.Signer == nil || req.Target.IsZero() {
		return "", contracts.Errorf(op, "", contracts.ErrInvalidArgument, "target, controller document and signer are required")
	}
	if err := l.check(ctx, op, opPublish, req.Target); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, target, err := l.active(op, req.Target)
	if err != nil {
		return "", err
	}
	signer, ok := req.Document.PublicKey(req.SignKey)
	if !ok {
		return "", contracts.Errorf(op, req.SignKey.String(), contracts.ErrKeyNotFound, "sign key not in controller document")
	}
	granted := false
	for _, pk := range target.AuthorizationKeys() {
		if pk.Controller == req.Document.Subject && pk.PublicKeyBase58 == signer.PublicKeyBase58 {
			granted = true
			break
		}
	}
	if !granted {
		return "", contracts.Errorf(op, req.Target.String(), contracts.ErrLedger, "controller holds no authorization key")
	}
	payload, err := transactionPayload("deactivate", target, rec.TxID)
	if err != nil {
		return "", err
	}
	if err := verifyTransaction(op, req.Signer, req.Document, req.Document, req.SignKey, req.StorePassword, payload); err != nil {
		return "", err
	}
	return l.deactivate(op, req.Target, rec, payload)
}

// Register records doc without a transaction signature. Its proof is still
// verified. It exists to seed fixtures.
func (l *Ledger) Register(doc *models.Document) (string, error) {
	const op = "simledger.register"
	if err := didoc.Verify(doc); err != nil {
		return "", err
	}
	payload, err := transactionPayload("register", doc, "")
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commit(op, doc, payload, l.state.Records[doc.Subject.String()])
}

// active returns the live record of did and its decoded document.
func (l *Ledger) active(op string, did models.DID) (*record, *models.Document, error) {
	rec, ok := l.state.Records[did.String()]
	if !ok {
		return nil, nil, contracts.Errorf(op, did.String(), contracts.ErrLedger, "did not registered")
	}
	if rec.Deactivated {
		return nil, nil, contracts.NewError(op, did.String(), contracts.ErrDeactivated, nil)
	}
	doc, err := decode(rec.Document)
	if err != nil {
		return nil, nil, contracts.LedgerFailure(op, did.String(), err)
	}
	return rec, doc, nil
}

func (l *Ledger) commit(op string, doc *models.Document, payload []byte, prev *record) (string, error) {
	raw, err := doc.CanonicalJSON()
	if err != nil {
		return "", contracts.LedgerFailure(op, doc.Subject.String(), err)
	}
	next := l.state.clone()
	next.Seq++
	txid := transactionID(next.Seq, payload)
	rec := &record{Document: raw, TxID: txid}
	if prev != nil {
		rec.History = append(append([]string(nil), prev.History...), prev.TxID)
	}
	next.Records[doc.Subject.String()] = rec
	if err := l.swap(op, next); err != nil {
		return "", err
	}
	l.logger.Debug("transaction committed", "operation", op, "did", doc.Subject.String(), "seq", next.Seq)
	return txid, nil
}

func (l *Ledger) deactivate(op string, did models.DID, prev *record, payload []byte) (string, error) {
	next := l.state.clone()
	next.Seq++
	txid := transactionID(next.Seq, payload)
	rec := *prev
	rec.History = append(append([]string(nil), prev.History...), prev.TxID)
	rec.TxID = txid
	rec.Deactivated = true
	next.Records[did.String()] = &rec
	if err := l.swap(op, next); err != nil {
		return "", err
	}
	l.logger.Debug("did deactivated", "operation", op, "did", did.String(), "seq", next.Seq)
	return txid, nil
}

// swap persists next before making it visible.
func (l *Ledger) swap(op string, next *chain) error {
	if l.file.Path != "" {
		if err := securestore.WriteJSON(l.file, next); err != nil {
			return contracts.LedgerFailure(op, "", err)
		}
	}
	l.state = next
	return nil
}

func publishable(op string, doc *models.Document, signer contracts.Signer) (*models.Document, error) {
	if doc == nil || signer == nil {
		return nil, contracts.Errorf(op, "", contracts.ErrInvalidArgument, "document and signer are required")
	}
	if err := didoc.Verify(doc); err != nil {
		return nil, contracts.NewError(op, doc.Subject.String(), contracts.ErrLedger, err)
	}
	return doc, nil
}

// verifyTransaction asks signer to sign payload with signKey of signerDoc and
// checks the signature against the same public key in trusted.
func verifyTransaction(op string, signer contracts.Signer, signerDoc, trusted *models.Document, signKey models.DIDURL, storePassword string, payload []byte) error {
	sig64, err := signer.Sign(signerDoc.Subject, signKey, storePassword, payload)
	if err != nil {
		return err
	}
	if signKey.IsZero() {
		if id, ok := didoc.DefaultKey(signerDoc); ok {
			signKey = id
		}
	}
	pub, err := didoc.PublicKeyBytes(signerDoc, signKey)
	if err != nil {
		return contracts.NewError(op, signKey.String(), contracts.ErrKeyNotFound, err)
	}
	if !trustsKey(trusted, signerDoc, signKey) {
		return contracts.Errorf(op, signKey.String(), contracts.ErrLedger, "sign key is not trusted by the registered document")
	}
	sig, err := base64.RawURLEncoding.DecodeString(sig64)
	if err != nil || !identity.Verify(pub, sig, payload) {
		return contracts.Errorf(op, signerDoc.Subject.String(), contracts.ErrLedger, "invalid transaction signature")
	}
	return nil
}

func trustsKey(trusted, signerDoc *models.Document, signKey models.DIDURL) bool {
	pk, ok := signerDoc.PublicKey(signKey)
	if !ok {
		return false
	}
	if trusted == signerDoc {
		return signerDoc.IsAuthenticationKey(signKey)
	}
	for _, candidate := range trusted.AuthenticationKeys() {
		if candidate.PublicKeyBase58 == pk.PublicKeyBase58 {
			return true
		}
	}
	return false
}

func transactionPayload(operation string, doc *models.Document, previous string) ([]byte, error) {
	raw, err := doc.CanonicalJSON()
	if err != nil {
		return nil, contracts.NewError("simledger.payload", doc.Subject.String(), contracts.ErrInvalidArgument, err)
	}
	var b strings.Builder
	b.WriteString(operation)
	b.WriteByte('\n')
	b.WriteString(previous)
	b.WriteByte('\n')
	b.Write(raw)
	return []byte(b.String()), nil
}

func transactionID(seq uint64, payload []byte) string {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], seq)
	h := sha256.New()
	h.Write(n[:])
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func decode(raw []byte) (*models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode registered document: %w", err)
	}
	return &doc, nil
}
