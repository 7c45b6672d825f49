// Package backup moves identities between vaults as password-protected,
// fingerprinted JSON bundles, singly or packed into a zip archive.
package backup

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash"
	"log/slog"
	"slices"
	"strings"
	"time"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/platform/metrics"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/pkg/models"
)

const (
	ExportType = "did.elastos.export/1.0"
	// RootEntryName names the root identity bundle inside an archive.
	RootEntryName = "privateIdentity"
	createdLayout = "2006-01-02T15:04:05Z"
)

// Field order below is part of the fingerprint contract.
type identityBundle struct {
	Type        string            `json:"type"`
	ID          string            `json:"id"`
	Created     string            `json:"created"`
	Document    json.RawMessage   `json:"document"`
	Credentials []json.RawMessage `json:"credential,omitempty"`
	PrivateKeys []keyEntry        `json:"privatekey,omitempty"`
	Metadata    *metadataBlock    `json:"metadata,omitempty"`
	Fingerprint string            `json:"fingerprint"`
}

type keyEntry struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type metadataBlock struct {
	Document    json.RawMessage  `json:"document,omitempty"`
	Credentials []credentialMeta `json:"credential,omitempty"`
}

type credentialMeta struct {
	ID       string          `json:"id"`
	Metadata json.RawMessage `json:"metadata"`
}

type rootBundle struct {
	Type        string `json:"type"`
	Mnemonic    string `json:"mnemonic,omitempty"`
	Key         string `json:"key"`
	Index       uint32 `json:"index"`
	Fingerprint string `json:"fingerprint"`
}

// fingerprint digests the export password followed by every field in the
// order it appears in the bundle.
type fingerprint struct {
	h hash.Hash
}

func newFingerprint(password string) *fingerprint {
	h := sha256.New()
	h.Write([]byte(password))
	return &fingerprint{h: h}
}

func (f *fingerprint) add(b []byte) {
	f.h.Write(b)
}

func (f *fingerprint) addString(s string) {
	f.h.Write([]byte(s))
}

func (f *fingerprint) String() string {
	return base64.RawURLEncoding.EncodeToString(f.h.Sum(nil))
}

func (f *fingerprint) matches(ref string) bool {
	return subtle.ConstantTimeCompare([]byte(f.String()), []byte(ref)) == 1
}

// checkMembers fails when raw is an object holding a member not spelled
// exactly as one of names. encoding/json folds case when it fills a struct.
func checkMembers(raw []byte, names ...string) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return err
	}
	for name := range members {
		if !slices.Contains(names, name) {
			return fmt.Errorf("unexpected member %q", name)
		}
	}
	return nil
}

// Invalidator drops cached state for a DID whose storage was rewritten.
type Invalidator interface {
	Invalidate(did models.DID)
}

type Options struct {
	Storage     contracts.Storage
	Codec       *securestore.Codec
	Invalidator Invalidator
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Engine reads from and writes to storage directly, bypassing the cache.
type Engine struct {
	storage     contracts.Storage
	codec       *securestore.Codec
	invalidator Invalidator
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Storage == nil {
		return nil, contracts.Errorf("backup.new", "", contracts.ErrInvalidArgument, "storage is required")
	}
	codec := opts.Codec
	if codec == nil {
		codec = securestore.NewCodec(securestore.DefaultKDFParams())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		storage:     opts.Storage,
		codec:       codec,
		invalidator: opts.Invalidator,
		logger:      logger.With("component", "backup"),
		metrics:     opts.Metrics,
		now:         now,
	}, nil
}

func (e *Engine) finish(op string, err error) error {
	e.metrics.Observe(op, err)
	if err != nil {
		e.logger.Debug("operation failed", "operation", op, "error", err)
	}
	return err
}

func requirePasswords(op, exportPassword, storePassword string) error {
	if strings.TrimSpace(exportPassword) == "" {
		return contracts.Errorf(op, "", contracts.ErrInvalidArgument, "export password is required")
	}
	if strings.TrimSpace(storePassword) == "" {
		return contracts.Errorf(op, "", contracts.ErrInvalidArgument, "store password is required")
	}
	return nil
}

// recrypt moves a ciphertext from one password to another.
func (e *Engine) recrypt(op, subject, text, from, to string) (string, error) {
	out, err := e.codec.ReEncrypt(text, from, to)
	if err != nil {
		return "", contracts.NewError(op, subject, contracts.ErrWrongPassword, err)
	}
	return out, nil
}

func integrityError(op, subject, format string, args ...any) error {
	return contracts.Errorf(op, subject, contracts.ErrIntegrity, format, args...)
}
