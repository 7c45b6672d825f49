package storage

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"sync"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/pkg/models"
)

type credentialEntry struct {
	Credential json.RawMessage `json:"credential"`
	Meta       models.Metadata `json:"meta,omitzero"`
}

type didEntry struct {
	Document    json.RawMessage            `json:"document,omitempty"`
	Meta        models.Metadata            `json:"meta,omitzero"`
	Credentials map[string]credentialEntry `json:"credentials,omitempty"`
	PrivateKeys map[string]string          `json:"private_keys,omitempty"`
}

type vaultSnapshot struct {
	RootIdentity string               `json:"root_identity,omitempty"`
	Mnemonic     string               `json:"mnemonic,omitempty"`
	Cursor       uint32               `json:"cursor"`
	DIDs         map[string]*didEntry `json:"dids"`
}

// MemoryStore keeps the vault in a map snapshot. With a file configured every
// mutation is written out before it becomes visible, so a failed write leaves
// the previous state in place.
type MemoryStore struct {
	mu    sync.RWMutex
	state *vaultSnapshot
	file  securestore.FileOptions
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newSnapshot()}
}

// NewSnapshotStore loads (or creates) a snapshot file. A non-empty passphrase
// encrypts the whole file on top of the per-secret encryption.
func NewSnapshotStore(opts securestore.FileOptions) (*MemoryStore, error) {
	s := &MemoryStore{state: newSnapshot(), file: opts.Normalize()}
	loaded := newSnapshot()
	found, err := securestore.ReadJSON(s.file, loaded)
	if err != nil {
		return nil, contracts.StorageFailure("storage.load", err)
	}
	if found {
		if loaded.DIDs == nil {
			loaded.DIDs = make(map[string]*didEntry)
		}
		s.state = loaded
	}
	return s, nil
}

func newSnapshot() *vaultSnapshot {
	return &vaultSnapshot{DIDs: make(map[string]*didEntry)}
}

func (v *vaultSnapshot) clone() *vaultSnapshot {
	out := *v
	out.DIDs = make(map[string]*didEntry, len(v.DIDs))
	for k, e := range v.DIDs {
		cp := *e
		cp.Meta = e.Meta.Clone()
		cp.Credentials = maps.Clone(e.Credentials)
		cp.PrivateKeys = maps.Clone(e.PrivateKeys)
		out.DIDs[k] = &cp
	}
	return &out
}

func (v *vaultSnapshot) entry(did models.DID) *didEntry {
	key := did.String()
	e, ok := v.DIDs[key]
	if !ok {
		e = &didEntry{}
		v.DIDs[key] = e
	}
	return e
}

func (s *MemoryStore) mutate(op string, fn func(next *vaultSnapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	if s.file.Path != "" {
		if err := securestore.WriteJSON(s.file, next); err != nil {
			return contracts.StorageFailure(op, err)
		}
	}
	s.state = next
	return nil
}

func (s *MemoryStore) read(fn func(cur *vaultSnapshot)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

func (s *MemoryStore) StoreRootIdentity(encrypted string) error {
	return s.mutate("storage.storeRootIdentity", func(next *vaultSnapshot) error {
		next.RootIdentity = encrypted
		return nil
	})
}

func (s *MemoryStore) LoadRootIdentity() (string, error) {
	var out string
	s.read(func(cur *vaultSnapshot) { out = cur.RootIdentity })
	if out == "" {
		return "", contracts.ErrNotFound
	}
	return out, nil
}

func (s *MemoryStore) ContainsRootIdentity() (bool, error) {
	var ok bool
	s.read(func(cur *vaultSnapshot) { ok = cur.RootIdentity != "" })
	return ok, nil
}

func (s *MemoryStore) StoreMnemonic(encrypted string) error {
	return s.mutate("storage.storeMnemonic", func(next *vaultSnapshot) error {
		next.Mnemonic = encrypted
		return nil
	})
}

func (s *MemoryStore) LoadMnemonic() (string, error) {
	var out string
	s.read(func(cur *vaultSnapshot) { out = cur.Mnemonic })
	if out == "" {
		return "", contracts.ErrNotFound
	}
	return out, nil
}

func (s *MemoryStore) StoreCursor(index uint32) error {
	return s.mutate("storage.storeCursor", func(next *vaultSnapshot) error {
		next.Cursor = index
		return nil
	})
}

func (s *MemoryStore) LoadCursor() (uint32, error) {
	var out uint32
	s.read(func(cur *vaultSnapshot) { out = cur.Cursor })
	return out, nil
}

func (s *MemoryStore) StoreDocument(doc *models.Document) error {
	raw, err := doc.CanonicalJSON()
	if err != nil {
		return contracts.NewError("storage.storeDocument", doc.Subject.String(), contracts.ErrInvalidArgument, err)
	}
	return s.mutate("storage.storeDocument", func(next *vaultSnapshot) error {
		next.entry(doc.Subject).Document = raw
		return nil
	})
}

func (s *MemoryStore) LoadDocument(did models.DID) (*models.Document, error) {
	var raw json.RawMessage
	var meta models.Metadata
	s.read(func(cur *vaultSnapshot) {
		if e, ok := cur.DIDs[did.String()]; ok {
			raw = e.Document
			meta = e.Meta.Clone()
		}
	})
	if raw == nil {
		return nil, contracts.ErrNotFound
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, contracts.StorageFailure("storage.loadDocument", err)
	}
	doc.Meta = meta
	return doc, nil
}

func (s *MemoryStore) ContainsDocument(did models.DID) (bool, error) {
	var ok bool
	s.read(func(cur *vaultSnapshot) {
		e, found := cur.DIDs[did.String()]
		ok = found && e.Document != nil
	})
	return ok, nil
}

func (s *MemoryStore) DeleteDID(did models.DID) (bool, error) {
	deleted := false
	err := s.mutate("storage.deleteDID", func(next *vaultSnapshot) error {
		if _, ok := next.DIDs[did.String()]; !ok {
			return nil
		}
		delete(next.DIDs, did.String())
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *MemoryStore) ListDIDs(filter contracts.DIDFilter) ([]models.DID, error) {
	var out []models.DID
	var parseErr error
	s.read(func(cur *vaultSnapshot) {
		for key, e := range cur.DIDs {
			if e.Document == nil || !matchesFilter(filter, len(e.PrivateKeys) > 0) {
				continue
			}
			did, err := models.ParseDID(key)
			if err != nil {
				parseErr = err
				return
			}
			out = append(out, did)
		}
	})
	if parseErr != nil {
		return nil, contracts.StorageFailure("storage.listDIDs", parseErr)
	}
	sortDIDs(out)
	return out, nil
}

func (s *MemoryStore) StoreDocumentMeta(did models.DID, meta models.Metadata) error {
	return s.mutate("storage.storeDocumentMeta", func(next *vaultSnapshot) error {
		next.entry(did).Meta = meta.Clone()
		return nil
	})
}

func (s *MemoryStore) LoadDocumentMeta(did models.DID) (models.Metadata, error) {
	var meta models.Metadata
	s.read(func(cur *vaultSnapshot) {
		if e, ok := cur.DIDs[did.String()]; ok {
			meta = e.Meta.Clone()
		}
	})
	return meta, nil
}

func (s *MemoryStore) StoreCredential(cred *models.Credential) error {
	raw, err := cred.CanonicalJSON()
	if err != nil {
		return contracts.NewError("storage.storeCredential", cred.ID.String(), contracts.ErrInvalidArgument, err)
	}
	return s.mutate("storage.storeCredential", func(next *vaultSnapshot) error {
		e := next.entry(cred.Owner())
		if e.Credentials == nil {
			e.Credentials = make(map[string]credentialEntry)
		}
		ce := e.Credentials[cred.ID.String()]
		ce.Credential = raw
		e.Credentials[cred.ID.String()] = ce
		return nil
	})
}

func (s *MemoryStore) LoadCredential(did models.DID, id models.DIDURL) (*models.Credential, error) {
	var ce credentialEntry
	var ok bool
	s.read(func(cur *vaultSnapshot) {
		if e, found := cur.DIDs[did.String()]; found {
			ce, ok = e.Credentials[id.String()]
		}
	})
	if !ok || ce.Credential == nil {
		return nil, contracts.ErrNotFound
	}
	cred, err := decodeCredential(ce.Credential)
	if err != nil {
		return nil, contracts.StorageFailure("storage.loadCredential", err)
	}
	cred.Meta = ce.Meta.Clone()
	return cred, nil
}

func (s *MemoryStore) ContainsCredentials(did models.DID) (bool, error) {
	var ok bool
	s.read(func(cur *vaultSnapshot) {
		if e, found := cur.DIDs[did.String()]; found {
			for _, ce := range e.Credentials {
				if ce.Credential != nil {
					ok = true
					return
				}
			}
		}
	})
	return ok, nil
}

func (s *MemoryStore) DeleteCredential(did models.DID, id models.DIDURL) (bool, error) {
	deleted := false
	err := s.mutate("storage.deleteCredential", func(next *vaultSnapshot) error {
		e, ok := next.DIDs[did.String()]
		if !ok {
			return nil
		}
		if _, ok := e.Credentials[id.String()]; !ok {
			return nil
		}
		delete(e.Credentials, id.String())
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *MemoryStore) ListCredentials(did models.DID) ([]models.DIDURL, error) {
	var keys []string
	s.read(func(cur *vaultSnapshot) {
		if e, ok := cur.DIDs[did.String()]; ok {
			for k, ce := range e.Credentials {
				if ce.Credential != nil {
					keys = append(keys, k)
				}
			}
		}
	})
	return parseLocators(keys)
}

func (s *MemoryStore) StoreCredentialMeta(did models.DID, id models.DIDURL, meta models.Metadata) error {
	return s.mutate("storage.storeCredentialMeta", func(next *vaultSnapshot) error {
		e := next.entry(did)
		if e.Credentials == nil {
			e.Credentials = make(map[string]credentialEntry)
		}
		ce := e.Credentials[id.String()]
		ce.Meta = meta.Clone()
		e.Credentials[id.String()] = ce
		return nil
	})
}

func (s *MemoryStore) LoadCredentialMeta(did models.DID, id models.DIDURL) (models.Metadata, error) {
	var meta models.Metadata
	s.read(func(cur *vaultSnapshot) {
		if e, ok := cur.DIDs[did.String()]; ok {
			meta = e.Credentials[id.String()].Meta.Clone()
		}
	})
	return meta, nil
}

func (s *MemoryStore) StorePrivateKey(did models.DID, id models.DIDURL, encrypted string) error {
	return s.mutate("storage.storePrivateKey", func(next *vaultSnapshot) error {
		e := next.entry(did)
		if e.PrivateKeys == nil {
			e.PrivateKeys = make(map[string]string)
		}
		e.PrivateKeys[id.String()] = encrypted
		return nil
	})
}

func (s *MemoryStore) LoadPrivateKey(did models.DID, id models.DIDURL) (string, error) {
	var out string
	s.read(func(cur *vaultSnapshot) {
		if e, ok := cur.DIDs[did.String()]; ok {
			out = e.PrivateKeys[id.String()]
		}
	})
	if out == "" {
		return "", contracts.ErrNotFound
	}
	return out, nil
}

func (s *MemoryStore) ContainsPrivateKeys(did models.DID) (bool, error) {
	var ok bool
	s.read(func(cur *vaultSnapshot) {
		if e, found := cur.DIDs[did.String()]; found {
			ok = len(e.PrivateKeys) > 0
		}
	})
	return ok, nil
}

func (s *MemoryStore) DeletePrivateKey(did models.DID, id models.DIDURL) (bool, error) {
	deleted := false
	err := s.mutate("storage.deletePrivateKey", func(next *vaultSnapshot) error {
		e, ok := next.DIDs[did.String()]
		if !ok {
			return nil
		}
		if _, ok := e.PrivateKeys[id.String()]; !ok {
			return nil
		}
		delete(e.PrivateKeys, id.String())
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *MemoryStore) ListPrivateKeys(did models.DID) ([]models.DIDURL, error) {
	var keys []string
	s.read(func(cur *vaultSnapshot) {
		if e, ok := cur.DIDs[did.String()]; ok {
			keys = slices.Collect(maps.Keys(e.PrivateKeys))
		}
	})
	return parseLocators(keys)
}

func (s *MemoryStore) ReEncrypt(fn func(encrypted string) (string, error)) error {
	return s.mutate("storage.reEncrypt", func(next *vaultSnapshot) error {
		var err error
		if next.RootIdentity != "" {
			if next.RootIdentity, err = fn(next.RootIdentity); err != nil {
				return err
			}
		}
		if next.Mnemonic != "" {
			if next.Mnemonic, err = fn(next.Mnemonic); err != nil {
				return err
			}
		}
		for _, e := range next.DIDs {
			for id, key := range e.PrivateKeys {
				if e.PrivateKeys[id], err = fn(key); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *MemoryStore) Close() error {
	return nil
}

func matchesFilter(filter contracts.DIDFilter, hasKeys bool) bool {
	switch filter {
	case contracts.DIDsWithPrivateKey:
		return hasKeys
	case contracts.DIDsWithoutPrivateKey:
		return !hasKeys
	default:
		return true
	}
}

func sortDIDs(dids []models.DID) {
	slices.SortFunc(dids, func(a, b models.DID) int {
		return strings.Compare(a.String(), b.String())
	})
}

func parseLocators(keys []string) ([]models.DIDURL, error) {
	slices.Sort(keys)
	out := make([]models.DIDURL, 0, len(keys))
	for _, k := range keys {
		id, err := models.ParseDIDURL(k, models.DID{})
		if err != nil {
			return nil, contracts.StorageFailure("storage.parseLocator", err)
		}
		out = append(out, id)
	}
	return out, nil
}

func decodeDocument(raw []byte) (*models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func decodeCredential(raw []byte) (*models.Credential, error) {
	var cred models.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}
