package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/pkg/models"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	r/identity r/mnemonic r/cursor
//	d/<did> document     m/<did> document metadata
//	c/<didurl> credential n/<didurl> credential metadata
//	k/<didurl> private key
//
// A DID URL is "<did>#<fragment>", so "c/<did>#" prefixes every credential of
// one DID.
const (
	keyRootIdentity = "r/identity"
	keyMnemonic     = "r/mnemonic"
	keyCursor       = "r/cursor"
	prefixDocument  = "d/"
	prefixDocMeta   = "m/"
	prefixCred      = "c/"
	prefixCredMeta  = "n/"
	prefixKey       = "k/"
)

type BadgerOptions struct {
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// BadgerStore persists the vault in a badger LSM tree. Multi-key operations
// run in a single transaction.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

func OpenBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if strings.TrimSpace(opts.Dir) == "" {
			return nil, contracts.Errorf("storage.open", "", contracts.ErrInvalidArgument, "badger dir is required")
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithLoggingLevel(badger.ERROR).WithLogger(nil)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, contracts.StorageFailure("storage.open", err)
	}
	logger.Debug("badger store opened", "component", "storage", "operation", "open", "in_memory", opts.InMemory)
	return &BadgerStore{db: db, logger: logger}, nil
}

func (s *BadgerStore) Close() error {
	return contracts.StorageFailure("storage.close", s.db.Close())
}

func didKey(prefix string, did models.DID) []byte {
	return []byte(prefix + did.String())
}

func locatorKey(prefix string, id models.DIDURL) []byte {
	return []byte(prefix + id.String())
}

func locatorPrefix(prefix string, did models.DID) []byte {
	return []byte(prefix + did.String() + "#")
}

func (s *BadgerStore) set(op string, key, value []byte) error {
	return contracts.StorageFailure(op, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}))
}

// get returns contracts.ErrNotFound for a missing key.
func (s *BadgerStore) get(op string, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, contracts.StorageFailure(op, err)
	}
	return out, nil
}

func (s *BadgerStore) has(op string, key []byte) (bool, error) {
	_, err := s.get(op, key)
	if errors.Is(err, contracts.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerStore) delete(op string, key []byte) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	return existed, contracts.StorageFailure(op, err)
}

func collectKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func (s *BadgerStore) keysWithPrefix(op string, prefix []byte) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		for _, k := range collectKeys(txn, prefix) {
			out = append(out, string(k))
		}
		return nil
	})
	return out, contracts.StorageFailure(op, err)
}

func (s *BadgerStore) StoreRootIdentity(encrypted string) error {
	return s.set("storage.storeRootIdentity", []byte(keyRootIdentity), []byte(encrypted))
}

func (s *BadgerStore) LoadRootIdentity() (string, error) {
	v, err := s.get("storage.loadRootIdentity", []byte(keyRootIdentity))
	return string(v), err
}

func (s *BadgerStore) ContainsRootIdentity() (bool, error) {
	return s.has("storage.containsRootIdentity", []byte(keyRootIdentity))
}

// StoreMnemonic with an empty value removes the stored mnemonic.
func (s *BadgerStore) StoreMnemonic(encrypted string) error {
	if encrypted == "" {
		_, err := s.delete("storage.storeMnemonic", []byte(keyMnemonic))
		return err
	}
	return s.set("storage.storeMnemonic", []byte(keyMnemonic), []byte(encrypted))
}

func (s *BadgerStore) LoadMnemonic() (string, error) {
	v, err := s.get("storage.loadMnemonic", []byte(keyMnemonic))
	return string(v), err
}

func (s *BadgerStore) StoreCursor(index uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], index)
	return s.set("storage.storeCursor", []byte(keyCursor), buf[:])
}

func (s *BadgerStore) LoadCursor() (uint32, error) {
	v, err := s.get("storage.loadCursor", []byte(keyCursor))
	if errors.Is(err, contracts.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 4 {
		return 0, contracts.Errorf("storage.loadCursor", "", contracts.ErrStorage, "corrupt cursor of %d bytes", len(v))
	}
	return binary.BigEndian.Uint32(v), nil
}

func (s *BadgerStore) StoreDocument(doc *models.Document) error {
	raw, err := doc.CanonicalJSON()
	if err != nil {
		return contracts.NewError("storage.storeDocument", doc.Subject.String(), contracts.ErrInvalidArgument, err)
	}
	return s.set("storage.storeDocument", didKey(prefixDocument, doc.Subject), raw)
}

func (s *BadgerStore) LoadDocument(did models.DID) (*models.Document, error) {
	raw, err := s.get("storage.loadDocument", didKey(prefixDocument, did))
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, contracts.StorageFailure("storage.loadDocument", err)
	}
	meta, err := s.LoadDocumentMeta(did)
	if err != nil {
		return nil, err
	}
	doc.Meta = meta
	return doc, nil
}

func (s *BadgerStore) ContainsDocument(did models.DID) (bool, error) {
	return s.has("storage.containsDocument", didKey(prefixDocument, did))
}

func (s *BadgerStore) DeleteDID(did models.DID) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		keys := [][]byte{didKey(prefixDocument, did), didKey(prefixDocMeta, did)}
		for _, prefix := range []string{prefixCred, prefixCredMeta, prefixKey} {
			keys = append(keys, collectKeys(txn, locatorPrefix(prefix, did))...)
		}
		for _, k := range keys {
			if _, err := txn.Get(k); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			existed = true
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return existed, contracts.StorageFailure("storage.deleteDID", err)
}

func (s *BadgerStore) ListDIDs(filter contracts.DIDFilter) ([]models.DID, error) {
	keys, err := s.keysWithPrefix("storage.listDIDs", []byte(prefixDocument))
	if err != nil {
		return nil, err
	}
	out := make([]models.DID, 0, len(keys))
	for _, k := range keys {
		did, err := models.ParseDID(strings.TrimPrefix(k, prefixDocument))
		if err != nil {
			return nil, contracts.StorageFailure("storage.listDIDs", err)
		}
		hasKeys, err := s.ContainsPrivateKeys(did)
		if err != nil {
			return nil, err
		}
		if matchesFilter(filter, hasKeys) {
			out = append(out, did)
		}
	}
	sortDIDs(out)
	return out, nil
}

func (s *BadgerStore) storeMeta(op string, key []byte, meta models.Metadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return contracts.StorageFailure(op, err)
	}
	return s.set(op, key, raw)
}

func (s *BadgerStore) loadMeta(op string, key []byte) (models.Metadata, error) {
	var meta models.Metadata
	raw, err := s.get(op, key)
	if errors.Is(err, contracts.ErrNotFound) {
		return meta, nil
	}
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return models.Metadata{}, contracts.StorageFailure(op, err)
	}
	return meta, nil
}

func (s *BadgerStore) StoreDocumentMeta(did models.DID, meta models.Metadata) error {
	return s.storeMeta("storage.storeDocumentMeta", didKey(prefixDocMeta, did), meta)
}

func (s *BadgerStore) LoadDocumentMeta(did models.DID) (models.Metadata, error) {
	return s.loadMeta("storage.loadDocumentMeta", didKey(prefixDocMeta, did))
}

func (s *BadgerStore) StoreCredential(cred *models.Credential) error {
	raw, err := cred.CanonicalJSON()
	if err != nil {
		return contracts.NewError("storage.storeCredential", cred.ID.String(), contracts.ErrInvalidArgument, err)
	}
	return s.set("storage.storeCredential", locatorKey(prefixCred, cred.ID), raw)
}

func (s *BadgerStore) LoadCredential(did models.DID, id models.DIDURL) (*models.Credential, error) {
	raw, err := s.get("storage.loadCredential", locatorKey(prefixCred, id))
	if err != nil {
		return nil, err
	}
	cred, err := decodeCredential(raw)
	if err != nil {
		return nil, contracts.StorageFailure("storage.loadCredential", err)
	}
	if cred.Owner() != did {
		return nil, contracts.ErrNotFound
	}
	meta, err := s.LoadCredentialMeta(did, id)
	if err != nil {
		return nil, err
	}
	cred.Meta = meta
	return cred, nil
}

func (s *BadgerStore) ContainsCredentials(did models.DID) (bool, error) {
	keys, err := s.keysWithPrefix("storage.containsCredentials", locatorPrefix(prefixCred, did))
	return len(keys) > 0, err
}

func (s *BadgerStore) DeleteCredential(did models.DID, id models.DIDURL) (bool, error) {
	if id.DID != did {
		return false, nil
	}
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range [][]byte{locatorKey(prefixCred, id), locatorKey(prefixCredMeta, id)} {
			if _, err := txn.Get(k); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			existed = true
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return existed, contracts.StorageFailure("storage.deleteCredential", err)
}

func (s *BadgerStore) ListCredentials(did models.DID) ([]models.DIDURL, error) {
	keys, err := s.keysWithPrefix("storage.listCredentials", locatorPrefix(prefixCred, did))
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i] = strings.TrimPrefix(keys[i], prefixCred)
	}
	return parseLocators(keys)
}

func (s *BadgerStore) StoreCredentialMeta(did models.DID, id models.DIDURL, meta models.Metadata) error {
	return s.storeMeta("storage.storeCredentialMeta", locatorKey(prefixCredMeta, id), meta)
}

func (s *BadgerStore) LoadCredentialMeta(did models.DID, id models.DIDURL) (models.Metadata, error) {
	return s.loadMeta("storage.loadCredentialMeta", locatorKey(prefixCredMeta, id))
}

func (s *BadgerStore) StorePrivateKey(did models.DID, id models.DIDURL, encrypted string) error {
	return s.set("storage.storePrivateKey", locatorKey(prefixKey, id), []byte(encrypted))
}

func (s *BadgerStore) LoadPrivateKey(did models.DID, id models.DIDURL) (string, error) {
	v, err := s.get("storage.loadPrivateKey", locatorKey(prefixKey, id))
	return string(v), err
}

func (s *BadgerStore) ContainsPrivateKeys(did models.DID) (bool, error) {
	keys, err := s.keysWithPrefix("storage.containsPrivateKeys", locatorPrefix(prefixKey, did))
	return len(keys) > 0, err
}

func (s *BadgerStore) DeletePrivateKey(did models.DID, id models.DIDURL) (bool, error) {
	return s.delete("storage.deletePrivateKey", locatorKey(prefixKey, id))
}

func (s *BadgerStore) ListPrivateKeys(did models.DID) ([]models.DIDURL, error) {
	keys, err := s.keysWithPrefix("storage.listPrivateKeys", locatorPrefix(prefixKey, did))
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i] = strings.TrimPrefix(keys[i], prefixKey)
	}
	return parseLocators(keys)
}

// ReEncrypt rewrites every secret inside one transaction; an error from fn
// discards the transaction.
func (s *BadgerStore) ReEncrypt(fn func(encrypted string) (string, error)) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		keys := collectKeys(txn, []byte(prefixKey))
		for _, k := range []string{keyRootIdentity, keyMnemonic} {
			if _, err := txn.Get([]byte(k)); err == nil {
				keys = append(keys, []byte(k))
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		updates := make(map[string][]byte, len(keys))
		for _, k := range keys {
			item, err := txn.Get(k)
			if err != nil {
				return err
			}
			old, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			next, err := fn(string(old))
			if err != nil {
				return err
			}
			updates[string(k)] = []byte(next)
		}
		for k, v := range updates {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && contracts.KindOf(err) != nil {
		return err
	}
	return contracts.StorageFailure("storage.reEncrypt", err)
}
