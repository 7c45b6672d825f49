package store

import (
	"encoding/base64"
	"errors"

	"did-vault/go-backend/internal/didoc"
	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/identity"
	"did-vault/go-backend/pkg/models"
)

var signatureEncoding = base64.RawURLEncoding

// StorePrivateKey encrypts a 32-byte scalar under storePassword.
func (s *Store) StorePrivateKey(did models.DID, id models.DIDURL, privateKey []byte, storePassword string) (err error) {
	const op = "storePrivateKey"
	defer func() { err = s.finish(op, err) }()
	if err := requirePassword(op, storePassword); err != nil {
		return err
	}
	return s.storePrivateKey(op, did, id, privateKey, storePassword)
}

func (s *Store) storePrivateKey(op string, did models.DID, id models.DIDURL, privateKey []byte, storePassword string) error {
	if did.IsZero() || id.IsZero() {
		return contracts.Errorf(op, id.String(), contracts.ErrInvalidArgument, "key locator is incomplete")
	}
	if len(privateKey) != identity.PrivateKeyBytes {
		return contracts.Errorf(op, id.String(), contracts.ErrInvalidKeyMaterial, "private key must be %d bytes", identity.PrivateKeyBytes)
	}
	enc, err := s.codec.Encrypt(privateKey, storePassword)
	if err != nil {
		return contracts.NewError(op, id.String(), contracts.ErrInvalidKeyMaterial, err)
	}
	return contracts.StorageFailure(op, s.storage.StorePrivateKey(did, id, enc))
}

func (s *Store) ContainsPrivateKey(did models.DID, id models.DIDURL) (bool, error) {
	_, err := s.storage.LoadPrivateKey(did, id)
	if errors.Is(err, contracts.ErrNotFound) {
		return false, nil
	}
	return err == nil, contracts.StorageFailure("store.containsPrivateKey", err)
}

func (s *Store) ContainsPrivateKeys(did models.DID) (bool, error) {
	ok, err := s.storage.ContainsPrivateKeys(did)
	return ok, contracts.StorageFailure("store.containsPrivateKeys", err)
}

func (s *Store) DeletePrivateKey(did models.DID, id models.DIDURL) (deleted bool, err error) {
	const op = "deletePrivateKey"
	defer func() { err = s.finish(op, err) }()
	deleted, err = s.storage.DeletePrivateKey(did, id)
	return deleted, contracts.StorageFailure(op, err)
}

func (s *Store) ListPrivateKeys(did models.DID) ([]models.DIDURL, error) {
	ids, err := s.storage.ListPrivateKeys(did)
	return ids, contracts.StorageFailure("store.listPrivateKeys", err)
}

// WithPrivateKey decrypts one key, hands it to fn and scrubs it afterwards.
func (s *Store) WithPrivateKey(did models.DID, id models.DIDURL, storePassword string, fn func(privateKey []byte) error) error {
	const op = "store.withPrivateKey"
	if err := requirePassword(op, storePassword); err != nil {
		return err
	}
	enc, err := s.storage.LoadPrivateKey(did, id)
	if errors.Is(err, contracts.ErrNotFound) {
		return contracts.NewError(op, id.String(), contracts.ErrKeyNotFound, nil)
	}
	if err != nil {
		return contracts.StorageFailure(op, err)
	}
	var fnErr error
	err = s.codec.WithPlaintext(enc, storePassword, func(plain []byte) error {
		fnErr = fn(plain)
		return nil
	})
	if err != nil {
		return contracts.NewError(op, id.String(), contracts.ErrWrongPassword, err)
	}
	return fnErr
}

// Sign signs the concatenation of data with the key keyID of did. A zero
// keyID selects the document's default key. The result is a base64url DER
// signature.
func (s *Store) Sign(did models.DID, keyID models.DIDURL, storePassword string, data ...[]byte) (sig string, err error) {
	const op = "sign"
	defer func() { err = s.finish(op, err) }()

	if err := requirePassword(op, storePassword); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", contracts.Errorf(op, did.String(), contracts.ErrInvalidArgument, "nothing to sign")
	}
	doc, err := s.LoadDocument(did)
	if err != nil {
		return "", err
	}
	keyID, err = signingKey(op, doc, keyID)
	if err != nil {
		return "", err
	}
	var raw []byte
	err = s.WithPrivateKey(did, keyID, storePassword, func(priv []byte) error {
		var serr error
		raw, serr = identity.Sign(priv, data...)
		return serr
	})
	if err != nil {
		return "", err
	}
	return signatureEncoding.EncodeToString(raw), nil
}

// signingKey resolves a zero keyID to the default key and otherwise checks
// that keyID is an authentication key of doc.
func signingKey(op string, doc *models.Document, keyID models.DIDURL) (models.DIDURL, error) {
	if keyID.IsZero() {
		id, ok := didoc.DefaultKey(doc)
		if !ok {
			return models.DIDURL{}, contracts.Errorf(op, doc.Subject.String(), contracts.ErrKeyNotFound, "document has no default key")
		}
		return id, nil
	}
	if !doc.IsAuthenticationKey(keyID) {
		return models.DIDURL{}, contracts.Errorf(op, keyID.String(), contracts.ErrKeyNotFound, "not an authentication key")
	}
	return keyID, nil
}
