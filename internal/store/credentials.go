package store

import (
	"errors"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/pkg/models"
)

// StoreCredential persists cred under its subject, merging cred.Meta over
// the stored metadata.
func (s *Store) StoreCredential(cred *models.Credential) (err error) {
	const op = "storeCredential"
	defer func() { err = s.finish(op, err) }()
	return s.storeCredential(op, cred)
}

func (s *Store) storeCredential(op string, cred *models.Credential) error {
	if cred == nil || cred.ID.IsZero() || cred.Owner().IsZero() {
		return contracts.Errorf(op, "", contracts.ErrInvalidArgument, "credential needs an id and a subject")
	}
	owner := cred.Owner()
	if err := s.storage.StoreCredential(cred); err != nil {
		return contracts.StorageFailure(op, err)
	}
	meta, err := s.storage.LoadCredentialMeta(owner, cred.ID)
	if err != nil {
		return contracts.StorageFailure(op, err)
	}
	meta = meta.Merge(cred.Meta)
	if err := s.storage.StoreCredentialMeta(owner, cred.ID, meta); err != nil {
		return contracts.StorageFailure(op, err)
	}
	cred.Meta = meta
	s.cache.PutCredential(cred)
	return nil
}

func (s *Store) LoadCredential(did models.DID, id models.DIDURL) (*models.Credential, error) {
	const op = "store.loadCredential"
	if cred, ok := s.cache.Credential(id); ok && cred.Owner() == did {
		return cred, nil
	}
	cred, err := s.storage.LoadCredential(did, id)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, contracts.NewError(op, id.String(), contracts.ErrNotFound, nil)
	}
	if err != nil {
		return nil, contracts.StorageFailure(op, err)
	}
	s.cache.PutCredential(cred)
	return cred, nil
}

func (s *Store) ContainsCredential(did models.DID, id models.DIDURL) (bool, error) {
	_, err := s.LoadCredential(did, id)
	if errors.Is(err, contracts.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) ContainsCredentials(did models.DID) (bool, error) {
	ok, err := s.storage.ContainsCredentials(did)
	return ok, contracts.StorageFailure("store.containsCredentials", err)
}

func (s *Store) DeleteCredential(did models.DID, id models.DIDURL) (deleted bool, err error) {
	const op = "deleteCredential"
	defer func() { err = s.finish(op, err) }()

	deleted, err = s.storage.DeleteCredential(did, id)
	s.cache.InvalidateCredential(id)
	return deleted, contracts.StorageFailure(op, err)
}

func (s *Store) ListCredentials(did models.DID) ([]models.DIDURL, error) {
	ids, err := s.storage.ListCredentials(did)
	return ids, contracts.StorageFailure("store.listCredentials", err)
}

// SelectCredentials returns the credentials of did matching id (when set)
// and carrying every one of types.
func (s *Store) SelectCredentials(did models.DID, id models.DIDURL, types ...string) ([]*models.Credential, error) {
	if id.IsZero() && len(types) == 0 {
		return nil, contracts.Errorf("store.selectCredentials", did.String(), contracts.ErrInvalidArgument, "an id or at least one type is required")
	}
	ids, err := s.ListCredentials(did)
	if err != nil {
		return nil, err
	}
	var out []*models.Credential
	for _, candidate := range ids {
		if !id.IsZero() && candidate != id {
			continue
		}
		cred, err := s.LoadCredential(did, candidate)
		if err != nil {
			return nil, err
		}
		if hasAllTypes(cred, types) {
			out = append(out, cred)
		}
	}
	return out, nil
}

func hasAllTypes(cred *models.Credential, types []string) bool {
	for _, t := range types {
		if !cred.HasType(t) {
			return false
		}
	}
	return true
}

// StoreCredentialMeta replaces the metadata of one credential.
func (s *Store) StoreCredentialMeta(did models.DID, id models.DIDURL, meta models.Metadata) error {
	if err := s.storage.StoreCredentialMeta(did, id, meta); err != nil {
		return contracts.StorageFailure("store.storeCredentialMeta", err)
	}
	if cred, ok := s.cache.Credential(id); ok {
		cred.Meta = meta.Clone()
		s.cache.PutCredential(cred)
	}
	return nil
}

func (s *Store) LoadCredentialMeta(did models.DID, id models.DIDURL) (models.Metadata, error) {
	meta, err := s.storage.LoadCredentialMeta(did, id)
	return meta, contracts.StorageFailure("store.loadCredentialMeta", err)
}
