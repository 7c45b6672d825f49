package store

import (
	"errors"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/pkg/models"
)

// StoreDocument persists doc, merging doc.Meta over the stored metadata.
// doc.Meta is updated to the merged result. Embedded credentials are stored
// alongside.
func (s *Store) StoreDocument(doc *models.Document) (err error) {
	const op = "storeDocument"
	defer func() { err = s.finish(op, err) }()

	if doc == nil || doc.Subject.IsZero() {
		return contracts.Errorf(op, "", contracts.ErrInvalidArgument, "document without subject")
	}
	return s.storeDocument(op, doc)
}

func (s *Store) storeDocument(op string, doc *models.Document) error {
	did := doc.Subject
	if err := s.storage.StoreDocument(doc); err != nil {
		return contracts.StorageFailure(op, err)
	}
	meta, err := s.storage.LoadDocumentMeta(did)
	if err != nil {
		return contracts.StorageFailure(op, err)
	}
	meta = meta.Merge(doc.Meta)
	if err := s.storage.StoreDocumentMeta(did, meta); err != nil {
		return contracts.StorageFailure(op, err)
	}
	doc.Meta = meta
	for i := range doc.Credentials {
		if err := s.storeCredential(op, &doc.Credentials[i]); err != nil {
			return err
		}
	}
	s.cache.PutDocument(doc)
	return nil
}

func (s *Store) LoadDocument(did models.DID) (*models.Document, error) {
	const op = "store.loadDocument"
	if doc, ok := s.cache.Document(did); ok {
		return doc, nil
	}
	doc, err := s.storage.LoadDocument(did)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, contracts.NewError(op, did.String(), contracts.ErrNotFound, nil)
	}
	if err != nil {
		return nil, contracts.StorageFailure(op, err)
	}
	s.cache.PutDocument(doc)
	return doc, nil
}

func (s *Store) ContainsDocument(did models.DID) (bool, error) {
	if _, ok := s.cache.Document(did); ok {
		return true, nil
	}
	ok, err := s.storage.ContainsDocument(did)
	return ok, contracts.StorageFailure("store.containsDocument", err)
}

// DeleteDocument removes the DID with its metadata, credentials and keys.
func (s *Store) DeleteDocument(did models.DID) (deleted bool, err error) {
	const op = "deleteDocument"
	defer func() { err = s.finish(op, err) }()

	deleted, err = s.storage.DeleteDID(did)
	s.cache.InvalidateDID(did)
	if err != nil {
		return false, contracts.StorageFailure(op, err)
	}
	if deleted {
		s.logger.Info("did deleted", "operation", op, "did", did.String())
	}
	return deleted, nil
}

func (s *Store) ListDIDs(filter contracts.DIDFilter) ([]models.DID, error) {
	dids, err := s.storage.ListDIDs(filter)
	return dids, contracts.StorageFailure("store.listDIDs", err)
}

// StoreDocumentMeta replaces the metadata of did.
func (s *Store) StoreDocumentMeta(did models.DID, meta models.Metadata) error {
	const op = "store.storeDocumentMeta"
	if err := s.storage.StoreDocumentMeta(did, meta); err != nil {
		return contracts.StorageFailure(op, err)
	}
	if doc, ok := s.cache.Document(did); ok {
		doc.Meta = meta.Clone()
		s.cache.PutDocument(doc)
	}
	return nil
}

func (s *Store) LoadDocumentMeta(did models.DID) (models.Metadata, error) {
	meta, err := s.storage.LoadDocumentMeta(did)
	return meta, contracts.StorageFailure("store.loadDocumentMeta", err)
}

// updateDocumentMeta merges patch into the stored metadata of did.
func (s *Store) updateDocumentMeta(op string, did models.DID, patch models.Metadata) error {
	meta, err := s.storage.LoadDocumentMeta(did)
	if err != nil {
		return contracts.StorageFailure(op, err)
	}
	return s.StoreDocumentMeta(did, meta.Merge(patch))
}

// Invalidate drops did from the cache. Callers that write to storage
// directly use it to keep reads coherent.
func (s *Store) Invalidate(did models.DID) {
	s.cache.InvalidateDID(did)
}
