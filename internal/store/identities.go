package store

import (
	"did-vault/go-backend/internal/didoc"
	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/identity"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/pkg/models"
)

type NewIdentityRequest struct {
	// Index pins the derivation index; nil takes the cursor and advances it.
	Index         *uint32
	Alias         string
	StorePassword string
}

// NewIdentity derives the key at the requested index, stores its encrypted
// private key and a freshly signed document, and returns the document.
func (s *Store) NewIdentity(req NewIdentityRequest) (doc *models.Document, err error) {
	const op = "newIdentity"
	defer func() { err = s.finish(op, err) }()

	if err := requirePassword(op, req.StorePassword); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := uint32(0)
	if req.Index != nil {
		index = *req.Index
	} else {
		if index, err = s.storage.LoadCursor(); err != nil {
			return nil, contracts.StorageFailure(op, err)
		}
	}

	err = s.WithRootIdentity(req.StorePassword, func(root *identity.RootIdentity) error {
		key, err := root.Derive(index)
		if err != nil {
			return contracts.NewError(op, "", contracts.ErrInvalidArgument, err)
		}
		defer key.Wipe()

		did := didoc.DIDFor(key.PublicKey())
		exists, err := s.ContainsDocument(did)
		if err != nil {
			return err
		}
		if exists {
			return contracts.NewError(op, did.String(), contracts.ErrAlreadyExists, nil)
		}

		doc, err = didoc.Build(key, s.now())
		if err != nil {
			return err
		}
		doc.Meta.Alias = req.Alias

		priv := key.PrivateKey()
		defer securestore.Scrub(priv)
		keyID := models.NewDIDURL(did, didoc.PrimaryKeyFragment)
		if err := s.storePrivateKey(op, did, keyID, priv, req.StorePassword); err != nil {
			return err
		}
		return s.storeDocument(op, doc)
	})
	if err != nil {
		return nil, err
	}
	if req.Index == nil {
		if err := s.advanceCursorLocked(index + 1); err != nil {
			return nil, err
		}
	}
	s.logger.Info("identity created", "operation", op, "did", doc.Subject.String(), "index", index)
	return doc, nil
}
