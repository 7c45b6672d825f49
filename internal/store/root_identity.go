package store

import (
	"errors"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/identity"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/pkg/models"
)

// InitRootRequest carries exactly one of Mnemonic or ExtendedKey.
type InitRootRequest struct {
	// Language selects the mnemonic word list; empty means english.
	Language    string
	Mnemonic    string
	Passphrase  string
	ExtendedKey string
	// StorePassword encrypts everything written to storage.
	StorePassword string
	Force         bool
}

func (s *Store) ContainsRootIdentity() (bool, error) {
	ok, err := s.storage.ContainsRootIdentity()
	return ok, contracts.StorageFailure("store.containsRootIdentity", err)
}

func (s *Store) InitRootIdentity(req InitRootRequest) (err error) {
	const op = "initRootIdentity"
	defer func() { err = s.finish(op, err) }()

	if err := requirePassword(op, req.StorePassword); err != nil {
		return err
	}
	hasMnemonic := req.Mnemonic != ""
	if hasMnemonic == (req.ExtendedKey != "") {
		return contracts.Errorf(op, "", contracts.ErrInvalidArgument, "exactly one of mnemonic or extended key is required")
	}
	if hasMnemonic {
		if err := identity.ValidateMnemonic(req.Language, req.Mnemonic); err != nil {
			return contracts.NewError(op, "", contracts.ErrInvalidArgument, err)
		}
	}

	exists, err := s.storage.ContainsRootIdentity()
	if err != nil {
		return contracts.StorageFailure(op, err)
	}
	if exists && !req.Force {
		return contracts.NewError(op, "", contracts.ErrAlreadyInitialized, nil)
	}

	var root *identity.RootIdentity
	if hasMnemonic {
		root, err = identity.FromMnemonic(req.Mnemonic, req.Passphrase)
	} else {
		root, err = identity.ParseExtendedKey(req.ExtendedKey)
	}
	if err != nil {
		return contracts.NewError(op, "", contracts.ErrInvalidKeyMaterial, err)
	}
	defer root.Wipe()

	if err := s.storeRoot(op, root, req.StorePassword); err != nil {
		return err
	}

	mnemonic := ""
	if hasMnemonic {
		words := []byte(identity.NormalizeMnemonic(req.Mnemonic))
		mnemonic, err = s.codec.Encrypt(words, req.StorePassword)
		securestore.Scrub(words)
		if err != nil {
			return contracts.NewError(op, "", contracts.ErrInvalidKeyMaterial, err)
		}
	}
	// An empty value clears a mnemonic left over from a forced re-init.
	if err := s.storage.StoreMnemonic(mnemonic); err != nil {
		return contracts.StorageFailure(op, err)
	}
	if err := s.storage.StoreCursor(0); err != nil {
		return contracts.StorageFailure(op, err)
	}
	s.logger.Info("root identity initialized", "operation", op, "from_mnemonic", hasMnemonic, "forced", exists)
	return nil
}

func (s *Store) storeRoot(op string, root *identity.RootIdentity, storePassword string) error {
	raw, err := root.Serialize()
	if err != nil {
		return contracts.NewError(op, "", contracts.ErrInvalidKeyMaterial, err)
	}
	defer securestore.Scrub(raw)
	enc, err := s.codec.Encrypt(raw, storePassword)
	if err != nil {
		return contracts.NewError(op, "", contracts.ErrInvalidKeyMaterial, err)
	}
	return contracts.StorageFailure(op, s.storage.StoreRootIdentity(enc))
}

// loadRoot decrypts the root identity. A stored raw seed is normalized to
// the extended key form and written back.
func (s *Store) loadRoot(op, storePassword string) (*identity.RootIdentity, error) {
	enc, err := s.storage.LoadRootIdentity()
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, contracts.Errorf(op, "", contracts.ErrNotFound, "no root identity")
	}
	if err != nil {
		return nil, contracts.StorageFailure(op, err)
	}
	var root *identity.RootIdentity
	wasSeed := false
	err = s.codec.WithPlaintext(enc, storePassword, func(raw []byte) error {
		wasSeed = len(raw) == identity.SeedBytes
		var derr error
		root, derr = identity.Deserialize(raw)
		return derr
	})
	if err != nil {
		return nil, contracts.NewError(op, "", contracts.ErrWrongPassword, err)
	}
	if wasSeed {
		if err := s.storeRoot(op, root, storePassword); err != nil {
			root.Wipe()
			return nil, err
		}
		s.logger.Info("root identity normalized to extended key", "operation", op)
	}
	return root, nil
}

// WithRootIdentity hands the decrypted root to fn and wipes it afterwards.
func (s *Store) WithRootIdentity(storePassword string, fn func(root *identity.RootIdentity) error) error {
	const op = "store.withRootIdentity"
	if err := requirePassword(op, storePassword); err != nil {
		return err
	}
	root, err := s.loadRoot(op, storePassword)
	if err != nil {
		return err
	}
	defer root.Wipe()
	return fn(root)
}

func (s *Store) ExportMnemonic(storePassword string) (mnemonic string, err error) {
	const op = "exportMnemonic"
	defer func() { err = s.finish(op, err) }()

	if err := requirePassword(op, storePassword); err != nil {
		return "", err
	}
	enc, err := s.storage.LoadMnemonic()
	if errors.Is(err, contracts.ErrNotFound) {
		return "", contracts.Errorf(op, "", contracts.ErrNotFound, "no mnemonic stored")
	}
	if err != nil {
		return "", contracts.StorageFailure(op, err)
	}
	err = s.codec.WithPlaintext(enc, storePassword, func(plain []byte) error {
		mnemonic = string(plain)
		return nil
	})
	if err != nil {
		return "", contracts.NewError(op, "", contracts.ErrWrongPassword, err)
	}
	return mnemonic, nil
}

// DIDAt returns the DID at a derivation index without touching the cursor.
func (s *Store) DIDAt(index uint32, storePassword string) (models.DID, error) {
	var did models.DID
	err := s.WithRootIdentity(storePassword, func(root *identity.RootIdentity) error {
		key, err := root.Derive(index)
		if err != nil {
			return contracts.NewError("store.didAt", "", contracts.ErrInvalidArgument, err)
		}
		defer key.Wipe()
		did = models.NewDID(key.Address())
		return nil
	})
	return did, err
}

func (s *Store) Cursor() (uint32, error) {
	cursor, err := s.storage.LoadCursor()
	return cursor, contracts.StorageFailure("store.cursor", err)
}

// AdvanceCursor moves the persisted cursor to next if that is forward.
func (s *Store) AdvanceCursor(next uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceCursorLocked(next)
}

func (s *Store) advanceCursorLocked(next uint32) error {
	cursor, err := s.storage.LoadCursor()
	if err != nil {
		return contracts.StorageFailure("store.advanceCursor", err)
	}
	if next <= cursor {
		return nil
	}
	return contracts.StorageFailure("store.advanceCursor", s.storage.StoreCursor(next))
}
