package backup

import (
	"encoding/json"
	"errors"
	"strconv"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/identity"
	"did-vault/go-backend/internal/securestore"
)

// ExportPrivateIdentity writes the root identity, the mnemonic if one is
// stored and the derivation cursor.
func (e *Engine) ExportPrivateIdentity(exportPassword, storePassword string) (data []byte, err error) {
	const op = "exportPrivateIdentity"
	defer func() { err = e.finish(op, err) }()

	if err := requirePasswords(op, exportPassword, storePassword); err != nil {
		return nil, err
	}
	b, err := e.buildRootBundle(op, exportPassword, storePassword)
	if err != nil {
		return nil, err
	}
	data, err = json.Marshal(b)
	if err != nil {
		return nil, contracts.NewError(op, "", contracts.ErrInvalidArgument, err)
	}
	e.logger.Info("root identity exported", "operation", op, "with_mnemonic", b.Mnemonic != "", "index", b.Index)
	return data, nil
}

func (e *Engine) buildRootBundle(op, exportPassword, storePassword string) (*rootBundle, error) {
	encRoot, err := e.storage.LoadRootIdentity()
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, contracts.Errorf(op, "", contracts.ErrNotFound, "no root identity")
	}
	if err != nil {
		return nil, contracts.StorageFailure(op, err)
	}
	b := &rootBundle{Type: ExportType}

	encMnemonic, err := e.storage.LoadMnemonic()
	switch {
	case errors.Is(err, contracts.ErrNotFound):
	case err != nil:
		return nil, contracts.StorageFailure(op, err)
	default:
		if b.Mnemonic, err = e.recrypt(op, "", encMnemonic, storePassword, exportPassword); err != nil {
			return nil, err
		}
	}
	if b.Key, err = e.recrypt(op, "", encRoot, storePassword, exportPassword); err != nil {
		return nil, err
	}
	if b.Index, err = e.storage.LoadCursor(); err != nil {
		return nil, contracts.StorageFailure(op, err)
	}

	fp := newFingerprint(exportPassword)
	fp.addString(b.Type)
	if b.Mnemonic != "" {
		fp.addString(b.Mnemonic)
	}
	fp.addString(b.Key)
	fp.addString(strconv.FormatUint(uint64(b.Index), 10))
	b.Fingerprint = fp.String()
	return b, nil
}

type stagedRoot struct {
	root     string
	mnemonic string
	index    uint32
}

// ImportPrivateIdentity replaces the root identity, the mnemonic and the
// cursor. A bundle without a mnemonic clears the stored one.
func (e *Engine) ImportPrivateIdentity(data []byte, exportPassword, storePassword string) (err error) {
	const op = "importPrivateIdentity"
	defer func() { err = e.finish(op, err) }()

	if err := requirePasswords(op, exportPassword, storePassword); err != nil {
		return err
	}
	st, err := e.stageRoot(op, data, exportPassword, storePassword)
	if err != nil {
		return err
	}
	return e.commitRoot(op, st)
}

func (e *Engine) stageRoot(op string, data []byte, exportPassword, storePassword string) (*stagedRoot, error) {
	var b rootBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, integrityError(op, "", "bundle is corrupt: %v", err)
	}
	if b.Type != ExportType {
		return nil, contracts.Errorf(op, "", contracts.ErrInvalidArgument, "unknown export type %q", b.Type)
	}
	if err := checkMembers(data, "type", "mnemonic", "key", "index", "fingerprint"); err != nil {
		return nil, integrityError(op, "", "bundle is corrupt: %v", err)
	}
	if b.Key == "" {
		return nil, contracts.Errorf(op, "", contracts.ErrInvalidArgument, "bundle has no root key")
	}
	fp := newFingerprint(exportPassword)
	fp.addString(b.Type)
	if b.Mnemonic != "" {
		fp.addString(b.Mnemonic)
	}
	fp.addString(b.Key)
	fp.addString(strconv.FormatUint(uint64(b.Index), 10))
	if !fp.matches(b.Fingerprint) {
		return nil, integrityError(op, "", "fingerprint mismatch")
	}

	st := &stagedRoot{index: b.Index}
	var root *identity.RootIdentity
	err := e.codec.WithPlaintext(b.Key, exportPassword, func(raw []byte) error {
		var derr error
		root, derr = identity.Deserialize(raw)
		return derr
	})
	if err != nil {
		return nil, contracts.NewError(op, "", contracts.ErrWrongPassword, err)
	}
	defer root.Wipe()
	raw, err := root.Serialize()
	if err != nil {
		return nil, contracts.NewError(op, "", contracts.ErrInvalidKeyMaterial, err)
	}
	st.root, err = e.codec.Encrypt(raw, storePassword)
	securestore.Scrub(raw)
	if err != nil {
		return nil, contracts.NewError(op, "", contracts.ErrInvalidKeyMaterial, err)
	}
	if b.Mnemonic != "" {
		if st.mnemonic, err = e.recrypt(op, "", b.Mnemonic, exportPassword, storePassword); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (e *Engine) commitRoot(op string, st *stagedRoot) error {
	if err := e.storage.StoreRootIdentity(st.root); err != nil {
		return contracts.StorageFailure(op, err)
	}
	if err := e.storage.StoreMnemonic(st.mnemonic); err != nil {
		return contracts.StorageFailure(op, err)
	}
	if err := e.storage.StoreCursor(st.index); err != nil {
		return contracts.StorageFailure(op, err)
	}
	e.logger.Info("root identity imported", "operation", op, "with_mnemonic", st.mnemonic != "", "index", st.index)
	return nil
}
