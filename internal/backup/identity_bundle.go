package backup

import (
	"encoding/json"
	"errors"
	"time"

	"did-vault/go-backend/internal/didoc"
	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/pkg/models"
)

// ExportDID writes one identity with its credentials, private keys and
// metadata. Private keys are re-encrypted under exportPassword.
func (e *Engine) ExportDID(did models.DID, exportPassword, storePassword string) (data []byte, err error) {
	const op = "exportDID"
	defer func() { err = e.finish(op, err) }()

	if err := requirePasswords(op, exportPassword, storePassword); err != nil {
		return nil, err
	}
	bundle, err := e.buildIdentityBundle(op, did, exportPassword, storePassword)
	if err != nil {
		return nil, err
	}
	data, err = json.Marshal(bundle)
	if err != nil {
		return nil, contracts.NewError(op, did.String(), contracts.ErrInvalidArgument, err)
	}
	e.logger.Info("identity exported", "operation", op, "did", did.String(),
		"credentials", len(bundle.Credentials), "keys", len(bundle.PrivateKeys))
	return data, nil
}

func (e *Engine) buildIdentityBundle(op string, did models.DID, exportPassword, storePassword string) (*identityBundle, error) {
	subject := did.String()
	doc, err := e.storage.LoadDocument(did)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, contracts.NewError(op, subject, contracts.ErrNotFound, nil)
	}
	if err != nil {
		return nil, contracts.StorageFailure(op, err)
	}

	fp := newFingerprint(exportPassword)
	b := &identityBundle{
		Type:    ExportType,
		ID:      subject,
		Created: e.now().UTC().Format(createdLayout),
	}
	fp.addString(b.Type)
	fp.addString(b.ID)
	fp.addString(b.Created)

	if b.Document, err = doc.CanonicalJSON(); err != nil {
		return nil, contracts.NewError(op, subject, contracts.ErrInvalidArgument, err)
	}
	fp.add(b.Document)

	credIDs, err := e.storage.ListCredentials(did)
	if err != nil {
		return nil, contracts.StorageFailure(op, err)
	}
	var credMetas []credentialMeta
	for _, id := range credIDs {
		cred, err := e.storage.LoadCredential(did, id)
		if err != nil {
			return nil, contracts.StorageFailure(op, err)
		}
		raw, err := cred.CanonicalJSON()
		if err != nil {
			return nil, contracts.NewError(op, id.String(), contracts.ErrInvalidArgument, err)
		}
		fp.add(raw)
		b.Credentials = append(b.Credentials, raw)
		if !cred.Meta.IsEmpty() {
			meta, err := json.Marshal(cred.Meta)
			if err != nil {
				return nil, contracts.NewError(op, id.String(), contracts.ErrInvalidArgument, err)
			}
			credMetas = append(credMetas, credentialMeta{ID: id.String(), Metadata: meta})
		}
	}

	for _, pk := range doc.PublicKeys {
		enc, err := e.storage.LoadPrivateKey(did, pk.ID)
		if errors.Is(err, contracts.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, contracts.StorageFailure(op, err)
		}
		exported, err := e.recrypt(op, pk.ID.String(), enc, storePassword, exportPassword)
		if err != nil {
			return nil, err
		}
		entry := keyEntry{ID: pk.ID.String(), Key: exported}
		fp.addString(entry.ID)
		fp.addString(entry.Key)
		b.PrivateKeys = append(b.PrivateKeys, entry)
	}

	if !doc.Meta.IsEmpty() || len(credMetas) > 0 {
		b.Metadata = &metadataBlock{Credentials: credMetas}
		if !doc.Meta.IsEmpty() {
			if b.Metadata.Document, err = json.Marshal(doc.Meta); err != nil {
				return nil, contracts.NewError(op, subject, contracts.ErrInvalidArgument, err)
			}
			fp.add(b.Metadata.Document)
		}
		for _, cm := range credMetas {
			fp.addString(cm.ID)
			fp.add(cm.Metadata)
		}
	}
	b.Fingerprint = fp.String()
	return b, nil
}

// stagedIdentity is a verified bundle with keys already re-encrypted to the
// store password, ready to be written.
type stagedIdentity struct {
	doc   *models.Document
	creds []*models.Credential
	keys  []stagedKey
}

type stagedKey struct {
	id        models.DIDURL
	encrypted string
}

// ImportDID verifies the bundle fingerprint and document proof before it
// writes anything, then stores the identity and invalidates its cache.
func (e *Engine) ImportDID(data []byte, exportPassword, storePassword string) (did models.DID, err error) {
	const op = "importDID"
	defer func() { err = e.finish(op, err) }()

	if err := requirePasswords(op, exportPassword, storePassword); err != nil {
		return models.DID{}, err
	}
	staged, err := e.stageIdentity(op, data, exportPassword, storePassword)
	if err != nil {
		return models.DID{}, err
	}
	if err := e.commitIdentity(op, staged); err != nil {
		return models.DID{}, err
	}
	return staged.doc.Subject, nil
}

func (e *Engine) stageIdentity(op string, data []byte, exportPassword, storePassword string) (*stagedIdentity, error) {
	b, err := decodeIdentityBundle(op, data)
	if err != nil {
		return nil, err
	}

	// The digest covers the bytes as read; nothing is interpreted until it matches.
	fp := newFingerprint(exportPassword)
	fp.addString(b.Type)
	fp.addString(b.ID)
	fp.addString(b.Created)
	fp.add(b.Document)
	for _, raw := range b.Credentials {
		fp.add(raw)
	}
	for _, k := range b.PrivateKeys {
		fp.addString(k.ID)
		fp.addString(k.Key)
	}
	if b.Metadata != nil {
		fp.add(b.Metadata.Document)
		for _, cm := range b.Metadata.Credentials {
			fp.addString(cm.ID)
			fp.add(cm.Metadata)
		}
	}
	if !fp.matches(b.Fingerprint) {
		return nil, integrityError(op, "", "fingerprint mismatch")
	}

	did, err := models.ParseDID(b.ID)
	if err != nil {
		return nil, contracts.NewError(op, "", contracts.ErrInvalidArgument, err)
	}
	subject := did.String()
	if _, err := time.Parse(time.RFC3339, b.Created); err != nil {
		return nil, contracts.NewError(op, subject, contracts.ErrInvalidArgument, err)
	}
	if len(b.Document) == 0 {
		return nil, contracts.Errorf(op, subject, contracts.ErrInvalidArgument, "bundle has no document")
	}
	var doc models.Document
	if err := json.Unmarshal(b.Document, &doc); err != nil {
		return nil, contracts.NewError(op, subject, contracts.ErrInvalidArgument, err)
	}

	st := &stagedIdentity{doc: &doc}
	byID := make(map[models.DIDURL]*models.Credential, len(b.Credentials))
	for _, raw := range b.Credentials {
		var cred models.Credential
		if err := json.Unmarshal(raw, &cred); err != nil {
			return nil, contracts.NewError(op, subject, contracts.ErrInvalidArgument, err)
		}
		if cred.Owner() != did {
			return nil, integrityError(op, cred.ID.String(), "credential belongs to %s", cred.Owner())
		}
		st.creds = append(st.creds, &cred)
		byID[cred.ID] = &cred
	}

	if b.Metadata != nil {
		if len(b.Metadata.Document) > 0 {
			if err := json.Unmarshal(b.Metadata.Document, &doc.Meta); err != nil {
				return nil, contracts.NewError(op, subject, contracts.ErrInvalidArgument, err)
			}
		}
		for _, cm := range b.Metadata.Credentials {
			id, err := models.ParseDIDURL(cm.ID, did)
			if err != nil {
				return nil, contracts.NewError(op, subject, contracts.ErrInvalidArgument, err)
			}
			var meta models.Metadata
			if err := json.Unmarshal(cm.Metadata, &meta); err != nil {
				return nil, contracts.NewError(op, id.String(), contracts.ErrInvalidArgument, err)
			}
			if cred, ok := byID[id]; ok {
				cred.Meta = meta
			}
		}
	}

	if doc.Subject != did {
		return nil, integrityError(op, subject, "document subject is %s", doc.Subject)
	}
	if err := didoc.Verify(&doc); err != nil {
		return nil, err
	}

	for _, k := range b.PrivateKeys {
		id, err := models.ParseDIDURL(k.ID, did)
		if err != nil {
			return nil, contracts.NewError(op, subject, contracts.ErrInvalidArgument, err)
		}
		enc, err := e.recrypt(op, id.String(), k.Key, exportPassword, storePassword)
		if err != nil {
			return nil, err
		}
		st.keys = append(st.keys, stagedKey{id: id, encrypted: enc})
	}
	return st, nil
}

// decodeIdentityBundle reads the bundle envelope. A bundle that no longer
// parses, or whose member names were altered, is reported as corrupt.
func decodeIdentityBundle(op string, data []byte) (*identityBundle, error) {
	var b identityBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, integrityError(op, "", "bundle is corrupt: %v", err)
	}
	if b.Type != ExportType {
		return nil, contracts.Errorf(op, "", contracts.ErrInvalidArgument, "unknown export type %q", b.Type)
	}
	var members struct {
		PrivateKeys []json.RawMessage `json:"privatekey"`
		Metadata    json.RawMessage   `json:"metadata"`
	}
	err := checkMembers(data, "type", "id", "created", "document", "credential", "privatekey", "metadata", "fingerprint")
	if err == nil {
		err = json.Unmarshal(data, &members)
	}
	for i := 0; err == nil && i < len(members.PrivateKeys); i++ {
		err = checkMembers(members.PrivateKeys[i], "id", "key")
	}
	if err == nil && len(members.Metadata) > 0 {
		var meta struct {
			Credentials []json.RawMessage `json:"credential"`
		}
		err = checkMembers(members.Metadata, "document", "credential")
		if err == nil {
			err = json.Unmarshal(members.Metadata, &meta)
		}
		for i := 0; err == nil && i < len(meta.Credentials); i++ {
			err = checkMembers(meta.Credentials[i], "id", "metadata")
		}
	}
	if err != nil {
		return nil, integrityError(op, "", "bundle is corrupt: %v", err)
	}
	return &b, nil
}

func (e *Engine) commitIdentity(op string, st *stagedIdentity) error {
	did := st.doc.Subject
	if e.invalidator != nil {
		defer e.invalidator.Invalidate(did)
	}
	if err := e.storage.StoreDocument(st.doc); err != nil {
		return contracts.StorageFailure(op, err)
	}
	if err := e.storage.StoreDocumentMeta(did, st.doc.Meta); err != nil {
		return contracts.StorageFailure(op, err)
	}
	for _, cred := range st.creds {
		if err := e.storage.StoreCredential(cred); err != nil {
			return contracts.StorageFailure(op, err)
		}
		if err := e.storage.StoreCredentialMeta(did, cred.ID, cred.Meta); err != nil {
			return contracts.StorageFailure(op, err)
		}
	}
	for _, k := range st.keys {
		if err := e.storage.StorePrivateKey(did, k.id, k.encrypted); err != nil {
			return contracts.StorageFailure(op, err)
		}
	}
	e.logger.Info("identity imported", "operation", op, "did", did.String(),
		"credentials", len(st.creds), "keys", len(st.keys))
	return nil
}
