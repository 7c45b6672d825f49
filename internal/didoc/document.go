package didoc

import (
	"encoding/base64"
	"fmt"
	"time"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/identity"
	"did-vault/go-backend/pkg/models"

	"github.com/mr-tron/base58"
)

const (
	PrimaryKeyFragment = "primary"
	DefaultValidity    = 5 * 365 * 24 * time.Hour
)

var sigEncoding = base64.RawURLEncoding

// SignFunc signs the canonical unsigned bytes of a document.
type SignFunc func(data ...[]byte) ([]byte, error)

// DIDFor returns the DID a public key controls.
func DIDFor(publicKey []byte) models.DID {
	return models.NewDID(identity.Address(publicKey))
}

// Build returns a minimal self-signed document for key with a single
// authentication key named "primary".
func Build(key *identity.DerivedKey, now time.Time) (*models.Document, error) {
	did := DIDFor(key.PublicKey())
	keyID := models.NewDIDURL(did, PrimaryKeyFragment)
	now = now.UTC().Truncate(time.Second)
	doc := &models.Document{
		Subject: did,
		PublicKeys: []models.PublicKey{{
			ID:              keyID,
			Type:            models.PublicKeyType,
			Controller:      did,
			PublicKeyBase58: base58.Encode(key.PublicKey()),
		}},
		Authentication: []models.DIDURL{keyID},
		Expires:        now.Add(DefaultValidity),
	}
	if err := Seal(doc, keyID, key.Sign, now); err != nil {
		return nil, err
	}
	return doc, nil
}

// Seal replaces the proof of doc with a fresh signature by creator.
func Seal(doc *models.Document, creator models.DIDURL, sign SignFunc, now time.Time) error {
	if !doc.IsAuthenticationKey(creator) {
		return contracts.Errorf("didoc.seal", creator.String(), contracts.ErrKeyNotFound, "creator is not an authentication key")
	}
	unsigned, err := doc.UnsignedJSON()
	if err != nil {
		return contracts.NewError("didoc.seal", doc.Subject.String(), contracts.ErrInvalidArgument, err)
	}
	sig, err := sign(unsigned)
	if err != nil {
		return contracts.NewError("didoc.seal", doc.Subject.String(), contracts.ErrInvalidKeyMaterial, err)
	}
	doc.Proof = &models.Proof{
		Type:           models.ProofType,
		Created:        now.UTC().Truncate(time.Second),
		Creator:        creator,
		SignatureValue: sigEncoding.EncodeToString(sig),
	}
	return nil
}

// Verify checks that the proof was made by one of the document's
// authentication keys over its canonical unsigned form.
func Verify(doc *models.Document) error {
	if doc == nil || doc.Proof == nil {
		return contracts.Errorf("didoc.verify", subjectOf(doc), contracts.ErrIntegrity, "document has no proof")
	}
	pub, err := PublicKeyBytes(doc, doc.Proof.Creator)
	if err != nil || !doc.IsAuthenticationKey(doc.Proof.Creator) {
		return contracts.Errorf("didoc.verify", doc.Subject.String(), contracts.ErrIntegrity, "proof creator %s is not an authentication key", doc.Proof.Creator)
	}
	sig, err := sigEncoding.DecodeString(doc.Proof.SignatureValue)
	if err != nil {
		return contracts.Errorf("didoc.verify", doc.Subject.String(), contracts.ErrIntegrity, "malformed signature")
	}
	unsigned, err := doc.UnsignedJSON()
	if err != nil {
		return contracts.NewError("didoc.verify", doc.Subject.String(), contracts.ErrIntegrity, err)
	}
	if !identity.Verify(pub, sig, unsigned) {
		return contracts.Errorf("didoc.verify", doc.Subject.String(), contracts.ErrIntegrity, "signature mismatch")
	}
	return nil
}

// DefaultKey is the authentication key whose public key hashes to the
// subject's method-specific id.
func DefaultKey(doc *models.Document) (models.DIDURL, bool) {
	for _, pk := range doc.AuthenticationKeys() {
		if !pk.Controller.IsZero() && pk.Controller != doc.Subject {
			continue
		}
		pub, err := base58.Decode(pk.PublicKeyBase58)
		if err != nil {
			continue
		}
		if identity.Address(pub) == doc.Subject.MethodSpecificID {
			return pk.ID, true
		}
	}
	return models.DIDURL{}, false
}

func PublicKeyBytes(doc *models.Document, id models.DIDURL) ([]byte, error) {
	pk, ok := doc.PublicKey(id)
	if !ok {
		return nil, contracts.Errorf("didoc.publicKey", id.String(), contracts.ErrKeyNotFound, "no such public key")
	}
	pub, err := base58.Decode(pk.PublicKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInvalidKeyMaterial, err)
	}
	return pub, nil
}

func subjectOf(doc *models.Document) string {
	if doc == nil {
		return ""
	}
	return doc.Subject.String()
}
