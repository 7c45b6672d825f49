package models

import (
	"encoding/json"
	"slices"
	"time"
)

const (
	PublicKeyType = "ECDSAsecp256r1"
	ProofType     = "ECDSAsecp256r1"
)

type PublicKey struct {
	ID              DIDURL `json:"id"`
	Type            string `json:"type"`
	Controller      DID    `json:"controller"`
	PublicKeyBase58 string `json:"publicKeyBase58"`
}

type Proof struct {
	Type           string    `json:"type"`
	Created        time.Time `json:"created"`
	Creator        DIDURL    `json:"creator"`
	SignatureValue string    `json:"signatureValue"`
}

// Document is the signed description of one DID. Meta is local state and is
// excluded from the canonical form.
type Document struct {
	Subject        DID          `json:"id"`
	PublicKeys     []PublicKey  `json:"publicKey"`
	Authentication []DIDURL     `json:"authentication,omitempty"`
	Authorization  []DIDURL     `json:"authorization,omitempty"`
	Credentials    []Credential `json:"verifiableCredential,omitempty"`
	Expires        time.Time    `json:"expires,omitzero"`
	Proof          *Proof       `json:"proof,omitempty"`

	Meta Metadata `json:"-"`
}

// CanonicalJSON is the byte form used for export and proof digests.
func (d *Document) CanonicalJSON() ([]byte, error) {
	return json.Marshal(d)
}

// UnsignedJSON is the canonical form without proof; it is what gets signed.
func (d *Document) UnsignedJSON() ([]byte, error) {
	unsigned := *d
	unsigned.Proof = nil
	return json.Marshal(&unsigned)
}

func (d *Document) PublicKey(id DIDURL) (PublicKey, bool) {
	for _, pk := range d.PublicKeys {
		if pk.ID == id {
			return pk, true
		}
	}
	return PublicKey{}, false
}

func (d *Document) IsAuthenticationKey(id DIDURL) bool {
	if !slices.Contains(d.Authentication, id) {
		return false
	}
	_, ok := d.PublicKey(id)
	return ok
}

func (d *Document) IsAuthorizationKey(id DIDURL) bool {
	if !slices.Contains(d.Authorization, id) {
		return false
	}
	_, ok := d.PublicKey(id)
	return ok
}

func (d *Document) AuthenticationKeys() []PublicKey {
	return d.keysFor(d.Authentication)
}

func (d *Document) AuthorizationKeys() []PublicKey {
	return d.keysFor(d.Authorization)
}

func (d *Document) keysFor(ids []DIDURL) []PublicKey {
	out := make([]PublicKey, 0, len(ids))
	for _, id := range ids {
		if pk, ok := d.PublicKey(id); ok {
			out = append(out, pk)
		}
	}
	return out
}

// Signature returns the proof signature, or "" for an unsigned document.
func (d *Document) Signature() string {
	if d.Proof == nil {
		return ""
	}
	return d.Proof.SignatureValue
}

func (d *Document) TransactionID() string {
	return d.Meta.TransactionID
}

func (d *Document) IsDeactivated() bool {
	return d.Meta.Deactivated
}

func (d *Document) IsExpired(now time.Time) bool {
	return !d.Expires.IsZero() && now.After(d.Expires)
}

// ModifiedSinceSync reports whether the local proof differs from the last
// signature seen on the ledger.
func (d *Document) ModifiedSinceSync() bool {
	return d.Meta.Signature == "" || d.Meta.Signature != d.Signature()
}

func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.PublicKeys = slices.Clone(d.PublicKeys)
	out.Authentication = slices.Clone(d.Authentication)
	out.Authorization = slices.Clone(d.Authorization)
	if d.Credentials != nil {
		out.Credentials = make([]Credential, len(d.Credentials))
		for i := range d.Credentials {
			out.Credentials[i] = *d.Credentials[i].Clone()
		}
	}
	if d.Proof != nil {
		proof := *d.Proof
		out.Proof = &proof
	}
	out.Meta = d.Meta.Clone()
	return &out
}
