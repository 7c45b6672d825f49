package models

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

type CredentialSubject struct {
	ID     DID               `json:"id"`
	Claims map[string]string `json:"claims,omitempty"`
}

type CredentialProof struct {
	Type               string `json:"type"`
	VerificationMethod DIDURL `json:"verificationMethod"`
	Signature          string `json:"signature"`
}

// Credential is a claim record owned by its subject DID.
type Credential struct {
	ID             DIDURL            `json:"id"`
	Types          []string          `json:"type"`
	Issuer         DID               `json:"issuer"`
	IssuanceDate   time.Time         `json:"issuanceDate"`
	ExpirationDate time.Time         `json:"expirationDate,omitzero"`
	Subject        CredentialSubject `json:"credentialSubject"`
	Proof          *CredentialProof  `json:"proof,omitempty"`

	Meta Metadata `json:"-"`
}

func (c *Credential) Owner() DID {
	return c.Subject.ID
}

func (c *Credential) CanonicalJSON() ([]byte, error) {
	return json.Marshal(c)
}

func (c *Credential) HasType(t string) bool {
	return slices.Contains(c.Types, t)
}

func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Types = slices.Clone(c.Types)
	if c.Subject.Claims != nil {
		out.Subject.Claims = maps.Clone(c.Subject.Claims)
	}
	if c.Proof != nil {
		proof := *c.Proof
		out.Proof = &proof
	}
	out.Meta = c.Meta.Clone()
	return &out
}
