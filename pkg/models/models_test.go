package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseDID(t *testing.T) {
	did, err := ParseDID(" did:elastos:iXyZ ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if did != NewDID("iXyZ") || did.String() != "did:elastos:iXyZ" {
		t.Fatalf("unexpected did %#v", did)
	}
	for _, bad := range []string{"", "did:elastos", "did::x", "foo:elastos:x", "did:elastos:x#k"} {
		if _, err := ParseDID(bad); !errors.Is(err, ErrMalformedDID) {
			t.Fatalf("expected malformed for %q, got %v", bad, err)
		}
	}
}

func TestParseDIDURL(t *testing.T) {
	base := NewDID("iA")
	rel, err := ParseDIDURL("#primary", base)
	if err != nil || rel.String() != "did:elastos:iA#primary" {
		t.Fatalf("relative url: %v %q", err, rel.String())
	}
	abs, err := ParseDIDURL("did:elastos:iB#k2", base)
	if err != nil || abs.DID != NewDID("iB") || abs.Fragment != "k2" {
		t.Fatalf("absolute url: %v %#v", err, abs)
	}
	for _, bad := range []string{"#", "did:elastos:iA", "did:elastos:iA#"} {
		if _, err := ParseDIDURL(bad, base); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if _, err := ParseDIDURL("#k", DID{}); err == nil {
		t.Fatal("relative url without base must fail")
	}
}

func TestDIDTextRoundTripInJSON(t *testing.T) {
	type holder struct {
		DID DID    `json:"did"`
		Key DIDURL `json:"key"`
	}
	in := holder{DID: NewDID("iA"), Key: NewDIDURL(NewDID("iA"), "#primary")}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"did":"did:elastos:iA","key":"did:elastos:iA#primary"}` {
		t.Fatalf("unexpected json %s", data)
	}
	var out holder
	if err := json.Unmarshal(data, &out); err != nil || out != in {
		t.Fatalf("unmarshal: %v %#v", err, out)
	}
}

func TestMetadataMerge(t *testing.T) {
	base := Metadata{Alias: "old", Extra: map[string]string{"a": "1"}, TransactionID: "tx1"}
	merged := base.Merge(Metadata{Extra: map[string]string{"b": "2", "a": ""}, Signature: "sig"})
	if merged.Alias != "old" || merged.TransactionID != "tx1" || merged.Signature != "sig" {
		t.Fatalf("unexpected merge %+v", merged)
	}
	if merged.Extra["a"] != "1" || merged.Extra["b"] != "2" {
		t.Fatalf("extra keys not merged: %v", merged.Extra)
	}
	if _, leaked := base.Extra["b"]; leaked {
		t.Fatal("merge must not modify the receiver")
	}
	if !(Metadata{}).IsEmpty() || merged.IsEmpty() {
		t.Fatal("IsEmpty mismatch")
	}
}

func TestCredentialCloneIsDeep(t *testing.T) {
	owner := NewDID("iA")
	cred := &Credential{
		ID:      NewDIDURL(owner, "profile"),
		Types:   []string{"ProfileCredential"},
		Subject: CredentialSubject{ID: owner, Claims: map[string]string{"name": "alice"}},
		Proof:   &CredentialProof{Type: ProofType, Signature: "s"},
	}
	clone := cred.Clone()
	clone.Types[0] = "Other"
	clone.Subject.Claims["name"] = "mallory"
	clone.Proof.Signature = "x"
	if cred.Types[0] != "ProfileCredential" || cred.Subject.Claims["name"] != "alice" || cred.Proof.Signature != "s" {
		t.Fatalf("clone shares state with original: %+v", cred)
	}
	if cred.Owner() != owner || !cred.HasType("ProfileCredential") {
		t.Fatal("owner/type accessors mismatch")
	}
}
