package models

import (
	"errors"
	"strings"
)

const (
	DIDScheme = "did"
	DIDMethod = "elastos"
)

var ErrMalformedDID = errors.New("malformed did")

// DID is a method-tagged identifier. The zero value is not a valid DID.
type DID struct {
	Method           string
	MethodSpecificID string
}

func NewDID(methodSpecificID string) DID {
	return DID{Method: DIDMethod, MethodSpecificID: methodSpecificID}
}

// ParseDID accepts "did:<method>:<id>".
func ParseDID(s string) (DID, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != DIDScheme || parts[1] == "" || parts[2] == "" {
		return DID{}, ErrMalformedDID
	}
	if strings.ContainsAny(parts[2], "#/?") {
		return DID{}, ErrMalformedDID
	}
	return DID{Method: parts[1], MethodSpecificID: parts[2]}, nil
}

func (d DID) String() string {
	if d.IsZero() {
		return ""
	}
	return DIDScheme + ":" + d.Method + ":" + d.MethodSpecificID
}

func (d DID) IsZero() bool {
	return d.Method == "" && d.MethodSpecificID == ""
}

func (d DID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = DID{}
		return nil
	}
	parsed, err := ParseDID(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DIDURL locates a key or credential inside a DID: did:<method>:<id>#<fragment>.
type DIDURL struct {
	DID      DID
	Fragment string
}

func NewDIDURL(did DID, fragment string) DIDURL {
	return DIDURL{DID: did, Fragment: strings.TrimPrefix(fragment, "#")}
}

// ParseDIDURL parses an absolute DID URL, or a relative "#fragment" against base.
func ParseDIDURL(s string, base DID) (DIDURL, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		if base.IsZero() || len(s) == 1 {
			return DIDURL{}, ErrMalformedDID
		}
		return DIDURL{DID: base, Fragment: s[1:]}, nil
	}
	idx := strings.IndexByte(s, '#')
	if idx < 0 || idx == len(s)-1 {
		return DIDURL{}, ErrMalformedDID
	}
	did, err := ParseDID(s[:idx])
	if err != nil {
		return DIDURL{}, err
	}
	return DIDURL{DID: did, Fragment: s[idx+1:]}, nil
}

func (u DIDURL) String() string {
	if u.IsZero() {
		return ""
	}
	return u.DID.String() + "#" + u.Fragment
}

func (u DIDURL) IsZero() bool {
	return u.DID.IsZero() && u.Fragment == ""
}

func (u DIDURL) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *DIDURL) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*u = DIDURL{}
		return nil
	}
	parsed, err := ParseDIDURL(string(b), DID{})
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
