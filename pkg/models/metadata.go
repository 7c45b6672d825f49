package models

import (
	"maps"
	"time"
)

// Metadata is the locally kept annotation of a document or credential.
// It never travels to the ledger.
type Metadata struct {
	Alias         string            `json:"alias,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
	TransactionID string            `json:"txid,omitempty"`
	Signature     string            `json:"signature,omitempty"`
	Deactivated   bool              `json:"deactivated,omitempty"`
	Updated       time.Time         `json:"updated,omitzero"`
}

func (m Metadata) IsEmpty() bool {
	return m.Alias == "" &&
		len(m.Extra) == 0 &&
		m.TransactionID == "" &&
		m.Signature == "" &&
		!m.Deactivated &&
		m.Updated.IsZero()
}

// Merge returns m overlaid with incoming. Non-empty incoming fields win,
// extra keys are merged one by one.
func (m Metadata) Merge(incoming Metadata) Metadata {
	out := m.Clone()
	if incoming.Alias != "" {
		out.Alias = incoming.Alias
	}
	for k, v := range incoming.Extra {
		if v == "" {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]string, len(incoming.Extra))
		}
		out.Extra[k] = v
	}
	if incoming.TransactionID != "" {
		out.TransactionID = incoming.TransactionID
	}
	if incoming.Signature != "" {
		out.Signature = incoming.Signature
	}
	if incoming.Deactivated {
		out.Deactivated = true
	}
	if !incoming.Updated.IsZero() {
		out.Updated = incoming.Updated
	}
	return out
}

func (m Metadata) Clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = maps.Clone(m.Extra)
	}
	return out
}
