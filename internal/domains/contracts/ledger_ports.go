package contracts

import (
	"context"
	"fmt"

	"did-vault/go-backend/pkg/models"
)

// Resolution conditions distinct from "not found". Both match ErrLedger.
var (
	ErrExpired     = fmt.Errorf("did expired: %w", ErrLedger)
	ErrDeactivated = fmt.Errorf("did deactivated: %w", ErrLedger)
)

// Signer signs ledger payloads with a key held in the vault.
type Signer interface {
	Sign(did models.DID, keyID models.DIDURL, storePassword string, data ...[]byte) (string, error)
}

type PublishRequest struct {
	Document      *models.Document
	PreviousTxID  string
	Confirmations int
	SignKey       models.DIDURL
	StorePassword string
	Signer        Signer
}

type DeactivateRequest struct {
	Document      *models.Document
	Confirmations int
	SignKey       models.DIDURL
	StorePassword string
	Signer        Signer
}

// DeactivateTargetRequest revokes Target on behalf of an authorized
// controller whose document is Document.
type DeactivateTargetRequest struct {
	Target        models.DID
	Document      *models.Document
	Confirmations int
	SignKey       models.DIDURL
	StorePassword string
	Signer        Signer
}

// Ledger is the authoritative DID registry.
type Ledger interface {
	// Resolve returns nil, nil when nothing is registered for did. The
	// returned document carries the ledger txid and signature in Meta.
	Resolve(ctx context.Context, did models.DID, force bool) (*models.Document, error)
	Create(ctx context.Context, req PublishRequest) (string, error)
	Update(ctx context.Context, req PublishRequest) (string, error)
	Deactivate(ctx context.Context, req DeactivateRequest) (string, error)
	DeactivateTarget(ctx context.Context, req DeactivateTargetRequest) (string, error)
}
