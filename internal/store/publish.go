package store

import (
	"context"
	"errors"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/pkg/models"
)

type PublishRequest struct {
	DID           models.DID
	Confirmations int
	// SignKey defaults to the document's default key.
	SignKey models.DIDURL
	// Force publishes even when the local copy is not based on the
	// latest ledger copy.
	Force         bool
	StorePassword string
}

type DeactivateRequest struct {
	DID models.DID
	// Target, when set, is a foreign DID that lists DID as an authorized
	// controller.
	Target        models.DID
	Confirmations int
	SignKey       models.DIDURL
	StorePassword string
}

func (s *Store) requireLedger(op string) error {
	if s.ledger == nil {
		return contracts.Errorf(op, "", contracts.ErrInvalidArgument, "no ledger configured")
	}
	return nil
}

// PublishDID creates or updates the ledger copy of a locally stored DID and
// returns the transaction id.
func (s *Store) PublishDID(ctx context.Context, req PublishRequest) (txid string, err error) {
	const op = "publishDID"
	defer func() { err = s.finish(op, err) }()

	if err := s.requireLedger(op); err != nil {
		return "", err
	}
	if err := requirePassword(op, req.StorePassword); err != nil {
		return "", err
	}
	did := req.DID
	doc, err := s.LoadDocument(did)
	if err != nil {
		return "", err
	}
	if doc.IsDeactivated() {
		return "", contracts.Errorf(op, did.String(), contracts.ErrInvalidArgument, "did is deactivated")
	}
	signKey, err := signingKey(op, doc, req.SignKey)
	if err != nil {
		return "", err
	}

	resolved, err := s.ledger.Resolve(ctx, did, true)
	if errors.Is(err, contracts.ErrDeactivated) {
		if merr := s.updateDocumentMeta(op, did, models.Metadata{Deactivated: true}); merr != nil {
			return "", merr
		}
		return "", contracts.NewError(op, did.String(), contracts.ErrLedger, err)
	}
	if err != nil {
		return "", contracts.LedgerFailure(op, did.String(), err)
	}

	ledgerReq := contracts.PublishRequest{
		Document:      doc,
		Confirmations: req.Confirmations,
		SignKey:       signKey,
		StorePassword: req.StorePassword,
		Signer:        s,
	}
	if resolved == nil {
		txid, err = s.ledger.Create(ctx, ledgerReq)
	} else {
		if !req.Force {
			if err := checkBasedOnLedger(op, doc, resolved); err != nil {
				return "", err
			}
		}
		ledgerReq.PreviousTxID = resolved.TransactionID()
		txid, err = s.ledger.Update(ctx, ledgerReq)
	}
	if err != nil {
		return "", contracts.LedgerFailure(op, did.String(), err)
	}

	if err := s.updateDocumentMeta(op, did, models.Metadata{
		TransactionID: txid,
		Signature:     doc.Signature(),
		Updated:       s.now().UTC(),
	}); err != nil {
		return "", err
	}
	s.logger.Info("did published", "operation", op, "did", did.String(), "created", resolved == nil, "forced", req.Force)
	return txid, nil
}

// checkBasedOnLedger rejects an update whose local lineage diverged from
// the ledger. A recorded txid or signature must match the resolved copy, and
// at least one of them must be recorded.
func checkBasedOnLedger(op string, local, resolved *models.Document) error {
	if local.Meta.TransactionID == "" && local.Meta.Signature == "" {
		return contracts.Errorf(op, local.Subject.String(), contracts.ErrLedger, "local copy has no ledger lineage")
	}
	if local.Meta.TransactionID != "" && local.Meta.TransactionID != resolved.TransactionID() {
		return contracts.Errorf(op, local.Subject.String(), contracts.ErrLedger, "local copy is not based on the latest ledger transaction")
	}
	if local.Meta.Signature != "" && local.Meta.Signature != resolved.Signature() {
		return contracts.Errorf(op, local.Subject.String(), contracts.ErrLedger, "local copy is not based on the latest ledger signature")
	}
	return nil
}

// DeactivateDID deactivates a DID on the ledger. With Target set it signs
// with an authorization key Target granted to DID.
func (s *Store) DeactivateDID(ctx context.Context, req DeactivateRequest) (txid string, err error) {
	const op = "deactivateDID"
	defer func() { err = s.finish(op, err) }()

	if err := s.requireLedger(op); err != nil {
		return "", err
	}
	if err := requirePassword(op, req.StorePassword); err != nil {
		return "", err
	}
	if req.Target.IsZero() {
		return s.deactivateSelf(ctx, op, req)
	}
	return s.deactivateTarget(ctx, op, req)
}

func (s *Store) deactivateSelf(ctx context.Context, op string, req DeactivateRequest) (string, error) {
	did := req.DID
	doc, err := s.ledger.Resolve(ctx, did, true)
	if err != nil {
		return "", contracts.LedgerFailure(op, did.String(), err)
	}
	if doc == nil {
		if doc, err = s.LoadDocument(did); err != nil {
			return "", err
		}
	}
	signKey, err := signingKey(op, doc, req.SignKey)
	if err != nil {
		return "", err
	}
	txid, err := s.ledger.Deactivate(ctx, contracts.DeactivateRequest{
		Document:      doc,
		Confirmations: req.Confirmations,
		SignKey:       signKey,
		StorePassword: req.StorePassword,
		Signer:        s,
	})
	if err != nil {
		return "", contracts.LedgerFailure(op, did.String(), err)
	}
	if ok, _ := s.storage.ContainsDocument(did); ok {
		if err := s.updateDocumentMeta(op, did, models.Metadata{Deactivated: true}); err != nil {
			return "", err
		}
	}
	s.logger.Info("did deactivated", "operation", op, "did", did.String())
	return txid, nil
}

func (s *Store) deactivateTarget(ctx context.Context, op string, req DeactivateRequest) (string, error) {
	doc, err := s.LoadDocument(req.DID)
	if err != nil {
		return "", err
	}
	signKey, err := signingKey(op, doc, req.SignKey)
	if err != nil {
		return "", err
	}
	signer, _ := doc.PublicKey(signKey)

	target, err := s.ledger.Resolve(ctx, req.Target, true)
	if err != nil {
		return "", contracts.LedgerFailure(op, req.Target.String(), err)
	}
	if target == nil {
		return "", contracts.NewError(op, req.Target.String(), contracts.ErrNotFound, nil)
	}
	authorized := false
	for _, pk := range target.AuthorizationKeys() {
		if pk.Controller == req.DID && pk.PublicKeyBase58 == signer.PublicKeyBase58 {
			authorized = true
			break
		}
	}
	if !authorized {
		return "", contracts.Errorf(op, req.Target.String(), contracts.ErrKeyNotFound, "no authorization key granted to %s", req.DID)
	}
	txid, err := s.ledger.DeactivateTarget(ctx, contracts.DeactivateTargetRequest{
		Target:        req.Target,
		Document:      doc,
		Confirmations: req.Confirmations,
		SignKey:       signKey,
		StorePassword: req.StorePassword,
		Signer:        s,
	})
	if err != nil {
		return "", contracts.LedgerFailure(op, req.Target.String(), err)
	}
	if ok, _ := s.storage.ContainsDocument(req.Target); ok {
		if err := s.updateDocumentMeta(op, req.Target, models.Metadata{Deactivated: true}); err != nil {
			return "", err
		}
	}
	s.logger.Info("did deactivated by controller", "operation", op, "did", req.Target.String(), "controller", req.DID.String())
	return txid, nil
}
