// Package syncer reconciles the vault with the ledger by walking the
// derivation sequence until a run of unassigned indices is found.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"did-vault/go-backend/internal/didoc"
	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/identity"
	"did-vault/go-backend/internal/platform/metrics"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/internal/store"
	"did-vault/go-backend/pkg/models"

	"golang.org/x/time/rate"
)

const DefaultGapLimit = 20

// maxIndex is the first hardened index; normal derivation stops below it.
const maxIndex = uint32(1) << 31

// InactivePolicy decides how an expired or deactivated index affects the
// scan.
type InactivePolicy int

const (
	// InactiveAssigned treats the index as used: the gap counter resets and
	// the cursor moves past it. Nothing is stored locally.
	InactiveAssigned InactivePolicy = iota
	// InactiveBlank counts the index as unassigned.
	InactiveBlank
	// InactiveSkip leaves both the gap counter and the cursor alone.
	InactiveSkip
)

func (p InactivePolicy) String() string {
	switch p {
	case InactiveBlank:
		return "blank"
	case InactiveSkip:
		return "skip"
	default:
		return "assigned"
	}
}

func ParseInactivePolicy(s string) (InactivePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "assigned":
		return InactiveAssigned, nil
	case "blank":
		return InactiveBlank, nil
	case "skip":
		return InactiveSkip, nil
	default:
		return InactiveAssigned, fmt.Errorf("unknown inactive policy %q: %w", s, contracts.ErrInvalidArgument)
	}
}

// MergeFunc reconciles a locally modified document with the ledger copy.
// The result must keep the subject.
type MergeFunc func(authoritative, local *models.Document) (*models.Document, error)

// KeepLocal is the default merge: the local edit wins.
func KeepLocal(_, local *models.Document) (*models.Document, error) {
	return local, nil
}

// KeepAuthoritative discards the local edit.
func KeepAuthoritative(authoritative, _ *models.Document) (*models.Document, error) {
	return authoritative, nil
}

type Options struct {
	Store *store.Store
	// Ledger defaults to the store's ledger.
	Ledger   contracts.Ledger
	GapLimit int
	Inactive InactivePolicy
	// Limiter throttles ledger resolves; nil means unthrottled.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Report struct {
	Scanned  int
	Found    int
	Merged   int
	Inactive int
	Cursor   uint32
}

type Syncer struct {
	store    *store.Store
	ledger   contracts.Ledger
	gapLimit int
	inactive InactivePolicy
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(opts Options) (*Syncer, error) {
	if opts.Store == nil {
		return nil, contracts.Errorf("syncer.new", "", contracts.ErrInvalidArgument, "store is required")
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = opts.Store.Ledger()
	}
	if ledger == nil {
		return nil, contracts.Errorf("syncer.new", "", contracts.ErrInvalidArgument, "ledger is required")
	}
	gap := opts.GapLimit
	if gap <= 0 {
		gap = DefaultGapLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = opts.Store.Logger()
	}
	m := opts.Metrics
	if m == nil {
		m = opts.Store.Metrics()
	}
	return &Syncer{
		store:    opts.Store,
		ledger:   ledger,
		gapLimit: gap,
		inactive: opts.Inactive,
		limiter:  opts.Limiter,
		logger:   logger.With("component", "syncer"),
		metrics:  m,
	}, nil
}

type outcome int

const (
	outcomeBlank outcome = iota
	outcomeFound
	outcomeInactive
)

// Synchronize scans indices from 0 while below the cursor or while fewer
// than the gap limit consecutive indices past it were unassigned. A nil
// merge keeps local edits.
func (s *Syncer) Synchronize(ctx context.Context, merge MergeFunc, storePassword string) (report Report, err error) {
	const op = "synchronize"
	started := time.Now()
	defer func() {
		s.metrics.SyncDuration(time.Since(started))
		s.metrics.Observe(op, err)
	}()

	if strings.TrimSpace(storePassword) == "" {
		return report, contracts.Errorf(op, "", contracts.ErrInvalidArgument, "store password is required")
	}
	if merge == nil {
		merge = KeepLocal
	}
	cursor, err := s.store.Cursor()
	if err != nil {
		return report, err
	}
	report.Cursor = cursor

	err = s.store.WithRootIdentity(storePassword, func(root *identity.RootIdentity) error {
		blanks := 0
		for i := uint32(0); i < maxIndex && (i < cursor || blanks < s.gapLimit); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			result, err := s.visit(ctx, root, i, merge, storePassword, &report)
			if err != nil {
				return err
			}
			report.Scanned++

			assigned := false
			switch result {
			case outcomeFound:
				report.Found++
				assigned = true
			case outcomeInactive:
				report.Inactive++
				switch s.inactive {
				case InactiveAssigned:
					assigned = true
				case InactiveBlank:
					if i >= cursor {
						blanks++
					}
				}
			case outcomeBlank:
				if i >= cursor {
					blanks++
				}
			}
			if assigned {
				blanks = 0
				if i >= cursor {
					if err := s.store.AdvanceCursor(i + 1); err != nil {
						return err
					}
					cursor = i + 1
				}
			}
		}
		return nil
	})
	report.Cursor = cursor
	if err != nil {
		s.logger.Warn("synchronization stopped", "operation", op, "scanned", report.Scanned, "error", err)
		return report, err
	}
	s.logger.Info("synchronization finished", "operation", op,
		"scanned", report.Scanned, "found", report.Found, "merged", report.Merged,
		"inactive", report.Inactive, "cursor", report.Cursor)
	return report, nil
}

func (s *Syncer) visit(ctx context.Context, root *identity.RootIdentity, index uint32, merge MergeFunc, storePassword string, report *Report) (outcome, error) {
	const op = "sync.visit"
	key, err := root.Derive(index)
	if err != nil {
		return outcomeBlank, contracts.NewError(op, "", contracts.ErrInvalidArgument, err)
	}
	defer key.Wipe()
	did := didoc.DIDFor(key.PublicKey())

	resolved, err := s.ledger.Resolve(ctx, did, true)
	switch {
	case errors.Is(err, contracts.ErrExpired), errors.Is(err, contracts.ErrDeactivated):
		s.metrics.SyncIndex("inactive")
		s.logger.Debug("inactive identity", "operation", op, "index", index, "did", did.String(), "policy", s.inactive.String())
		return outcomeInactive, nil
	case err != nil:
		return outcomeBlank, contracts.LedgerFailure(op, did.String(), err)
	case resolved == nil:
		s.metrics.SyncIndex("blank")
		return outcomeBlank, nil
	}

	final := resolved
	local, err := s.store.LoadDocument(did)
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		local = nil
	case err != nil:
		return outcomeFound, err
	}
	if local != nil && local.ModifiedSinceSync() {
		merged, err := merge(resolved, local)
		if err != nil {
			return outcomeFound, contracts.NewError(op, did.String(), contracts.ErrMergeError, err)
		}
		if merged == nil || merged.Subject != did {
			return outcomeFound, contracts.Errorf(op, did.String(), contracts.ErrMergeError, "merge result does not describe the resolved identity")
		}
		// Remember which ledger copy the merge was based on.
		merged.Meta = merged.Meta.Merge(models.Metadata{
			TransactionID: resolved.TransactionID(),
			Signature:     resolved.Signature(),
		})
		final = merged
		report.Merged++
	}

	keyID, ok := didoc.DefaultKey(final)
	if !ok {
		keyID = models.NewDIDURL(did, didoc.PrimaryKeyFragment)
	}
	priv := key.PrivateKey()
	err = s.store.StorePrivateKey(did, keyID, priv, storePassword)
	securestore.Scrub(priv)
	if err != nil {
		return outcomeFound, err
	}
	if err := s.store.StoreDocument(final); err != nil {
		return outcomeFound, err
	}
	s.metrics.SyncIndex("found")
	s.logger.Debug("identity synchronized", "operation", op, "index", index, "did", did.String())
	return outcomeFound, nil
}
