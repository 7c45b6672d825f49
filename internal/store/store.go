package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"did-vault/go-backend/internal/cache"
	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/platform/metrics"
	"did-vault/go-backend/internal/securestore"
)

type Options struct {
	Storage contracts.Storage
	// Cache is required; pass cache.Disabled() to run without one.
	Cache *cache.Cache
	Codec *securestore.Codec
	// Ledger is only needed for PublishDID and DeactivateDID.
	Ledger  contracts.Ledger
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Store is the identity store: root identity lifecycle, per-DID documents
// and credentials, and custody of encrypted private keys.
type Store struct {
	// mu serializes cursor read-modify-write.
	mu sync.Mutex

	storage contracts.Storage
	cache   *cache.Cache
	codec   *securestore.Codec
	ledger  contracts.Ledger
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(opts Options) (*Store, error) {
	if opts.Storage == nil {
		return nil, contracts.Errorf("store.new", "", contracts.ErrInvalidArgument, "storage is required")
	}
	if opts.Cache == nil {
		return nil, contracts.Errorf("store.new", "", contracts.ErrInvalidArgument, "cache is required")
	}
	codec := opts.Codec
	if codec == nil {
		codec = securestore.NewCodec(securestore.DefaultKDFParams())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		storage: opts.Storage,
		cache:   opts.Cache,
		codec:   codec,
		ledger:  opts.Ledger,
		logger:  logger.With("component", "store"),
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

func (s *Store) Storage() contracts.Storage {
	return s.storage
}

func (s *Store) Codec() *securestore.Codec {
	return s.codec
}

func (s *Store) Ledger() contracts.Ledger {
	return s.ledger
}

func (s *Store) Logger() *slog.Logger {
	return s.logger
}

func (s *Store) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *Store) Now() time.Time {
	return s.now()
}

// finish records the outcome of a public operation.
func (s *Store) finish(op string, err error) error {
	s.metrics.Observe(op, err)
	if err != nil {
		s.logger.Debug("operation failed", "operation", op, "error", err)
	}
	return err
}

func requirePassword(op, password string) error {
	if strings.TrimSpace(password) == "" {
		return contracts.Errorf(op, "", contracts.ErrInvalidArgument, "store password is required")
	}
	return nil
}
