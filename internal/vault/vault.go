// Package vault assembles storage, codec, cache, ledger client, syncer and
// backup engine from a config.Config, and runs vault operations in the
// background one at a time.
package vault

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"did-vault/go-backend/internal/backup"
	"did-vault/go-backend/internal/cache"
	"did-vault/go-backend/internal/config"
	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/ledger/simledger"
	"did-vault/go-backend/internal/platform/metrics"
	"did-vault/go-backend/internal/platform/privacylog"
	"did-vault/go-backend/internal/platform/ratelimiter"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/internal/storage"
	"did-vault/go-backend/internal/store"
	"did-vault/go-backend/internal/syncer"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

type Options struct {
	Logger *slog.Logger
	// Registerer receives the vault metrics; nil disables them.
	Registerer prometheus.Registerer
	// Ledger replaces the simulated ledger built from the config.
	Ledger contracts.Ledger
	Now    func() time.Time
}

type Vault struct {
	// mu guards tail, the turn of the most recently submitted task.
	mu   sync.Mutex
	tail chan struct{}

	cfg     config.Config
	storage contracts.Storage
	store   *store.Store
	syncer  *syncer.Syncer
	backup  *backup.Engine
	ledger  contracts.Ledger
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func Open(cfg config.Config, opts Options) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := privacylog.WrapLogger(opts.Logger, privacylog.Options{PlainIDs: cfg.Log.PlainIDs})

	var m *metrics.Metrics
	if opts.Registerer != nil {
		var err error
		if m, err = metrics.New(opts.Registerer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	st, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	v, err := assemble(cfg, opts, st, m, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info("vault opened", "component", "vault", "operation", "open",
		"backend", cfg.Storage.Backend, "cache", cfg.Cache.Enabled, "gap_limit", cfg.Sync.GapLimit)
	return v, nil
}

func openStorage(cfg config.Config, logger *slog.Logger) (contracts.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	case config.BackendSnapshot:
		return storage.NewSnapshotStore(securestore.FileOptions{
			Path:       cfg.StoragePath(),
			Passphrase: cfg.Storage.Passphrase,
			KDF:        cfg.KDF,
		})
	case config.BackendBadger:
		dir := cfg.StoragePath()
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, contracts.StorageFailure("vault.open", err)
		}
		return storage.OpenBadgerStore(storage.BadgerOptions{Dir: dir, Logger: logger})
	default:
		return nil, contracts.Errorf("vault.open", "", contracts.ErrInvalidArgument, "unknown storage backend %q", cfg.Storage.Backend)
	}
}

func assemble(cfg config.Config, opts Options, st contracts.Storage, m *metrics.Metrics, logger *slog.Logger) (*Vault, error) {
	c := cache.Disabled()
	if cfg.Cache.Enabled {
		var err error
		if c, err = cache.New(cfg.Cache.Capacity, m); err != nil {
			return nil, contracts.NewError("vault.open", "", contracts.ErrInvalidArgument, err)
		}
	}

	ledger := opts.Ledger
	if ledger == nil {
		sim, err := simledger.New(simledger.Options{
			File: securestore.FileOptions{
				Path:       cfg.LedgerPath(),
				Passphrase: cfg.Ledger.Passphrase,
				KDF:        cfg.KDF,
			},
			Limiter: ratelimiter.New(cfg.Ledger.RequestsPerSecond, cfg.Ledger.Burst, 0),
			Logger:  logger,
			Now:     opts.Now,
		})
		if err != nil {
			return nil, err
		}
		ledger = sim
	}

	codec := securestore.NewCodec(cfg.KDF)
	s, err := store.New(store.Options{
		Storage: st,
		Cache:   c,
		Codec:   codec,
		Ledger:  ledger,
		Logger:  logger,
		Metrics: m,
		Now:     opts.Now,
	})
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.Sync.ResolvesPerSecond > 0 {
		burst := max(cfg.Sync.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.Sync.ResolvesPerSecond), burst)
	}
	sy, err := syncer.New(syncer.Options{
		Store:    s,
		GapLimit: cfg.Sync.GapLimit,
		Inactive: cfg.InactivePolicy(),
		Limiter:  limiter,
	})
	if err != nil {
		return nil, err
	}

	engine, err := backup.New(backup.Options{
		Storage:     st,
		Codec:       codec,
		Invalidator: s,
		Logger:      logger,
		Metrics:     m,
		Now:         opts.Now,
	})
	if err != nil {
		return nil, err
	}

	return &Vault{
		cfg:     cfg,
		storage: st,
		store:   s,
		syncer:  sy,
		backup:  engine,
		ledger:  ledger,
		metrics: m,
		logger:  logger.With("component", "vault"),
	}, nil
}

func (v *Vault) Config() config.Config      { return v.cfg }
func (v *Vault) Store() *store.Store        { return v.store }
func (v *Vault) Syncer() *syncer.Syncer     { return v.syncer }
func (v *Vault) Backup() *backup.Engine     { return v.backup }
func (v *Vault) Ledger() contracts.Ledger   { return v.ledger }
func (v *Vault) Metrics() *metrics.Metrics  { return v.metrics }
func (v *Vault) Storage() contracts.Storage { return v.storage }

// Close waits for every submitted task and releases the storage.
func (v *Vault) Close() error {
	v.mu.Lock()
	last := v.tail
	v.mu.Unlock()
	if last != nil {
		<-last
	}
	err := contracts.StorageFailure("vault.close", v.storage.Close())
	v.logger.Debug("vault closed", "operation", "close")
	return err
}
