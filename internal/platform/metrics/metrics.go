package metrics

import (
	"errors"
	"time"

	"did-vault/go-backend/internal/domains/contracts"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "didvault"

// Metrics groups the vault's collectors. A nil *Metrics records nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	errors       *prometheus.CounterVec
	syncIndices  *prometheus.CounterVec
	cache        *prometheus.CounterVec
	syncDuration prometheus.Histogram
}

// New registers the collectors on reg. A nil reg yields unregistered
// collectors, which is convenient in tests.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Vault operations by name and result.",
		}, []string{"operation", "result"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Vault errors by category.",
		}, []string{"category"}),
		syncIndices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_indices_total",
			Help:      "Derivation indices visited by synchronization, by outcome.",
		}, []string{"outcome"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of synchronization runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.operations, err = register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, m.errors); err != nil {
		return nil, err
	}
	if m.syncIndices, err = register(reg, m.syncIndices); err != nil {
		return nil, err
	}
	if m.cache, err = register(reg, m.cache); err != nil {
		return nil, err
	}
	if m.syncDuration, err = register(reg, m.syncDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the already registered collector when an identical one
// exists, so two vaults in one process share counters.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe records one operation outcome and, on failure, its category.
func (m *Metrics) Observe(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.errors.WithLabelValues(contracts.ErrorCategory(err)).Inc()
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) SyncIndex(outcome string) {
	if m == nil {
		return
	}
	m.syncIndices.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SyncDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(d.Seconds())
}

// CacheLookup satisfies cache.Recorder.
func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(kind, result).Inc()
}
