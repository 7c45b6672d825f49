package vault

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"did-vault/go-backend/internal/config"
	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/internal/store"
	"did-vault/go-backend/internal/testutil/fsperm"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPass     = "store-pass"
)

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Storage.Backend = backend
	cfg.KDF = securestore.FastKDFParams()
	return cfg
}

func openVault(t *testing.T, cfg config.Config, reg prometheus.Registerer) *Vault {
	t.Helper()
	v, err := Open(cfg, Options{Registerer: reg})
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func operationCount(t *testing.T, reg *prometheus.Registry, operation string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != "didvault_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "operation" && lp.GetValue() == operation {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "floppy")
	if _, err := Open(cfg, Options{}); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestMemoryVaultLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	v := openVault(t, testConfig(t, config.BackendMemory), reg)
	s := v.Store()

	if err := s.InitRootIdentity(store.InitRootRequest{Mnemonic: testMnemonic, StorePassword: testPass}); err != nil {
		t.Fatalf("init root: %v", err)
	}
	doc, err := s.NewIdentity(store.NewIdentityRequest{Alias: "alice", StorePassword: testPass})
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	if _, err := s.PublishDID(ctx, store.PublishRequest{DID: doc.Subject, StorePassword: testPass}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	report, err := v.Syncer().Synchronize(ctx, nil, testPass)
	if err != nil {
		t.Fatalf("synchronize: %v", err)
	}
	if report.Found != 1 || report.Merged != 0 || report.Cursor != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	data, err := v.Backup().ExportDID(doc.Subject, "export-pass", testPass)
	if err != nil || len(data) == 0 {
		t.Fatalf("export: %v", err)
	}
	if got := operationCount(t, reg, "newIdentity"); got != 1 {
		t.Fatalf("expected one newIdentity observation, got %v", got)
	}
	if got := operationCount(t, reg, "exportDID"); got != 1 {
		t.Fatalf("expected one exportDID observation, got %v", got)
	}
}

func TestSnapshotVaultSurvivesReopen(t *testing.T) {
	cfg := testConfig(t, config.BackendSnapshot)
	v, err := Open(cfg, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := v.Store().InitRootIdentity(store.InitRootRequest{Mnemonic: testMnemonic, StorePassword: testPass}); err != nil {
		t.Fatalf("init root: %v", err)
	}
	doc, err := v.Store().NewIdentity(store.NewIdentityRequest{StorePassword: testPass})
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	if _, err := v.Store().PublishDID(context.Background(), store.PublishRequest{DID: doc.Subject, StorePassword: testPass}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	fsperm.AssertPrivateFilePerm(t, cfg.StoragePath())
	fsperm.AssertPrivateFilePerm(t, cfg.LedgerPath())
	fsperm.AssertPrivateDirPerm(t, cfg.DataDir)

	reopened := openVault(t, cfg, nil)
	if ok, err := reopened.Store().ContainsDocument(doc.Subject); err != nil || !ok {
		t.Fatalf("document lost across reopen: %v %v", ok, err)
	}
	resolved, err := reopened.Ledger().Resolve(context.Background(), doc.Subject, true)
	if err != nil || resolved == nil {
		t.Fatalf("ledger chain lost across reopen: %v", err)
	}
}

func TestBadgerVaultOpens(t *testing.T) {
	v := openVault(t, testConfig(t, config.BackendBadger), nil)
	if err := v.Store().InitRootIdentity(store.InitRootRequest{Mnemonic: testMnemonic, StorePassword: testPass}); err != nil {
		t.Fatalf("init root: %v", err)
	}
	if cursor, err := v.Store().Cursor(); err != nil || cursor != 0 {
		t.Fatalf("unexpected cursor %d (%v)", cursor, err)
	}
}

func TestSubmitSerializesTasks(t *testing.T) {
	v := openVault(t, testConfig(t, config.BackendMemory), nil)
	var running, peak atomic.Int32
	var wg sync.WaitGroup
	tasks := make([]*Task[int], 8)
	for i := range tasks {
		tasks[i] = Submit(context.Background(), v, "count", func(context.Context) (int, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return i, nil
		})
	}
	wg.Add(len(tasks))
	for i, task := range tasks {
		go func() {
			defer wg.Done()
			got, err := task.Wait(context.Background())
			if err != nil || got != i {
				t.Errorf("task %d: got %d (%v)", i, got, err)
			}
		}()
	}
	wg.Wait()
	if peak.Load() != 1 {
		t.Fatalf("tasks overlapped: peak concurrency %d", peak.Load())
	}
}

func TestSubmitRunsTasksInSubmissionOrder(t *testing.T) {
	v := openVault(t, testConfig(t, config.BackendMemory), nil)

	// Hold the queue so every later task is waiting when it is submitted.
	release := make(chan struct{})
	gate := Run(context.Background(), v, "gate", func(context.Context) error {
		<-release
		return nil
	})
	var mu sync.Mutex
	var order []int
	tasks := make([]*Task[struct{}], 32)
	for i := range tasks {
		tasks[i] = Run(context.Background(), v, "append", func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	close(release)
	if _, err := gate.Wait(context.Background()); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if _, err := tasks[len(tasks)-1].Wait(context.Background()); err != nil {
		t.Fatalf("last task: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(tasks) {
		t.Fatalf("expected %d tasks to have run, got %v", len(tasks), order)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("tasks ran out of order: %v", order)
		}
	}
}

func TestSubmitSkipsCancelledAndRecoversPanics(t *testing.T) {
	v := openVault(t, testConfig(t, config.BackendMemory), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	task := Run(ctx, v, "cancelled", func(context.Context) error {
		ran = true
		return nil
	})
	<-task.Done()
	if _, err := task.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if ran {
		t.Fatal("cancelled task must not run")
	}

	boom := Run(context.Background(), v, "boom", func(context.Context) error {
		panic("boom")
	})
	if _, err := boom.Wait(context.Background()); err == nil {
		t.Fatal("expected panic to surface as an error")
	}

	// The vault stays usable after a panicking task.
	ok := Submit(context.Background(), v, "after", func(context.Context) (bool, error) {
		return v.Store().ContainsRootIdentity()
	})
	if has, err := ok.Wait(context.Background()); err != nil || has {
		t.Fatalf("unexpected result %v (%v)", has, err)
	}
}
