// Package config loads vault settings from YAML with DIDVAULT_* environment
// overrides and resolves the store password.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/securestore"
	"did-vault/go-backend/internal/syncer"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendSnapshot = "snapshot"
	BackendBadger   = "badger"

	DefaultDataDir = "didvault-data"
)

type Config struct {
	DataDir string
	// PasswordFile holds the store password when neither the flag nor the
	// environment provides one.
	PasswordFile string
	Storage      StorageConfig
	KDF          securestore.KDFParams
	Cache        CacheConfig
	Sync         SyncConfig
	Ledger       LedgerConfig
	Log          LogConfig
	Metrics      MetricsConfig
}

type StorageConfig struct {
	Backend string
	// Path is the snapshot file or the badger directory; empty means a
	// default inside DataDir.
	Path string
	// Passphrase encrypts the whole snapshot file. Only read from the
	// environment.
	Passphrase string
}

type CacheConfig struct {
	Enabled  bool
	Capacity int
}

type SyncConfig struct {
	GapLimit          int
	Inactive          string
	ResolvesPerSecond float64
	Burst             int
}

type LedgerConfig struct {
	Path              string
	Passphrase        string
	RequestsPerSecond float64
	Burst             int
}

type LogConfig struct {
	Format   string
	Level    string
	PlainIDs bool
}

type MetricsConfig struct {
	TextFile string `yaml:"textFile"`
}

// FileConfig mirrors the YAML layout. Zero values and nil pointers leave the
// defaults alone.
type FileConfig struct {
	DataDir      string        `yaml:"dataDir"`
	PasswordFile string        `yaml:"passwordFile"`
	Storage      FileStorage   `yaml:"storage"`
	KDF          FileKDF       `yaml:"kdf"`
	Cache        FileCache     `yaml:"cache"`
	Sync         FileSync      `yaml:"sync"`
	Ledger       FileLedger    `yaml:"ledger"`
	Log          FileLog       `yaml:"log"`
	Metrics      MetricsConfig `yaml:"metrics"`
}

type FileStorage struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type FileKDF struct {
	Time     uint32 `yaml:"time"`
	MemoryKB uint32 `yaml:"memoryKB"`
	Threads  uint8  `yaml:"threads"`
}

type FileCache struct {
	Enabled  *bool `yaml:"enabled"`
	Capacity int   `yaml:"capacity"`
}

type FileSync struct {
	GapLimit          int     `yaml:"gapLimit"`
	Inactive          string  `yaml:"inactive"`
	ResolvesPerSecond float64 `yaml:"resolvesPerSecond"`
	Burst             int     `yaml:"burst"`
}

type FileLedger struct {
	Path              string  `yaml:"path"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

type FileLog struct {
	Format   string `yaml:"format"`
	Level    string `yaml:"level"`
	PlainIDs *bool  `yaml:"plainIds"`
}

func Default() Config {
	return Config{
		DataDir: DefaultDataDir,
		Storage: StorageConfig{Backend: BackendSnapshot},
		KDF:     securestore.DefaultKDFParams(),
		Cache:   CacheConfig{Enabled: true, Capacity: 32},
		Sync: SyncConfig{
			GapLimit: syncer.DefaultGapLimit,
			Inactive: syncer.InactiveAssigned.String(),
		},
		Ledger: LedgerConfig{RequestsPerSecond: 20, Burst: 40},
		Log:    LogConfig{Format: "text", Level: "info"},
	}
}

// LoadFromPath reads configPath, or the first readable default location when
// configPath is empty, then applies environment overrides and validates.
// A missing default file is not an error; an explicit path must exist.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{"configs/didvault.yaml", "didvault.yaml"}
	explicit := strings.TrimSpace(configPath) != ""
	if explicit {
		candidates = []string{configPath}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Merge(dst *Config, src FileConfig) {
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.PasswordFile != "" {
		dst.PasswordFile = src.PasswordFile
	}
	if src.Storage.Backend != "" {
		dst.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.Path != "" {
		dst.Storage.Path = src.Storage.Path
	}
	if src.KDF.Time != 0 {
		dst.KDF.Time = src.KDF.Time
	}
	if src.KDF.MemoryKB != 0 {
		dst.KDF.MemoryKB = src.KDF.MemoryKB
	}
	if src.KDF.Threads != 0 {
		dst.KDF.Threads = src.KDF.Threads
	}
	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = *src.Cache.Enabled
	}
	if src.Cache.Capacity != 0 {
		dst.Cache.Capacity = src.Cache.Capacity
	}
	if src.Sync.GapLimit != 0 {
		dst.Sync.GapLimit = src.Sync.GapLimit
	}
	if src.Sync.Inactive != "" {
		dst.Sync.Inactive = src.Sync.Inactive
	}
	if src.Sync.ResolvesPerSecond != 0 {
		dst.Sync.ResolvesPerSecond = src.Sync.ResolvesPerSecond
	}
	if src.Sync.Burst != 0 {
		dst.Sync.Burst = src.Sync.Burst
	}
	if src.Ledger.Path != "" {
		dst.Ledger.Path = src.Ledger.Path
	}
	if src.Ledger.RequestsPerSecond != 0 {
		dst.Ledger.RequestsPerSecond = src.Ledger.RequestsPerSecond
	}
	if src.Ledger.Burst != 0 {
		dst.Ledger.Burst = src.Ledger.Burst
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.PlainIDs != nil {
		dst.Log.PlainIDs = *src.Log.PlainIDs
	}
	if src.Metrics.TextFile != "" {
		dst.Metrics.TextFile = src.Metrics.TextFile
	}
}

// ApplyEnvOverrides lets DIDVAULT_* variables win over the file. Values that
// do not parse are ignored.
func ApplyEnvOverrides(cfg *Config) {
	setString(&cfg.DataDir, "DIDVAULT_DATA_DIR")
	setString(&cfg.PasswordFile, "DIDVAULT_PASSWORD_FILE")
	setString(&cfg.Storage.Backend, "DIDVAULT_STORAGE_BACKEND")
	setString(&cfg.Storage.Path, "DIDVAULT_STORAGE_PATH")
	setString(&cfg.Storage.Passphrase, "DIDVAULT_SNAPSHOT_PASSPHRASE")
	setString(&cfg.Ledger.Path, "DIDVAULT_LEDGER_FILE")
	setString(&cfg.Ledger.Passphrase, "DIDVAULT_LEDGER_PASSPHRASE")
	setString(&cfg.Sync.Inactive, "DIDVAULT_SYNC_INACTIVE")
	setString(&cfg.Log.Format, "DIDVAULT_LOG_FORMAT")
	setString(&cfg.Log.Level, "DIDVAULT_LOG_LEVEL")
	setString(&cfg.Metrics.TextFile, "DIDVAULT_METRICS_FILE")

	if v, ok := intEnv("DIDVAULT_CACHE_CAPACITY"); ok {
		cfg.Cache.Capacity = v
	}
	if v, ok := parseBoolEnv("DIDVAULT_CACHE_ENABLED"); ok {
		cfg.Cache.Enabled = v
	}
	if v, ok := intEnv("DIDVAULT_SYNC_GAP_LIMIT"); ok {
		cfg.Sync.GapLimit = v
	}
	if v, ok := parseBoolEnv("DIDVAULT_LOG_PLAIN_IDS"); ok {
		cfg.Log.PlainIDs = v
	}
	if raw := strings.TrimSpace(os.Getenv("DIDVAULT_KDF_MEMORY_KB")); raw != "" {
		if v, err := strconv.ParseUint(raw, 10, 32); err == nil {
			cfg.KDF.MemoryKB = uint32(v)
		}
	}
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendSnapshot, BackendBadger:
	default:
		return invalid("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend != BackendMemory && strings.TrimSpace(c.DataDir) == "" && strings.TrimSpace(c.Storage.Path) == "" {
		return invalid("data dir or storage path is required for the %s backend", c.Storage.Backend)
	}
	if err := c.KDF.Validate(); err != nil {
		return invalid("kdf: %v", err)
	}
	if c.Cache.Capacity < 0 {
		return invalid("cache capacity must not be negative")
	}
	if c.Cache.Enabled && c.Cache.Capacity == 0 {
		return invalid("an enabled cache needs a capacity")
	}
	if c.Sync.GapLimit <= 0 {
		return invalid("sync gap limit must be positive")
	}
	if _, err := syncer.ParseInactivePolicy(c.Sync.Inactive); err != nil {
		return invalid("sync: %v", err)
	}
	if c.Sync.ResolvesPerSecond < 0 || c.Ledger.RequestsPerSecond < 0 {
		return invalid("rate limits must not be negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("unknown log format %q", c.Log.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return invalid("log level: %v", err)
	}
	return nil
}

func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.Log.Level))
	return level, err
}

func (c Config) InactivePolicy() syncer.InactivePolicy {
	p, _ := syncer.ParseInactivePolicy(c.Sync.Inactive)
	return p
}

// StoragePath is the snapshot file or badger directory for the configured
// backend.
func (c Config) StoragePath() string {
	if p := strings.TrimSpace(c.Storage.Path); p != "" {
		return p
	}
	switch c.Storage.Backend {
	case BackendBadger:
		return filepath.Join(c.DataDir, "badger")
	case BackendSnapshot:
		return filepath.Join(c.DataDir, "vault.json")
	default:
		return ""
	}
}

// LedgerPath is where the simulated ledger keeps its chain. The memory
// backend keeps the chain in memory too.
func (c Config) LedgerPath() string {
	if p := strings.TrimSpace(c.Ledger.Path); p != "" {
		return p
	}
	if c.Storage.Backend == BackendMemory {
		return ""
	}
	return filepath.Join(c.DataDir, "ledger.json")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("config: "+format+": %w", append(args, contracts.ErrInvalidArgument)...)
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func intEnv(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseBoolEnv(name string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
