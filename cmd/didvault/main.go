package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"did-vault/go-backend/internal/config"
	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/internal/identity"
	"did-vault/go-backend/internal/store"
	"did-vault/go-backend/internal/syncer"
	"did-vault/go-backend/internal/vault"
	"did-vault/go-backend/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const (
	exitOK            = 0
	exitInvalidInput  = 10
	exitStorageFailed = 20
	exitCryptoFailed  = 30
	exitLedgerFailed  = 40
)

const exportPasswordEnv = "DIDVAULT_EXPORTPASS"

type command func(ctx context.Context, args []string) error

var commands = map[string]command{
	"init":            runInit,
	"new":             runNew,
	"list":            runList,
	"show":            runShow,
	"sign":            runSign,
	"publish":         runPublish,
	"deactivate":      runDeactivate,
	"sync":            runSync,
	"mnemonic":        runMnemonic,
	"change-password": runChangePassword,
	"export-did":      runExportDID,
	"import-did":      runImportDID,
	"export-root":     runExportRoot,
	"import-root":     runImportRoot,
	"export-store":    runExportStore,
	"import-store":    runImportStore,
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}
	if os.Args[1] == "version" {
		writeStdoutf(exitInvalidInput, "didvault version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		os.Exit(exitOK)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		printUsage()
		os.Exit(exitInvalidInput)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[2:])
	stop()
	if err != nil {
		writeStderrln(err.Error(), exitCode(err))
	}
	os.Exit(exitOK)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrStorePasswordRequired), errors.Is(err, config.ErrInsecurePasswordFile):
		return exitInvalidInput
	case errors.Is(err, context.Canceled):
		return exitInvalidInput
	}
	switch contracts.ErrorCategory(err) {
	case contracts.ErrorCategoryCrypto:
		return exitCryptoFailed
	case contracts.ErrorCategoryStorage:
		return exitStorageFailed
	case contracts.ErrorCategoryNetwork:
		return exitLedgerFailed
	default:
		return exitInvalidInput
	}
}

// commonFlags are accepted by every command that opens the vault.
type commonFlags struct {
	configPath *string
	dataDir    *string
	storePass  *string
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", "", "config path (optional)"),
		dataDir:    fs.String("data-dir", "", "vault data directory override"),
		storePass:  fs.String("storepass", "", "store password (or DIDVAULT_STOREPASS / password file)"),
	}
}

type session struct {
	cfg      config.Config
	vault    *vault.Vault
	password string
	registry *prometheus.Registry
	logger   *slog.Logger
}

func openSession(c *commonFlags, needPassword bool) (*session, error) {
	cfg, err := config.LoadFromPath(*c.configPath)
	if err != nil {
		return nil, err
	}
	if dir := strings.TrimSpace(*c.dataDir); dir != "" {
		cfg.DataDir = dir
	}
	password := ""
	if needPassword {
		if password, err = config.ResolveStorePassword(*c.storePass, cfg); err != nil {
			return nil, err
		}
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, password: password, logger: logger}
	opts := vault.Options{Logger: logger}
	if cfg.Metrics.TextFile != "" {
		s.registry = prometheus.NewRegistry()
		opts.Registerer = s.registry
	}
	if s.vault, err = vault.Open(cfg, opts); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	if err := s.vault.Close(); err != nil {
		s.logger.Warn("close vault failed", "component", "cli", "error", err)
	}
	if s.registry == nil {
		return
	}
	path := s.cfg.Metrics.TextFile
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		s.logger.Warn("metrics directory failed", "component", "cli", "error", err)
		return
	}
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		s.logger.Warn("write metrics failed", "component", "cli", "error", err)
	}
}

// do runs fn as a vault task and waits for it.
func (s *session) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := vault.Run(ctx, s.vault, op, fn).Wait(ctx)
	return err
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func parseDID(op, raw string) (models.DID, error) {
	if strings.TrimSpace(raw) == "" {
		return models.DID{}, contracts.Errorf(op, "", contracts.ErrInvalidArgument, "-did is required")
	}
	did, err := models.ParseDID(raw)
	if err != nil {
		return models.DID{}, contracts.NewError(op, raw, contracts.ErrInvalidArgument, err)
	}
	return did, nil
}

func parseOptionalDID(op, raw string) (models.DID, error) {
	if strings.TrimSpace(raw) == "" {
		return models.DID{}, nil
	}
	return parseDID(op, raw)
}

func parseKey(op, raw string, did models.DID) (models.DIDURL, error) {
	if strings.TrimSpace(raw) == "" {
		return models.DIDURL{}, nil
	}
	id, err := models.ParseDIDURL(raw, did)
	if err != nil {
		return models.DIDURL{}, contracts.NewError(op, raw, contracts.ErrInvalidArgument, err)
	}
	return id, nil
}

func exportPassword(op, flagValue string) (string, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv(exportPasswordEnv)); v != "" {
		return v, nil
	}
	return "", contracts.Errorf(op, "", contracts.ErrInvalidArgument, "export password is required (-exportpass or %s)", exportPasswordEnv)
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	common := bindCommon(fs)
	mnemonic := fs.String("mnemonic", "", "recovery phrase; generated when empty and -extended-key is unset")
	language := fs.String("language", "english", "mnemonic word list")
	passphrase := fs.String("passphrase", "", "optional mnemonic passphrase")
	extendedKey := fs.String("extended-key", "", "base58 extended private key")
	force := fs.Bool("force", false, "replace an existing root identity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	words := strings.TrimSpace(*mnemonic)
	generated := false
	if words == "" && strings.TrimSpace(*extendedKey) == "" {
		if words, err = identity.GenerateMnemonic(*language); err != nil {
			return contracts.NewError("cli.init", "", contracts.ErrInvalidArgument, err)
		}
		generated = true
	}
	err = s.do(ctx, "init", func(context.Context) error {
		return s.vault.Store().InitRootIdentity(store.InitRootRequest{
			Language:      *language,
			Mnemonic:      words,
			Passphrase:    *passphrase,
			ExtendedKey:   strings.TrimSpace(*extendedKey),
			StorePassword: s.password,
			Force:         *force,
		})
	})
	if err != nil {
		return err
	}
	out := map[string]any{"initialized": true}
	if generated {
		out["mnemonic"] = words
	}
	return printJSON(out)
}

func runNew(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	common := bindCommon(fs)
	alias := fs.String("alias", "", "local alias")
	index := fs.Int("index", -1, "derivation index; next free index when negative")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	req := store.NewIdentityRequest{Alias: *alias, StorePassword: s.password}
	if *index >= 0 {
		i := uint32(*index)
		req.Index = &i
	}
	var doc *models.Document
	err = s.do(ctx, "new", func(context.Context) error {
		doc, err = s.vault.Store().NewIdentity(req)
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"did": doc.Subject.String(), "alias": *alias})
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	common := bindCommon(fs)
	filter := fs.String("filter", "all", "all | private | public")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var f contracts.DIDFilter
	switch *filter {
	case "all":
		f = contracts.DIDsAll
	case "private":
		f = contracts.DIDsWithPrivateKey
	case "public":
		f = contracts.DIDsWithoutPrivateKey
	default:
		return contracts.Errorf("cli.list", "", contracts.ErrInvalidArgument, "unknown filter %q", *filter)
	}
	s, err := openSession(common, false)
	if err != nil {
		return err
	}
	defer s.close()

	type entry struct {
		DID         string `json:"did"`
		Alias       string `json:"alias,omitempty"`
		Deactivated bool   `json:"deactivated,omitempty"`
	}
	out := []entry{}
	err = s.do(ctx, "list", func(context.Context) error {
		dids, err := s.vault.Store().ListDIDs(f)
		if err != nil {
			return err
		}
		for _, did := range dids {
			meta, err := s.vault.Store().LoadDocumentMeta(did)
			if err != nil {
				return err
			}
			out = append(out, entry{DID: did.String(), Alias: meta.Alias, Deactivated: meta.Deactivated})
		}
		return nil
	})
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	common := bindCommon(fs)
	rawDID := fs.String("did", "", "identity to show")
	resolve := fs.Bool("resolve", false, "read the ledger copy instead of the local one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	did, err := parseDID("cli.show", *rawDID)
	if err != nil {
		return err
	}
	s, err := openSession(common, false)
	if err != nil {
		return err
	}
	defer s.close()

	var doc *models.Document
	err = s.do(ctx, "show", func(ctx context.Context) error {
		if *resolve {
			doc, err = s.vault.Ledger().Resolve(ctx, did, true)
		} else {
			doc, err = s.vault.Store().LoadDocument(did)
		}
		if err == nil && doc == nil {
			err = contracts.NewError("cli.show", did.String(), contracts.ErrNotFound, nil)
		}
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(doc)
}

func runSign(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	common := bindCommon(fs)
	rawDID := fs.String("did", "", "signing identity")
	rawKey := fs.String("key", "", "key id; default key when empty")
	input := fs.String("in", "-", "file to sign, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	did, err := parseDID("cli.sign", *rawDID)
	if err != nil {
		return err
	}
	key, err := parseKey("cli.sign", *rawKey, did)
	if err != nil {
		return err
	}
	data, err := readInput(*input)
	if err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	var sig string
	err = s.do(ctx, "sign", func(context.Context) error {
		sig, err = s.vault.Store().Sign(did, key, s.password, data)
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"did": did.String(), "signature": sig})
}

func runPublish(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	common := bindCommon(fs)
	rawDID := fs.String("did", "", "identity to publish")
	rawKey := fs.String("sign-key", "", "signing key; default key when empty")
	confirmations := fs.Int("confirmations", 0, "confirmations to wait for")
	force := fs.Bool("force", false, "publish over a newer ledger copy")
	if err := fs.Parse(args); err != nil {
		return err
	}
	did, err := parseDID("cli.publish", *rawDID)
	if err != nil {
		return err
	}
	key, err := parseKey("cli.publish", *rawKey, did)
	if err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	var txid string
	err = s.do(ctx, "publish", func(ctx context.Context) error {
		txid, err = s.vault.Store().PublishDID(ctx, store.PublishRequest{
			DID:           did,
			Confirmations: *confirmations,
			SignKey:       key,
			Force:         *force,
			StorePassword: s.password,
		})
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"did": did.String(), "txid": txid})
}

func runDeactivate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deactivate", flag.ExitOnError)
	common := bindCommon(fs)
	rawDID := fs.String("did", "", "signing identity")
	rawTarget := fs.String("target", "", "foreign identity that lists -did as an authorized controller")
	rawKey := fs.String("sign-key", "", "signing key; default key when empty")
	confirmations := fs.Int("confirmations", 0, "confirmations to wait for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	did, err := parseDID("cli.deactivate", *rawDID)
	if err != nil {
		return err
	}
	target, err := parseOptionalDID("cli.deactivate", *rawTarget)
	if err != nil {
		return err
	}
	key, err := parseKey("cli.deactivate", *rawKey, did)
	if err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	var txid string
	err = s.do(ctx, "deactivate", func(ctx context.Context) error {
		txid, err = s.vault.Store().DeactivateDID(ctx, store.DeactivateRequest{
			DID:           did,
			Target:        target,
			Confirmations: *confirmations,
			SignKey:       key,
			StorePassword: s.password,
		})
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"did": did.String(), "txid": txid})
}

func runSync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	common := bindCommon(fs)
	prefer := fs.String("prefer", "local", "conflict policy: local | ledger")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var merge syncer.MergeFunc
	switch *prefer {
	case "local":
		merge = syncer.KeepLocal
	case "ledger":
		merge = syncer.KeepAuthoritative
	default:
		return contracts.Errorf("cli.sync", "", contracts.ErrInvalidArgument, "unknown conflict policy %q", *prefer)
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	var report syncer.Report
	err = s.do(ctx, "sync", func(ctx context.Context) error {
		report, err = s.vault.Syncer().Synchronize(ctx, merge, s.password)
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"scanned":  report.Scanned,
		"found":    report.Found,
		"merged":   report.Merged,
		"inactive": report.Inactive,
		"cursor":   report.Cursor,
	})
}

func runMnemonic(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mnemonic", flag.ExitOnError)
	common := bindCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	var words string
	err = s.do(ctx, "mnemonic", func(context.Context) error {
		words, err = s.vault.Store().ExportMnemonic(s.password)
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"mnemonic": words})
}

func runChangePassword(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("change-password", flag.ExitOnError)
	common := bindCommon(fs)
	newPass := fs.String("new", "", "new store password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*newPass) == "" {
		return contracts.Errorf("cli.changePassword", "", contracts.ErrInvalidArgument, "-new is required")
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	err = s.do(ctx, "change-password", func(context.Context) error {
		return s.vault.Store().ChangePassword(s.password, *newPass)
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"changed": true})
}

func runExportDID(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export-did", flag.ExitOnError)
	common := bindCommon(fs)
	rawDID := fs.String("did", "", "identity to export")
	exportPass := fs.String("exportpass", "", "export password (or "+exportPasswordEnv+")")
	output := fs.String("out", "-", "output file, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	did, err := parseDID("cli.exportDID", *rawDID)
	if err != nil {
		return err
	}
	pw, err := exportPassword("cli.exportDID", *exportPass)
	if err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	var data []byte
	err = s.do(ctx, "export-did", func(context.Context) error {
		data, err = s.vault.Backup().ExportDID(did, pw, s.password)
		return err
	})
	if err != nil {
		return err
	}
	return writeOutput(*output, data)
}

func runImportDID(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-did", flag.ExitOnError)
	common := bindCommon(fs)
	exportPass := fs.String("exportpass", "", "export password (or "+exportPasswordEnv+")")
	input := fs.String("in", "-", "bundle file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := exportPassword("cli.importDID", *exportPass)
	if err != nil {
		return err
	}
	data, err := readInput(*input)
	if err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	var did models.DID
	err = s.do(ctx, "import-did", func(context.Context) error {
		did, err = s.vault.Backup().ImportDID(data, pw, s.password)
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"imported": did.String()})
}

func runExportRoot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export-root", flag.ExitOnError)
	common := bindCommon(fs)
	exportPass := fs.String("exportpass", "", "export password (or "+exportPasswordEnv+")")
	output := fs.String("out", "-", "output file, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := exportPassword("cli.exportRoot", *exportPass)
	if err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	var data []byte
	err = s.do(ctx, "export-root", func(context.Context) error {
		data, err = s.vault.Backup().ExportPrivateIdentity(pw, s.password)
		return err
	})
	if err != nil {
		return err
	}
	return writeOutput(*output, data)
}

func runImportRoot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-root", flag.ExitOnError)
	common := bindCommon(fs)
	exportPass := fs.String("exportpass", "", "export password (or "+exportPasswordEnv+")")
	input := fs.String("in", "-", "bundle file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := exportPassword("cli.importRoot", *exportPass)
	if err != nil {
		return err
	}
	data, err := readInput(*input)
	if err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	err = s.do(ctx, "import-root", func(context.Context) error {
		return s.vault.Backup().ImportPrivateIdentity(data, pw, s.password)
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"imported": true})
}

func runExportStore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export-store", flag.ExitOnError)
	common := bindCommon(fs)
	exportPass := fs.String("exportpass", "", "export password (or "+exportPasswordEnv+")")
	output := fs.String("out", "", "archive path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*output) == "" {
		return contracts.Errorf("cli.exportStore", "", contracts.ErrInvalidArgument, "-out is required")
	}
	pw, err := exportPassword("cli.exportStore", *exportPass)
	if err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	return s.archive(ctx, "export-store", func() (any, error) {
		return s.vault.Backup().ExportStoreFile(*output, pw, s.password)
	})
}

func runImportStore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-store", flag.ExitOnError)
	common := bindCommon(fs)
	exportPass := fs.String("exportpass", "", "export password (or "+exportPasswordEnv+")")
	input := fs.String("in", "", "archive path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*input) == "" {
		return contracts.Errorf("cli.importStore", "", contracts.ErrInvalidArgument, "-in is required")
	}
	pw, err := exportPassword("cli.importStore", *exportPass)
	if err != nil {
		return err
	}
	s, err := openSession(common, true)
	if err != nil {
		return err
	}
	defer s.close()

	return s.archive(ctx, "import-store", func() (any, error) {
		return s.vault.Backup().ImportStoreFile(*input, pw, s.password)
	})
}

func (s *session) archive(ctx context.Context, op string, fn func() (any, error)) error {
	report, err := vault.Submit(ctx, s.vault, op, func(context.Context) (any, error) {
		return fn()
	}).Wait(ctx)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return printJSON(map[string]any{"written": path})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	writeStdoutln(exitInvalidInput, "didvault <command> [flags]")
	writeStdoutln(exitInvalidInput, "common flags: --config <path> --data-dir <path> --storepass <password>")
	writeStdoutln(exitInvalidInput, "commands:")
	writeStdoutln(exitInvalidInput, "  init             [--mnemonic words | --extended-key xprv] [--language english] [--passphrase p] [--force]")
	writeStdoutln(exitInvalidInput, "  new              [--alias name] [--index n]")
	writeStdoutln(exitInvalidInput, "  list             [--filter all|private|public]")
	writeStdoutln(exitInvalidInput, "  show             --did <did> [--resolve]")
	writeStdoutln(exitInvalidInput, "  sign             --did <did> [--key #id] [--in file]")
	writeStdoutln(exitInvalidInput, "  publish          --did <did> [--sign-key #id] [--confirmations n] [--force]")
	writeStdoutln(exitInvalidInput, "  deactivate       --did <did> [--target <did>] [--sign-key #id] [--confirmations n]")
	writeStdoutln(exitInvalidInput, "  sync             [--prefer local|ledger]")
	writeStdoutln(exitInvalidInput, "  mnemonic")
	writeStdoutln(exitInvalidInput, "  change-password  --new <password>")
	writeStdoutln(exitInvalidInput, "  export-did       --did <did> --exportpass <p> [--out file]")
	writeStdoutln(exitInvalidInput, "  import-did       --exportpass <p> [--in file]")
	writeStdoutln(exitInvalidInput, "  export-root      --exportpass <p> [--out file]")
	writeStdoutln(exitInvalidInput, "  import-root      --exportpass <p> [--in file]")
	writeStdoutln(exitInvalidInput, "  export-store     --exportpass <p> --out archive.zip")
	writeStdoutln(exitInvalidInput, "  import-store     --exportpass <p> --in archive.zip")
	writeStdoutln(exitInvalidInput, "  version")
}

func writeStdoutln(exitCode int, line string) {
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		os.Exit(exitCode)
	}
}

func writeStdoutf(exitCode int, format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stdout, format, args...); err != nil {
		os.Exit(exitCode)
	}
}

func writeStderrln(line string, exitCode int) {
	if _, err := fmt.Fprintln(os.Stderr, line); err != nil {
		os.Exit(exitCode)
	}
	os.Exit(exitCode)
}
