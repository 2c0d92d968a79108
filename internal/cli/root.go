// Package cli implements the medtrack command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mesh-intelligence/medtrack/internal/paths"
	"github.com/mesh-intelligence/medtrack/internal/store"
	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// userError marks err as caused by the invocation.
func userError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: exitUserError, err: err}
}

// sysError marks err as caused by the environment.
func sysError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: exitSysError, err: err}
}

// exitCode maps err to a process exit code. Entity and validation errors
// are the user's; everything else unclassified is too, matching cobra's
// argument errors.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, types.ErrStorageUnavailable) || errors.Is(err, types.ErrQuotaExceeded) {
		return exitSysError
	}
	return exitUserError
}

// app holds global flag values and the resources commands share.
type app struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool

	v      *viper.Viper
	logger *zap.Logger
	store  *store.Store
}

// NewRootCmd creates the top-level "medtrack" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *app) {
	a := &app{logger: zap.NewNop()}
	root := &cobra.Command{
		Use:   "medtrack",
		Short: "Track medicines, doses, stock, and glucose readings",
		Long: `medtrack keeps a local record of medicines, doses taken, stock levels,
and blood glucose readings. Data stays on this machine; export, import,
and an optional spreadsheet sync move it elsewhere.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config-dir", "", "configuration directory (env "+paths.EnvConfigDir+")")
	pf.StringVar(&a.dataDir, "data-dir", "", "data directory (env "+paths.EnvDataDir+")")
	pf.BoolVar(&a.jsonMode, "json", false, "output in JSON format")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newMedicineCmd(a),
		newLogCmd(a),
		newGlucoseCmd(a),
		newSettingsCmd(a),
		newAlertsCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newSyncCmd(a),
		newCacheCmd(a),
		newServeCmd(a),
	)
	return root, a
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root, a := newRoot()
	return run(root, a, os.Args[1:], os.Stderr)
}

// run executes root with args and releases the store whether or not the
// command succeeded.
func run(root *cobra.Command, a *app, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if terr := a.teardown(); err == nil && terr != nil {
		err = sysError(fmt.Errorf("close store: %w", terr))
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return exitCode(err)
}

// setup loads .env, the configuration, and the logger.
func (a *app) setup(cmd *cobra.Command) error {
	// .env is optional.
	_ = godotenv.Load()

	cfg := zap.NewProductionConfig()
	if a.verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return sysError(fmt.Errorf("initialize logger: %w", err))
	}
	a.logger = logger

	if cmd.Name() == "version" {
		return nil
	}
	dir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	a.configDir = dir
	v, err := loadConfig(dir)
	if err != nil {
		return sysError(err)
	}
	a.v = v
	return nil
}

func (a *app) teardown() error {
	var err error
	if a.store != nil {
		err = a.store.Detach()
		a.store = nil
	}
	_ = a.logger.Sync()
	return err
}

// storeConfig resolves the backend, data directory, and quota.
func (a *app) storeConfig() (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(a.dataDir, a.v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg := types.Config{
		Backend:    a.v.GetString(cfgKeyBackend),
		DataDir:    dataDir,
		QuotaBytes: a.v.GetInt64(cfgKeyQuotaBytes),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("backend %q: %w", cfg.Backend, err)
	}
	return cfg, nil
}

// openStore attaches the record store once per invocation. A store that
// fell back to memory prints its warning and keeps going.
func (a *app) openStore(cmd *cobra.Command) (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	cfg, err := a.storeConfig()
	if err != nil {
		return nil, userError(err)
	}
	s, err := store.Open(cfg, store.WithLogger(a.logger))
	if err != nil {
		return nil, sysError(fmt.Errorf("open store: %w", err))
	}
	if w := s.StorageWarning(); w != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v; changes will not be saved\n", w)
	}
	a.store = s
	return s, nil
}
