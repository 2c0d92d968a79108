package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

func newInitCmd(a *app) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize medtrack storage",
		Long: `Create the configuration and data directories, then initialize the
record store.

With --backend or --data-dir the choice is saved to config.yaml.

Example:
  medtrack init
  medtrack init --backend sqlite
  medtrack init --data-dir ~/health`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if backend != "" || a.dataDir != "" {
				if backend == "" {
					backend = a.v.GetString(cfgKeyBackend)
				}
				if err := (types.Config{Backend: backend}).Validate(); err != nil {
					return userError(fmt.Errorf("backend %q: %w", backend, err))
				}
				dataDir := a.v.GetString(cfgKeyDataDir)
				if a.dataDir != "" {
					abs, err := filepath.Abs(a.dataDir)
					if err != nil {
						return userError(err)
					}
					dataDir = abs
				}
				path := filepath.Join(a.configDir, configFileExt)
				if err := writeConfig(path, backend, dataDir); err != nil {
					return sysError(fmt.Errorf("write config: %w", err))
				}
				a.v.Set(cfgKeyBackend, backend)
			}

			cfg, err := a.storeConfig()
			if err != nil {
				return userError(err)
			}
			if cfg.Persistent() {
				if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
					return sysError(fmt.Errorf("create data directory: %w", err))
				}
			}
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			if s.StorageWarning() != nil {
				return sysError(s.StorageWarning())
			}
			// Materializes the default settings.
			s.GetUserSettings()

			out := map[string]string{"config_dir": a.configDir, "data_dir": cfg.DataDir, "backend": cfg.Backend}
			return a.emit(cmd, out, func(w io.Writer) {
				fmt.Fprintln(w, "medtrack initialized successfully")
				fmt.Fprintf(w, "  config:  %s\n  data:    %s (%s)\n", a.configDir, cfg.DataDir, cfg.Backend)
			})
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "record store backend (json, sqlite, memory)")
	return cmd
}

// writeConfig sets backend and data_dir in config.yaml, keeping the other
// keys. Comments in the file are not preserved.
func writeConfig(path, backend, dataDir string) error {
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	doc[cfgKeyBackend] = backend
	if dataDir != "" {
		doc[cfgKeyDataDir] = dataDir
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}
