package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/medtrack/internal/backup"
)

// Export formats.
const (
	formatJSON = "json"
	formatCSV  = "csv"
)

func newExportCmd(a *app) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all records",
		Long: `Export writes every collection and the user settings.

JSON goes to --output or stdout. CSV writes one file per collection into
the --output directory.

Example:
  medtrack export > backup.json
  medtrack export --format csv --output ./backup`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			switch strings.ToLower(format) {
			case formatJSON:
				p := backup.Export(s, time.Now())
				if output == "" {
					return writeBackup(cmd.OutOrStdout(), p)
				}
				f, err := os.Create(output)
				if err != nil {
					return sysError(fmt.Errorf("create %s: %w", output, err))
				}
				if err := writeBackup(f, p); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return sysError(err)
				}
				if !a.jsonMode {
					fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", output)
				}
				return nil
			case formatCSV:
				if output == "" {
					return userError(errors.New("--output directory is required for csv"))
				}
				files, err := backup.ExportCSVDir(s, output)
				if err != nil {
					return sysError(fmt.Errorf("export: %w", err))
				}
				return a.emit(cmd, map[string][]string{"files": files}, func(w io.Writer) {
					for _, f := range files {
						fmt.Fprintf(w, "Wrote %s\n", f)
					}
				})
			default:
				return userError(fmt.Errorf("format %q: use json or csv", format))
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", formatJSON, "output format (json, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (json) or directory (csv)")
	return cmd
}

func writeBackup(w io.Writer, p backup.Payload) error {
	if err := backup.WriteJSON(w, p); err != nil {
		return sysError(fmt.Errorf("write backup: %w", err))
	}
	return nil
}

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file|dir>",
		Short: "Import records from a backup",
		Long: `Import merges a JSON backup file, or a directory of CSV files written by
"export --format csv". Medicines merge by name; logs and readings
already present are skipped. Running it twice changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return userError(err)
			}
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}

			var rep backup.Report
			if info.IsDir() {
				rep, err = backup.ImportCSVDir(s, path)
			} else {
				rep, err = importJSON(s, path)
			}
			if err != nil {
				return storeError(fmt.Errorf("import: %w", err))
			}
			return a.emit(cmd, rep, func(w io.Writer) { printImportReport(w, rep) })
		},
	}
	return cmd
}

func importJSON(dst backup.Target, path string) (backup.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return backup.Report{}, err
	}
	defer f.Close()
	p, err := backup.ReadJSON(f)
	if err != nil {
		return backup.Report{}, err
	}
	return backup.Import(dst, p)
}

func printImportReport(w io.Writer, rep backup.Report) {
	fmt.Fprintf(w, "Medicines: %d added, %d updated\n", rep.MedicinesAdded, rep.MedicinesUpdated)
	fmt.Fprintf(w, "Logs:      %d added, %d skipped\n", rep.LogsAdded, rep.LogsSkipped)
	fmt.Fprintf(w, "Readings:  %d added, %d skipped\n", rep.ReadingsAdded, rep.ReadingsSkipped)
	if rep.Adjustments > 0 {
		fmt.Fprintf(w, "Stock:     %d adjustment(s)\n", rep.Adjustments)
	}
	if rep.SettingsRestored {
		fmt.Fprintln(w, "Settings restored")
	}
	for _, warn := range rep.Warnings {
		fmt.Fprintln(w, "Warning:", warn)
	}
}
