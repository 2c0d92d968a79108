package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/medtrack/internal/sheets"
)

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with a spreadsheet web app",
		Long: `Sync exchanges medicines, logs, and readings with the spreadsheet web
app at sheets.url in config.yaml (env MEDTRACK_SHEETS_URL).`,
	}
	cmd.AddCommand(newSyncPullCmd(a), newSyncPushCmd(a))
	return cmd
}

func (a *app) sheetsClient() (*sheets.Client, error) {
	c, err := sheets.NewClient(sheetsConfig(a.v), sheets.WithLogger(a.logger))
	if err != nil {
		return nil, userError(err)
	}
	return c, nil
}

// remoteError classifies a sync failure. Rejections by the web app are the
// user's; transport failures are the environment's.
func remoteError(err error) error {
	var he *sheets.HTTPError
	if errors.As(err, &he) && he.StatusCode < 500 {
		return userError(err)
	}
	return sysError(err)
}

func newSyncPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Import remote records",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.sheetsClient()
			if err != nil {
				return err
			}
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			rep, err := sheets.Pull(cmd.Context(), c, s)
			if err != nil {
				return remoteError(fmt.Errorf("pull: %w", err))
			}
			return a.emit(cmd, rep, func(w io.Writer) { printImportReport(w, rep) })
		},
	}
}

func newSyncPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Create local records remotely",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.sheetsClient()
			if err != nil {
				return err
			}
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			rep, err := sheets.Push(cmd.Context(), c, s)
			if err != nil {
				return remoteError(fmt.Errorf("push: %w", err))
			}
			return a.emit(cmd, rep, func(w io.Writer) {
				fmt.Fprintf(w, "Pushed %d medicine(s), %d log(s), %d reading(s)\n", rep.Medicines, rep.Logs, rep.Readings)
				if rep.Skipped > 0 {
					fmt.Fprintf(w, "Skipped %d record(s) with no remote medicine\n", rep.Skipped)
				}
			})
		},
	}
}
