package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/medtrack/internal/alerts"
	"github.com/mesh-intelligence/medtrack/internal/notify"
	"github.com/mesh-intelligence/medtrack/internal/store"
)

// notifyCommandLog selects the logging notifier instead of a desktop command.
const notifyCommandLog = "log"

// notifier builds the configured notifier, enabled per the user settings.
func (a *app) notifier(s *store.Store) notify.Notifier {
	enabled := s.GetUserSettings().Notifications()
	command := a.v.GetString(cfgKeyNotifyCommand)
	if command == notifyCommandLog {
		return notify.NewLogNotifier(enabled, notify.WithLogger(a.logger))
	}
	return notify.NewCommandNotifier(command, enabled, notify.WithLogger(a.logger))
}

func newAlertsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Low-stock alerts",
	}
	cmd.AddCommand(newAlertsCheckCmd(a))
	return cmd
}

func newAlertsCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check stock levels and notify",
		Long: `Check lists every medicine below the low-stock threshold and sends one
notification per medicine that has not been alerted yet. A medicine that
recovers above the threshold is alerted again the next time it drops.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			rep, err := alerts.NewMonitor(s, a.notifier(s), alerts.WithLogger(a.logger)).Check(cmd.Context())
			if err != nil {
				return storeError(err)
			}
			return a.emit(cmd, rep, func(w io.Writer) { printAlertReport(w, rep) })
		},
	}
}

func printAlertReport(w io.Writer, rep alerts.Report) {
	if len(rep.Low) == 0 {
		fmt.Fprintf(w, "All medicines at or above %d%%.\n", rep.Threshold)
		return
	}
	results := make(map[string]string, len(rep.Outcomes))
	for _, o := range rep.Outcomes {
		results[o.MedicineID] = o.Status
	}
	rows := make([][]string, 0, len(rep.Low))
	for _, al := range rep.Low {
		level := "low"
		if al.Critical {
			level = "critical"
		}
		rows = append(rows, []string{
			al.MedicineID,
			truncate(al.Name, 30),
			fmt.Sprintf("%d/%d", al.CurrentStock, al.TotalStock),
			fmt.Sprintf("%.0f%%", al.Percent),
			level,
			cmpString(results[al.MedicineID], "-"),
		})
	}
	printTable(w, []string{"ID", "NAME", "STOCK", "PERCENT", "LEVEL", "NOTIFIED"}, rows)
	fmt.Fprintf(w, "%d medicine(s) below %d%%\n", len(rep.Low), rep.Threshold)
}
