package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

func newLogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect and remove dose logs",
	}
	cmd.AddCommand(newLogListCmd(a), newLogDeleteCmd(a))
	return cmd
}

func newLogListCmd(a *app) *cobra.Command {
	var medicine string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dose logs, newest first",
		Long: `List shows dose logs, newest first.

Example:
  medtrack log list
  medtrack log list --medicine Metformin --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			var logs []types.MedicineLog
			if medicine != "" {
				m, err := findMedicine(s, medicine)
				if err != nil {
					return err
				}
				logs = s.ListMedicineLogsByMedicine(m.ID)
			} else {
				logs = s.ListMedicineLogs()
			}
			if limit > 0 && len(logs) > limit {
				logs = logs[:limit]
			}
			if logs == nil {
				logs = []types.MedicineLog{}
			}
			return a.emit(cmd, logs, func(w io.Writer) {
				if len(logs) == 0 {
					fmt.Fprintln(w, "No logs found.")
					return
				}
				rows := make([][]string, 0, len(logs))
				for _, l := range logs {
					rows = append(rows, []string{
						l.ID,
						formatTime(l.Timestamp),
						truncate(l.MedicineName, 30),
						strconv.Itoa(l.Quantity),
						truncate(l.Notes, 30),
					})
				}
				printTable(w, []string{"ID", "TIME", "MEDICINE", "QTY", "NOTES"}, rows)
				fmt.Fprintf(w, "Total: %d log(s)\n", len(logs))
			})
		},
	}
	cmd.Flags().StringVar(&medicine, "medicine", "", "only logs for this medicine (id or name)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of logs (0 = all)")
	return cmd
}

func newLogDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a dose log",
		Long:  "Delete removes the log. Stock is not restored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			if err := s.DeleteMedicineLog(args[0]); err != nil {
				return storeError(fmt.Errorf("delete log: %w", err))
			}
			return a.emit(cmd, map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted log: %s\n", args[0])
			})
		},
	}
}
