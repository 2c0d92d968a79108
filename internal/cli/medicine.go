package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/medtrack/internal/alerts"
	"github.com/mesh-intelligence/medtrack/internal/store"
	"github.com/mesh-intelligence/medtrack/pkg/types"
)

func newMedicineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "medicine",
		Aliases: []string{"med"},
		Short:   "Manage medicines and their stock",
	}
	cmd.AddCommand(
		newMedicineAddCmd(a),
		newMedicineListCmd(a),
		newMedicineShowCmd(a),
		newMedicineUpdateCmd(a),
		newMedicineDeleteCmd(a),
		newMedicineTakeCmd(a),
		newMedicineRefillCmd(a),
		newMedicineAdjustCmd(a),
		newMedicineHistoryCmd(a),
		newMedicineSupplyCmd(a),
	)
	return cmd
}

// findMedicine resolves ref as an id, then as a name.
func findMedicine(s *store.Store, ref string) (types.Medicine, error) {
	if m, err := s.GetMedicine(ref); err == nil {
		return m, nil
	}
	if m, ok := s.FindMedicineByName(ref); ok {
		return m, nil
	}
	return types.Medicine{}, userError(fmt.Errorf("medicine %q: %w", ref, types.ErrNotFound))
}

// storeError classifies an error from a store write.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrStorageUnavailable), errors.Is(err, types.ErrQuotaExceeded), errors.Is(err, types.ErrStoreDetached):
		return sysError(err)
	default:
		return userError(err)
	}
}

func parseSchedule(v string) (types.Schedule, error) {
	s, err := types.ParseSchedule(strings.ToLower(strings.TrimSpace(v)))
	if err != nil {
		return s, userError(fmt.Errorf("schedule %q: %w (use morning, noon, night, morning_noon, morning_night, noon_night, three_times)", v, err))
	}
	return s, nil
}

func newMedicineAddCmd(a *app) *cobra.Command {
	var in types.MedicineInput
	var schedule string
	var derive bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a medicine",
		Long: `Add records a new medicine and its initial stock.

Current stock defaults to the total. With --derive the schedule is
inferred from the dosage and notes text when --schedule is not given.

Example:
  medtrack medicine add --name Metformin --dosage "500mg x2" --total 60 --schedule morning_night
  medtrack medicine add --name Aspirin --dosage "81mg after breakfast" --total 30 --derive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("current") {
				in.CurrentStock = in.TotalStock
			}
			var err error
			if in.Schedule, err = parseSchedule(schedule); err != nil {
				return err
			}
			if in.Schedule == types.ScheduleNone && derive {
				in.Schedule = types.DeriveSchedule(in.Dosage, in.Notes)
			}
			res := types.ValidateMedicine(in)
			if err := validationError(res); err != nil {
				return err
			}
			printWarnings(cmd, res.Warnings)

			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			med, err := s.AddMedicine(in)
			if err != nil {
				return storeError(fmt.Errorf("add medicine: %w", err))
			}
			return a.emit(cmd, med, func(w io.Writer) {
				fmt.Fprintf(w, "Added medicine: %s (%s)\n", med.Name, med.ID)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "medicine name (required)")
	f.StringVar(&in.Dosage, "dosage", "", "dosage text, e.g. \"500mg x2\" (required)")
	f.IntVar(&in.TotalStock, "total", 0, "nominal full stock (required)")
	f.IntVar(&in.CurrentStock, "current", 0, "current stock (default: total)")
	f.StringVar(&schedule, "schedule", "", "dosing schedule")
	f.StringVar(&in.Notes, "notes", "", "free-form notes")
	f.BoolVar(&derive, "derive", false, "infer the schedule from dosage and notes")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newMedicineListCmd(a *app) *cobra.Command {
	var slot string
	var lowOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List medicines",
		Long: `List shows every medicine, newest first.

Example:
  medtrack medicine list
  medtrack medicine list --schedule morning
  medtrack medicine list --low --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch slot {
			case types.SlotAll, types.SlotMorning, types.SlotNoon, types.SlotNight:
			default:
				return userError(fmt.Errorf("schedule filter %q: use all, morning, noon, or night", slot))
			}
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			threshold := s.GetUserSettings().LowStockThresholdPercent
			meds := []types.Medicine{}
			for _, m := range s.ListMedicines() {
				if !types.MatchesScheduleFilter(m, slot) {
					continue
				}
				if lowOnly && !m.IsLowStock(threshold) {
					continue
				}
				meds = append(meds, m)
			}
			return a.emit(cmd, meds, func(w io.Writer) {
				printMedicineTable(w, meds, threshold)
			})
		},
	}
	cmd.Flags().StringVar(&slot, "schedule", types.SlotAll, "filter by slot (all, morning, noon, night)")
	cmd.Flags().BoolVar(&lowOnly, "low", false, "only medicines below the low-stock threshold")
	return cmd
}

func stockStatus(m types.Medicine, threshold int) string {
	switch {
	case m.IsCriticalStock(threshold):
		return "critical"
	case m.IsLowStock(threshold):
		return "low"
	default:
		return "ok"
	}
}

func printMedicineTable(w io.Writer, meds []types.Medicine, threshold int) {
	if len(meds) == 0 {
		fmt.Fprintln(w, "No medicines found.")
		return
	}
	rows := make([][]string, 0, len(meds))
	for _, m := range meds {
		rows = append(rows, []string{
			m.ID,
			truncate(m.Name, 30),
			truncate(m.Dosage, 24),
			fmt.Sprintf("%d/%d", m.CurrentStock, m.TotalStock),
			stockStatus(m, threshold),
			string(m.EffectiveSchedule()),
		})
	}
	printTable(w, []string{"ID", "NAME", "DOSAGE", "STOCK", "STATUS", "SCHEDULE"}, rows)
	fmt.Fprintf(w, "Total: %d medicine(s)\n", len(meds))
}

// medicineDetail is the show output.
type medicineDetail struct {
	types.Medicine
	EffectiveSchedule types.Schedule `json:"effectiveSchedule,omitempty"`
	StockPercent      float64        `json:"stockPercent"`
	Status            string         `json:"status"`
	TabletsPerDose    int            `json:"tabletsPerDose"`
	DaysRemaining     int            `json:"daysRemaining"`
}

func newMedicineShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show one medicine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			m, err := findMedicine(s, args[0])
			if err != nil {
				return err
			}
			threshold := s.GetUserSettings().LowStockThresholdPercent
			d := medicineDetail{
				Medicine:          m,
				EffectiveSchedule: m.EffectiveSchedule(),
				StockPercent:      m.StockPercent(),
				Status:            stockStatus(m, threshold),
				TabletsPerDose:    m.TabletsPerDose(),
				DaysRemaining:     m.DaysRemaining(),
			}
			return a.emit(cmd, d, func(w io.Writer) {
				fmt.Fprintf(w, "ID:        %s\n", m.ID)
				fmt.Fprintf(w, "Name:      %s\n", m.Name)
				fmt.Fprintf(w, "Dosage:    %s\n", m.Dosage)
				fmt.Fprintf(w, "Schedule:  %s\n", cmpString(string(d.EffectiveSchedule), "-"))
				fmt.Fprintf(w, "Stock:     %d/%d (%.0f%%, %s)\n", m.CurrentStock, m.TotalStock, d.StockPercent, d.Status)
				fmt.Fprintf(w, "Lasts:     %d day(s) at %d per dose\n", d.DaysRemaining, d.TabletsPerDose)
				if m.Notes != "" {
					fmt.Fprintf(w, "Notes:     %s\n", m.Notes)
				}
				fmt.Fprintf(w, "Created:   %s\n", formatTime(m.CreatedAt))
			})
		},
	}
}

func cmpString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func newMedicineUpdateCmd(a *app) *cobra.Command {
	var name, dosage, schedule, notes string
	var total, current int
	cmd := &cobra.Command{
		Use:   "update <id|name>",
		Short: "Edit a medicine",
		Long: `Update changes the given fields. Changing --current here is not
recorded in the stock history; use "medicine adjust" for that.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			m, err := findMedicine(s, args[0])
			if err != nil {
				return err
			}
			var u types.MedicineUpdate
			f := cmd.Flags()
			if f.Changed("name") {
				u.Name = &name
			}
			if f.Changed("dosage") {
				u.Dosage = &dosage
			}
			if f.Changed("total") {
				u.TotalStock = &total
			}
			if f.Changed("current") {
				u.CurrentStock = &current
			}
			if f.Changed("notes") {
				u.Notes = &notes
			}
			if f.Changed("schedule") {
				sched, err := parseSchedule(schedule)
				if err != nil {
					return err
				}
				u.Schedule = &sched
			}
			if u.Empty() {
				return userError(errors.New("nothing to update"))
			}

			merged := m
			u.Apply(&merged)
			res := types.ValidateMedicine(types.MedicineInput{
				Name: merged.Name, Dosage: merged.Dosage, TotalStock: merged.TotalStock,
				CurrentStock: merged.CurrentStock, Schedule: merged.Schedule, Notes: merged.Notes,
			})
			if err := validationError(res); err != nil {
				return err
			}
			printWarnings(cmd, res.Warnings)

			updated, err := s.UpdateMedicine(m.ID, u)
			if err != nil {
				return storeError(fmt.Errorf("update medicine: %w", err))
			}
			return a.emit(cmd, updated, func(w io.Writer) {
				fmt.Fprintf(w, "Updated medicine: %s (%s)\n", updated.Name, updated.ID)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "new name")
	f.StringVar(&dosage, "dosage", "", "new dosage text")
	f.IntVar(&total, "total", 0, "new nominal full stock")
	f.IntVar(&current, "current", 0, "new current stock, not audited")
	f.StringVar(&schedule, "schedule", "", "new schedule (empty clears it)")
	f.StringVar(&notes, "notes", "", "new notes")
	return cmd
}

func newMedicineDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete a medicine and its logs",
		Long:  "Delete removes the medicine and every log that references it. Stock history is kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			m, err := findMedicine(s, args[0])
			if err != nil {
				return err
			}
			if err := s.DeleteMedicine(m.ID); err != nil {
				return storeError(fmt.Errorf("delete medicine: %w", err))
			}
			return a.emit(cmd, map[string]string{"deleted": m.ID}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted medicine: %s (%s)\n", m.Name, m.ID)
			})
		},
	}
}

// takeResult is the take output.
type takeResult struct {
	Log     types.MedicineLog `json:"log"`
	Stock   int               `json:"currentStock"`
	Alerted bool              `json:"alerted"`
	Outcome string            `json:"notification,omitempty"`
}

func newMedicineTakeCmd(a *app) *cobra.Command {
	var quantity int
	var notes, at string
	cmd := &cobra.Command{
		Use:   "take <id|name>",
		Short: "Record a dose",
		Long: `Take logs a dose and deducts it from stock. When the dose moves the
medicine below the low-stock threshold a notification is sent.

Example:
  medtrack medicine take Metformin
  medtrack medicine take Metformin --quantity 2 --at "2026-03-01 08:00"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if quantity <= 0 {
				return userError(types.ErrInvalidQuantity)
			}
			ts, err := parseTime(at)
			if err != nil {
				return err
			}
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			before, err := findMedicine(s, args[0])
			if err != nil {
				return err
			}
			l, err := s.AddMedicineLogWithTimestamp(types.MedicineLogInput{
				MedicineID:   before.ID,
				MedicineName: before.Name,
				Quantity:     quantity,
				Timestamp:    ts,
				Notes:        notes,
			})
			if err != nil {
				return storeError(fmt.Errorf("log dose: %w", err))
			}
			after, err := s.GetMedicine(before.ID)
			if err != nil {
				return storeError(err)
			}

			res := takeResult{Log: l, Stock: after.CurrentStock}
			mon := alerts.NewMonitor(s, a.notifier(s), alerts.WithLogger(a.logger))
			alerted, outcome, err := mon.AfterDose(cmd.Context(), before, after)
			if err != nil {
				return storeError(err)
			}
			if alerted {
				res.Alerted, res.Outcome = true, outcome.String()
			}
			return a.emit(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "Took %d of %s; %d remaining\n", quantity, after.Name, after.CurrentStock)
				if alerted {
					fmt.Fprintf(w, "%s: %s (%s)\n", alerts.Title, alerts.Body(after), outcome)
				}
			})
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 1, "units taken")
	cmd.Flags().StringVar(&notes, "notes", "", "notes for the log")
	cmd.Flags().StringVar(&at, "at", "", "time taken (default: now)")
	return cmd
}

func newMedicineRefillCmd(a *app) *cobra.Command {
	var quantity int
	var notes string
	cmd := &cobra.Command{
		Use:   "refill <id|name>",
		Short: "Add stock from a refill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			m, err := findMedicine(s, args[0])
			if err != nil {
				return err
			}
			rec, err := s.RefillMedicine(m.ID, quantity, notes)
			if err != nil {
				return storeError(fmt.Errorf("refill: %w", err))
			}
			return a.emit(cmd, rec, func(w io.Writer) {
				fmt.Fprintf(w, "Refilled %s: %d -> %d\n", m.Name, rec.PreviousStock, rec.NewStock)
			})
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 0, "units added (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes for the stock record")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func newMedicineAdjustCmd(a *app) *cobra.Command {
	var stock int
	var notes string
	cmd := &cobra.Command{
		Use:   "adjust <id|name>",
		Short: "Set stock to a counted value",
		Long:  "Adjust sets the current stock and records the difference in the stock history.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stock < 0 {
				return userError(errors.New("stock must be >= 0"))
			}
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			m, err := findMedicine(s, args[0])
			if err != nil {
				return err
			}
			rec, err := s.AdjustStockDirectly(m.ID, stock, notes)
			if err != nil {
				return storeError(fmt.Errorf("adjust: %w", err))
			}
			return a.emit(cmd, rec, func(w io.Writer) {
				fmt.Fprintf(w, "Adjusted %s: %d -> %d\n", m.Name, rec.PreviousStock, rec.NewStock)
			})
		},
	}
	cmd.Flags().IntVar(&stock, "stock", 0, "counted stock (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes for the stock record")
	_ = cmd.MarkFlagRequired("stock")
	return cmd
}

// historyResult is the history output.
type historyResult struct {
	MedicineID  string              `json:"medicineId"`
	Records     []types.StockRecord `json:"records"`
	FromHistory *int                `json:"fromHistory,omitempty"`
	Cached      int                 `json:"currentStock"`
}

func newMedicineHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id|name>",
		Short: "Show the stock history of a medicine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			m, err := findMedicine(s, args[0])
			if err != nil {
				return err
			}
			res := historyResult{MedicineID: m.ID, Records: s.GetStockRecordsByMedicine(m.ID), Cached: m.CurrentStock}
			if n, ok := s.StockFromHistory(m.ID); ok {
				res.FromHistory = &n
			}
			return a.emit(cmd, res, func(w io.Writer) {
				if len(res.Records) == 0 {
					fmt.Fprintln(w, "No stock records found.")
					return
				}
				rows := make([][]string, 0, len(res.Records))
				for _, r := range res.Records {
					rows = append(rows, []string{
						formatTime(r.Timestamp),
						string(r.Operation),
						fmt.Sprintf("%+d", r.QuantityChanged),
						strconv.Itoa(r.PreviousStock),
						strconv.Itoa(r.NewStock),
						truncate(r.Notes, 30),
					})
				}
				printTable(w, []string{"TIME", "OPERATION", "CHANGE", "BEFORE", "AFTER", "NOTES"}, rows)
				if res.FromHistory != nil && *res.FromHistory != m.CurrentStock {
					fmt.Fprintf(w, "Warning: current stock %d differs from history %d\n", m.CurrentStock, *res.FromHistory)
				}
			})
		},
	}
}

// supplyResult is the supply output.
type supplyResult struct {
	MedicineID     string `json:"medicineId"`
	Days           int    `json:"days"`
	TabletsPerDose int    `json:"tabletsPerDose"`
	TimesPerDay    int    `json:"timesPerDay"`
	Needed         int    `json:"needed"`
	CurrentStock   int    `json:"currentStock"`
	Shortfall      int    `json:"shortfall"`
}

func newMedicineSupplyCmd(a *app) *cobra.Command {
	var days, perDose, timesPerDay int
	cmd := &cobra.Command{
		Use:   "supply <id|name>",
		Short: "Calculate the stock needed for a number of days",
		Long: `Supply multiplies tablets per dose, doses per day, and days. Tablets per
dose and doses per day are inferred from the dosage, notes, and schedule
unless given.

Example:
  medtrack medicine supply Metformin --days 30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return userError(errors.New("days must be > 0"))
			}
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			m, err := findMedicine(s, args[0])
			if err != nil {
				return err
			}
			if perDose <= 0 {
				perDose = m.TabletsPerDose()
			}
			if timesPerDay <= 0 {
				timesPerDay = m.EffectiveSchedule().TimesPerDay()
			}
			needed := types.SupplyForDays(perDose, timesPerDay, days)
			res := supplyResult{
				MedicineID:     m.ID,
				Days:           days,
				TabletsPerDose: perDose,
				TimesPerDay:    timesPerDay,
				Needed:         needed,
				CurrentStock:   m.CurrentStock,
				Shortfall:      max(0, needed-m.CurrentStock),
			}
			return a.emit(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "%s for %d day(s): %d x %d x %d = %d\n", m.Name, days, perDose, timesPerDay, days, needed)
				if res.Shortfall > 0 {
					fmt.Fprintf(w, "Short by %d (have %d)\n", res.Shortfall, m.CurrentStock)
				} else {
					fmt.Fprintf(w, "Enough stock (have %d)\n", m.CurrentStock)
				}
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "days of treatment")
	cmd.Flags().IntVar(&perDose, "per-dose", 0, "tablets per dose (default: inferred)")
	cmd.Flags().IntVar(&timesPerDay, "times-per-day", 0, "doses per day (default: from schedule)")
	return cmd
}
