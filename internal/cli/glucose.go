package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/medtrack/internal/reports"
	"github.com/mesh-intelligence/medtrack/pkg/types"
)

func newGlucoseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glucose",
		Short: "Record and report blood glucose readings",
	}
	cmd.AddCommand(
		newGlucoseAddCmd(a),
		newGlucoseListCmd(a),
		newGlucoseDeleteCmd(a),
		newGlucoseReportCmd(a),
	)
	return cmd
}

func parseUnit(v string) (types.GlucoseUnit, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "mg/dl", "mgdl", "mg":
		return types.UnitMgDL, nil
	case "mmol/l", "mmol":
		return types.UnitMmolL, nil
	default:
		return "", userError(fmt.Errorf("unit %q: use mg/dL or mmol/L", v))
	}
}

func newGlucoseAddCmd(a *app) *cobra.Command {
	var unit, kind, notes, at string
	cmd := &cobra.Command{
		Use:   "add <value>",
		Short: "Record a reading",
		Long: `Add records a blood glucose reading. Readings outside 40-400 mg/dL are
accepted with a warning.

Example:
  medtrack glucose add 105 --type fasting
  medtrack glucose add 6.2 --unit mmol/L --at "2026-03-01 07:30"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return userError(fmt.Errorf("value %q is not a number", args[0]))
			}
			in := types.GlucoseInput{Value: value, Notes: notes, MeasurementType: kind}
			if in.Unit, err = parseUnit(unit); err != nil {
				return err
			}
			if in.Timestamp, err = parseTime(at); err != nil {
				return err
			}
			res := types.ValidateGlucose(in)
			if err := validationError(res); err != nil {
				return err
			}
			printWarnings(cmd, res.Warnings)

			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			g, err := s.AddGlucoseReadingWithTimestamp(in)
			if err != nil {
				return storeError(fmt.Errorf("add reading: %w", err))
			}
			return a.emit(cmd, g, func(w io.Writer) {
				fmt.Fprintf(w, "Recorded %s %s (%s)\n", formatValue(g.Value), g.Unit, g.ID)
			})
		},
	}
	cmd.Flags().StringVar(&unit, "unit", string(types.UnitMgDL), "unit (mg/dL or mmol/L)")
	cmd.Flags().StringVar(&kind, "type", types.MeasurementRandom, "measurement type (fasting, post-meal, random, bedtime)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes for the reading")
	cmd.Flags().StringVar(&at, "at", "", "time measured (default: now)")
	return cmd
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func newGlucoseListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List readings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			readings := s.ListGlucoseReadings()
			if limit > 0 && len(readings) > limit {
				readings = readings[:limit]
			}
			if readings == nil {
				readings = []types.GlucoseReading{}
			}
			return a.emit(cmd, readings, func(w io.Writer) {
				if len(readings) == 0 {
					fmt.Fprintln(w, "No readings found.")
					return
				}
				rows := make([][]string, 0, len(readings))
				for _, g := range readings {
					rows = append(rows, []string{
						g.ID,
						formatTime(g.Timestamp),
						formatValue(g.Value),
						string(g.Unit),
						g.MeasurementType,
						truncate(g.Notes, 30),
					})
				}
				printTable(w, []string{"ID", "TIME", "VALUE", "UNIT", "TYPE", "NOTES"}, rows)
				fmt.Fprintf(w, "Total: %d reading(s)\n", len(readings))
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of readings (0 = all)")
	return cmd
}

func newGlucoseDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			if err := s.DeleteGlucoseReading(args[0]); err != nil {
				return storeError(fmt.Errorf("delete reading: %w", err))
			}
			return a.emit(cmd, map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted reading: %s\n", args[0])
			})
		},
	}
}

func newGlucoseReportCmd(a *app) *cobra.Command {
	var rng string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize readings over a time range",
		Long: `Report shows the count, average, minimum, and maximum of the readings in
the last day, week, or month. Values are in mg/dL.

Example:
  medtrack glucose report --range 7d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := reports.ParseRange(rng)
			if err != nil {
				return userError(fmt.Errorf("range %q: %w (use 1d, 7d, or 30d)", rng, err))
			}
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			rep := reports.Glucose(s.ListGlucoseReadings(), r, time.Now())
			return a.emit(cmd, rep, func(w io.Writer) {
				fmt.Fprintf(w, "Range:    %s (since %s)\n", rep.Range, formatTime(rep.From))
				fmt.Fprintf(w, "Readings: %d\n", rep.Count)
				if rep.Count == 0 {
					return
				}
				fmt.Fprintf(w, "Average:  %s mg/dL\n", formatValue(*rep.Average))
				fmt.Fprintf(w, "Min:      %s mg/dL\n", formatValue(*rep.Min))
				fmt.Fprintf(w, "Max:      %s mg/dL\n", formatValue(*rep.Max))
			})
		},
	}
	cmd.Flags().StringVar(&rng, "range", string(reports.Week), "time range (1d, 7d, 30d)")
	return cmd
}
