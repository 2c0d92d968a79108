package backup

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// CSV file names written by ExportCSVDir.
const (
	MedicinesCSV       = "medicines.csv"
	MedicineLogsCSV    = "medicine_logs.csv"
	GlucoseReadingsCSV = "glucose_readings.csv"
	StockRecordsCSV    = "stock_records.csv"
	UserSettingsCSV    = "user_settings.csv"
)

// Column headers, in file order.
var (
	MedicineColumns     = []string{"id", "name", "totalStock", "currentStock", "dosage", "notes", "createdAt"}
	MedicineLogColumns  = []string{"id", "medicineId", "medicineName", "quantity", "timestamp", "notes"}
	GlucoseColumns      = []string{"id", "value", "timestamp", "notes"}
	StockRecordColumns  = []string{"id", "medicineId", "operation", "quantityChanged", "previousStock", "newStock", "timestamp", "notes"}
	UserSettingsColumns = []string{"lowStockThresholdPercent", "theme"}
)

// ErrMissingColumn is returned when a CSV header lacks a required column.
var ErrMissingColumn = errors.New("missing CSV column")

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(isoMillis)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	return nil
}

// WriteMedicinesCSV writes meds under MedicineColumns.
func WriteMedicinesCSV(w io.Writer, meds []types.Medicine) error {
	rows := make([][]string, 0, len(meds))
	for _, m := range meds {
		rows = append(rows, []string{
			m.ID, m.Name,
			strconv.Itoa(m.TotalStock), strconv.Itoa(m.CurrentStock),
			m.Dosage, m.Notes, formatTime(m.CreatedAt),
		})
	}
	return writeCSV(w, MedicineColumns, rows)
}

// WriteMedicineLogsCSV writes logs under MedicineLogColumns.
func WriteMedicineLogsCSV(w io.Writer, logs []types.MedicineLog) error {
	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, []string{
			l.ID, l.MedicineID, l.MedicineName,
			strconv.Itoa(l.Quantity), formatTime(l.Timestamp), l.Notes,
		})
	}
	return writeCSV(w, MedicineLogColumns, rows)
}

// WriteGlucoseCSV writes readings under GlucoseColumns.
func WriteGlucoseCSV(w io.Writer, readings []types.GlucoseReading) error {
	rows := make([][]string, 0, len(readings))
	for _, g := range readings {
		rows = append(rows, []string{
			g.ID, strconv.FormatFloat(g.Value, 'f', -1, 64), formatTime(g.Timestamp), g.Notes,
		})
	}
	return writeCSV(w, GlucoseColumns, rows)
}

// WriteStockRecordsCSV writes records under StockRecordColumns.
func WriteStockRecordsCSV(w io.Writer, records []types.StockRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID, r.MedicineID, string(r.Operation),
			strconv.Itoa(r.QuantityChanged), strconv.Itoa(r.PreviousStock), strconv.Itoa(r.NewStock),
			formatTime(r.Timestamp), r.Notes,
		})
	}
	return writeCSV(w, StockRecordColumns, rows)
}

// WriteUserSettingsCSV writes a single settings row.
func WriteUserSettingsCSV(w io.Writer, s types.UserSettings) error {
	return writeCSV(w, UserSettingsColumns, [][]string{{
		strconv.Itoa(s.LowStockThresholdPercent), string(s.Theme),
	}})
}

// ExportCSVDir writes one CSV file per collection into dir and returns the
// paths written. The stock records file is written only when there are
// records.
func ExportCSVDir(src Source, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	type table struct {
		name  string
		write func(io.Writer) error
	}
	tables := []table{
		{MedicinesCSV, func(w io.Writer) error { return WriteMedicinesCSV(w, src.ListMedicines()) }},
		{MedicineLogsCSV, func(w io.Writer) error { return WriteMedicineLogsCSV(w, src.ListMedicineLogs()) }},
		{GlucoseReadingsCSV, func(w io.Writer) error { return WriteGlucoseCSV(w, src.ListGlucoseReadings()) }},
	}
	if records := src.ListStockRecords(); len(records) > 0 {
		tables = append(tables, table{StockRecordsCSV, func(w io.Writer) error { return WriteStockRecordsCSV(w, records) }})
	}
	tables = append(tables, table{UserSettingsCSV, func(w io.Writer) error { return WriteUserSettingsCSV(w, src.GetUserSettings()) }})

	var written []string
	for _, tb := range tables {
		path := filepath.Join(dir, tb.name)
		if err := writeFile(path, tb.write); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// csvTable is a parsed CSV file addressed by header name.
type csvTable struct {
	cols map[string]int
	rows [][]string
}

func readTable(r io.Reader, required ...string) (*csvTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	t := &csvTable{cols: make(map[string]int), rows: records[1:]}
	for i, h := range records[0] {
		t.cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range required {
		if _, ok := t.cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return t, nil
}

func (t *csvTable) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *csvTable) intField(row []string, col string) (int, error) {
	v := t.get(row, col)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// timeField accepts RFC 3339 with or without fractional seconds. Empty is zero.
func (t *csvTable) timeField(row []string, col string) (time.Time, error) {
	v := t.get(row, col)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

// ImportMedicinesCSV upserts medicines by name. The stock of each row is
// applied with an adjustment record when it differs from the stored value.
func ImportMedicinesCSV(dst Target, r io.Reader) (Report, error) {
	var rep Report
	im := newImporter(dst, &rep)
	if err := im.medicinesCSV(r); err != nil {
		return rep, err
	}
	return rep, im.reconcile()
}

// ImportMedicineLogsCSV adds logs whose medicine can be found by name or id.
// Duplicates of existing logs are skipped. Each added log deducts stock.
func ImportMedicineLogsCSV(dst Target, r io.Reader) (Report, error) {
	var rep Report
	err := newImporter(dst, &rep).logsCSV(r)
	return rep, err
}

// ImportGlucoseCSV adds readings, skipping duplicates and rows whose value
// is not a positive number.
func ImportGlucoseCSV(dst Target, r io.Reader) (Report, error) {
	var rep Report
	err := newImporter(dst, &rep).glucoseCSV(r)
	return rep, err
}

// ImportCSVDir imports the files written by ExportCSVDir. Missing files are
// skipped. As with Import, medicine stock ends at the exported values.
func ImportCSVDir(dst Target, dir string) (Report, error) {
	var rep Report
	im := newImporter(dst, &rep)
	steps := []struct {
		name string
		read func(io.Reader) error
	}{
		{MedicinesCSV, im.medicinesCSV},
		{MedicineLogsCSV, im.logsCSV},
		{GlucoseReadingsCSV, im.glucoseCSV},
	}
	for _, step := range steps {
		f, err := os.Open(filepath.Join(dir, step.name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return rep, err
		}
		err = step.read(f)
		f.Close()
		if err != nil {
			return rep, fmt.Errorf("%s: %w", step.name, err)
		}
	}
	if err := im.reconcile(); err != nil {
		return rep, err
	}
	f, err := os.Open(filepath.Join(dir, UserSettingsCSV))
	if errors.Is(err, os.ErrNotExist) {
		return rep, nil
	}
	if err != nil {
		return rep, err
	}
	defer f.Close()
	return rep, im.settingsCSV(f)
}

func (im *importer) medicinesCSV(r io.Reader) error {
	t, err := readTable(r, "name")
	if err != nil {
		return err
	}
	meds := make([]types.Medicine, 0, len(t.rows))
	for n, row := range t.rows {
		total, err1 := t.intField(row, "totalStock")
		current, err2 := t.intField(row, "currentStock")
		created, err3 := t.timeField(row, "createdAt")
		if err := errors.Join(err1, err2, err3); err != nil {
			im.rep.warnf("medicines row %d skipped: %v", n+2, err)
			continue
		}
		meds = append(meds, types.Medicine{
			ID:           t.get(row, "id"),
			Name:         t.get(row, "name"),
			TotalStock:   total,
			CurrentStock: current,
			Dosage:       t.get(row, "dosage"),
			Notes:        t.get(row, "notes"),
			CreatedAt:    created,
		})
	}
	// Oldest first so creation order survives.
	slices.SortStableFunc(meds, func(a, b types.Medicine) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	for _, m := range meds {
		if err := im.upsertMedicine(m); err != nil {
			return err
		}
	}
	return nil
}

func (im *importer) logsCSV(r io.Reader) error {
	t, err := readTable(r, "quantity", "timestamp")
	if err != nil {
		return err
	}
	for n, row := range t.rows {
		qty, err1 := t.intField(row, "quantity")
		ts, err2 := t.timeField(row, "timestamp")
		if err := errors.Join(err1, err2); err != nil {
			im.rep.LogsSkipped++
			im.rep.warnf("logs row %d skipped: %v", n+2, err)
			continue
		}
		if err := im.addLog(types.MedicineLog{
			ID:           t.get(row, "id"),
			MedicineID:   t.get(row, "medicineId"),
			MedicineName: t.get(row, "medicineName"),
			Quantity:     qty,
			Timestamp:    ts,
			Notes:        t.get(row, "notes"),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (im *importer) glucoseCSV(r io.Reader) error {
	t, err := readTable(r, "value", "timestamp")
	if err != nil {
		return err
	}
	for n, row := range t.rows {
		v, err1 := strconv.ParseFloat(t.get(row, "value"), 64)
		ts, err2 := t.timeField(row, "timestamp")
		if err := errors.Join(err1, err2); err != nil {
			im.rep.ReadingsSkipped++
			im.rep.warnf("glucose row %d skipped: %v", n+2, err)
			continue
		}
		if err := im.addReading(types.GlucoseReading{
			ID:        t.get(row, "id"),
			Value:     v,
			Timestamp: ts,
			Notes:     t.get(row, "notes"),
		}); err != nil {
			return err
		}
	}
	return nil
}

// settingsCSV restores the first settings row over the current settings.
func (im *importer) settingsCSV(r io.Reader) error {
	t, err := readTable(r, "lowStockThresholdPercent")
	if err != nil {
		return err
	}
	if len(t.rows) == 0 {
		return nil
	}
	row := t.rows[0]
	threshold, err := t.intField(row, "lowStockThresholdPercent")
	if err != nil {
		im.rep.warnf("settings not restored: %v", err)
		return nil
	}
	settings := im.dst.GetUserSettings()
	settings.LowStockThresholdPercent = threshold
	if theme := t.get(row, "theme"); theme != "" {
		settings.Theme = types.Theme(theme)
	}
	return im.restoreSettings(settings)
}
