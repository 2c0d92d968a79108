// Package backup exports the record store to a JSON backup or CSV tables and
// imports them back. It works only through the store's public operations.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// FormatVersion is written to every JSON backup.
const FormatVersion = "1.0"

// reconcileNote marks the adjustment records written by Import.
const reconcileNote = "Import reconciliation"

// ErrUnsupportedVersion is returned for backups with a different major
// format version.
var ErrUnsupportedVersion = errors.New("unsupported backup version")

// Payload is the JSON backup document.
type Payload struct {
	Version         string                       `json:"version"`
	ExportDate      time.Time                    `json:"exportDate"`
	Medicines       []types.Medicine             `json:"medicines"`
	MedicineLogs    []types.MedicineLog          `json:"medicineLogs"`
	GlucoseReadings []types.GlucoseReading       `json:"glucoseReadings"`
	StockRecords    map[string]types.StockRecord `json:"stockRecords"`
	UserSettings    SettingsEnvelope             `json:"userSettings"`
}

// SettingsEnvelope mirrors the persisted settings shape.
type SettingsEnvelope struct {
	Settings *types.UserSettings `json:"settings,omitempty"`
}

// Source is the read side of the store.
type Source interface {
	ListMedicines() []types.Medicine
	ListMedicineLogs() []types.MedicineLog
	ListGlucoseReadings() []types.GlucoseReading
	ListStockRecords() []types.StockRecord
	GetUserSettings() types.UserSettings
}

// Target is the write side of the store used by imports.
type Target interface {
	GetMedicine(id string) (types.Medicine, error)
	FindMedicineByName(name string) (types.Medicine, bool)
	AddMedicine(in types.MedicineInput) (types.Medicine, error)
	UpdateMedicine(id string, update types.MedicineUpdate) (types.Medicine, error)
	AdjustStockDirectly(id string, newStock int, notes string) (types.StockRecord, error)
	ListMedicineLogs() []types.MedicineLog
	AddMedicineLogWithTimestamp(in types.MedicineLogInput) (types.MedicineLog, error)
	ListGlucoseReadings() []types.GlucoseReading
	AddGlucoseReadingWithTimestamp(in types.GlucoseInput) (types.GlucoseReading, error)
	GetUserSettings() types.UserSettings
	SaveUserSettings(settings types.UserSettings) error
}

// Export snapshots every collection.
func Export(src Source, now time.Time) Payload {
	records := make(map[string]types.StockRecord)
	for _, r := range src.ListStockRecords() {
		records[r.ID] = r
	}
	settings := src.GetUserSettings()
	return Payload{
		Version:         FormatVersion,
		ExportDate:      now.UTC(),
		Medicines:       src.ListMedicines(),
		MedicineLogs:    src.ListMedicineLogs(),
		GlucoseReadings: src.ListGlucoseReadings(),
		StockRecords:    records,
		UserSettings:    SettingsEnvelope{Settings: &settings},
	}
}

// WriteJSON writes p as indented JSON.
func WriteJSON(w io.Writer, p Payload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}
	return nil
}

// ReadJSON decodes a backup. Missing collections read as empty.
func ReadJSON(r io.Reader) (Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("decoding backup: %w", err)
	}
	if p.Version != "" && !strings.HasPrefix(p.Version, "1.") {
		return Payload{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, p.Version)
	}
	return p, nil
}

// Report counts what an import changed.
type Report struct {
	MedicinesAdded   int      `json:"medicinesAdded"`
	MedicinesUpdated int      `json:"medicinesUpdated"`
	LogsAdded        int      `json:"logsAdded"`
	LogsSkipped      int      `json:"logsSkipped"`
	ReadingsAdded    int      `json:"readingsAdded"`
	ReadingsSkipped  int      `json:"readingsSkipped"`
	Adjustments      int      `json:"adjustments"`
	SettingsRestored bool     `json:"settingsRestored"`
	Warnings         []string `json:"warnings,omitempty"`
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Import merges p into dst.
//
// Medicines are upserted by name, never duplicated. Logs resolve their
// medicine by name, then by exported id, and are skipped when an identical
// log (same medicine, timestamp, and quantity) already exists; readings
// likewise on timestamp and value. Once logs are in, every imported
// medicine's stock is set back to its exported currentStock with an
// adjustment record. Stock records themselves are not imported; the store
// writes fresh ones.
func Import(dst Target, p Payload) (Report, error) {
	var rep Report
	im := newImporter(dst, &rep)

	// Oldest first so creation order survives.
	meds := slices.Clone(p.Medicines)
	slices.Reverse(meds)
	for _, m := range meds {
		if err := im.upsertMedicine(m); err != nil {
			return rep, err
		}
	}

	for _, l := range p.MedicineLogs {
		if err := im.addLog(l); err != nil {
			return rep, err
		}
	}
	for _, g := range p.GlucoseReadings {
		if err := im.addReading(g); err != nil {
			return rep, err
		}
	}
	if err := im.reconcile(); err != nil {
		return rep, err
	}

	if s := p.UserSettings.Settings; s != nil {
		if err := im.restoreSettings(*s); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// importer carries the id mapping and dedup indexes of one import.
type importer struct {
	dst Target
	rep *Report

	ids    map[string]string // exported medicine id -> local id
	stocks map[string]int    // local id -> stock to reconcile to
	order  []string          // local ids in reconcile order
	logs   map[string]bool
	reads  map[string]bool
}

func newImporter(dst Target, rep *Report) *importer {
	im := &importer{
		dst:    dst,
		rep:    rep,
		ids:    make(map[string]string),
		stocks: make(map[string]int),
		logs:   make(map[string]bool),
		reads:  make(map[string]bool),
	}
	for _, l := range dst.ListMedicineLogs() {
		im.logs[logKey(l.MedicineID, l.Timestamp, l.Quantity)] = true
	}
	for _, g := range dst.ListGlucoseReadings() {
		im.reads[readingKey(g.Timestamp, g.Value)] = true
	}
	return im
}

func logKey(medicineID string, ts time.Time, quantity int) string {
	return fmt.Sprintf("%s|%d|%d", medicineID, ts.UnixMilli(), quantity)
}

func readingKey(ts time.Time, value float64) string {
	return fmt.Sprintf("%d|%g", ts.UnixMilli(), value)
}

// upsertMedicine adds m or updates the medicine of the same name. Stock is
// left for reconcile.
func (im *importer) upsertMedicine(m types.Medicine) error {
	if strings.TrimSpace(m.Name) == "" {
		im.rep.warnf("medicine %q skipped: empty name", m.ID)
		return nil
	}
	if !m.Schedule.Valid() {
		im.rep.warnf("medicine %q: unknown schedule %q dropped", m.Name, m.Schedule)
		m.Schedule = types.ScheduleNone
	}

	local, ok := im.dst.FindMedicineByName(m.Name)
	if ok {
		total, dosage, sched, notes := m.TotalStock, m.Dosage, m.Schedule, m.Notes
		if _, err := im.dst.UpdateMedicine(local.ID, types.MedicineUpdate{
			TotalStock: &total,
			Dosage:     &dosage,
			Schedule:   &sched,
			Notes:      &notes,
		}); err != nil {
			return fmt.Errorf("updating medicine %q: %w", m.Name, err)
		}
		im.rep.MedicinesUpdated++
	} else {
		added, err := im.dst.AddMedicine(types.MedicineInput{
			Name:         m.Name,
			TotalStock:   m.TotalStock,
			CurrentStock: m.CurrentStock,
			Dosage:       m.Dosage,
			Schedule:     m.Schedule,
			Notes:        m.Notes,
		})
		if err != nil {
			return fmt.Errorf("adding medicine %q: %w", m.Name, err)
		}
		local = added
		im.rep.MedicinesAdded++
	}

	if m.ID != "" {
		im.ids[m.ID] = local.ID
	}
	if _, seen := im.stocks[local.ID]; !seen {
		im.order = append(im.order, local.ID)
	}
	im.stocks[local.ID] = max(0, m.CurrentStock)
	return nil
}

// resolve finds the local medicine for an exported log: by name, then by
// the id mapping of this import, then by the id itself.
func (im *importer) resolve(name, exportedID string) (types.Medicine, bool) {
	if m, ok := im.dst.FindMedicineByName(name); ok {
		return m, true
	}
	id := exportedID
	if mapped, ok := im.ids[exportedID]; ok {
		id = mapped
	}
	if id == "" {
		return types.Medicine{}, false
	}
	if m, err := im.dst.GetMedicine(id); err == nil {
		return m, true
	}
	return types.Medicine{}, false
}

func (im *importer) addLog(l types.MedicineLog) error {
	med, ok := im.resolve(l.MedicineName, l.MedicineID)
	if !ok {
		im.rep.LogsSkipped++
		im.rep.warnf("log %q skipped: medicine %q not found", l.ID, l.MedicineName)
		return nil
	}
	key := logKey(med.ID, l.Timestamp, l.Quantity)
	if im.logs[key] {
		im.rep.LogsSkipped++
		return nil
	}
	if _, err := im.dst.AddMedicineLogWithTimestamp(types.MedicineLogInput{
		MedicineID:   med.ID,
		MedicineName: med.Name,
		Quantity:     l.Quantity,
		Timestamp:    l.Timestamp,
		Notes:        l.Notes,
	}); err != nil {
		return fmt.Errorf("adding log for %q: %w", med.Name, err)
	}
	im.logs[key] = true
	im.rep.LogsAdded++
	return nil
}

func (im *importer) addReading(g types.GlucoseReading) error {
	if g.Value <= 0 {
		im.rep.ReadingsSkipped++
		im.rep.warnf("reading %q skipped: value %v", g.ID, g.Value)
		return nil
	}
	key := readingKey(g.Timestamp, g.Value)
	if im.reads[key] {
		im.rep.ReadingsSkipped++
		return nil
	}
	if _, err := im.dst.AddGlucoseReadingWithTimestamp(types.GlucoseInput{
		Value:           g.Value,
		Timestamp:       g.Timestamp,
		Notes:           g.Notes,
		Unit:            g.Unit,
		MeasurementType: g.MeasurementType,
	}); err != nil {
		return fmt.Errorf("adding glucose reading: %w", err)
	}
	im.reads[key] = true
	im.rep.ReadingsAdded++
	return nil
}

// restoreSettings saves s. Invalid settings are reported as a warning.
func (im *importer) restoreSettings(s types.UserSettings) error {
	if err := im.dst.SaveUserSettings(s); err != nil {
		if !errors.Is(err, types.ErrInvalidSettings) {
			return err
		}
		im.rep.warnf("settings not restored: %v", err)
		return nil
	}
	im.rep.SettingsRestored = true
	return nil
}

// reconcile sets every imported medicine back to its exported stock.
func (im *importer) reconcile() error {
	for _, id := range im.order {
		want := im.stocks[id]
		med, err := im.dst.GetMedicine(id)
		if err != nil {
			return fmt.Errorf("reconciling %s: %w", id, err)
		}
		if med.CurrentStock == want {
			continue
		}
		if _, err := im.dst.AdjustStockDirectly(id, want, reconcileNote); err != nil {
			return fmt.Errorf("reconciling %q: %w", med.Name, err)
		}
		im.rep.Adjustments++
	}
	return nil
}
