package sheets

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mesh-intelligence/medtrack/internal/backup"
	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// Remote is the part of the client used by Pull and Push.
type Remote interface {
	ListMedicines(ctx context.Context) ([]types.Medicine, error)
	AddMedicine(ctx context.Context, in types.MedicineInput) (types.Medicine, error)
	ListMedicineLogs(ctx context.Context) ([]types.MedicineLog, error)
	AddMedicineLog(ctx context.Context, in types.MedicineLogInput) (types.MedicineLog, error)
	ListGlucoseReadings(ctx context.Context) ([]types.GlucoseReading, error)
	AddGlucoseReading(ctx context.Context, in types.GlucoseInput) (types.GlucoseReading, error)
}

// Pull imports the remote collections into dst. Medicines merge by name
// and take the remote stock; logs and readings already present locally are
// skipped.
func Pull(ctx context.Context, remote Remote, dst backup.Target) (backup.Report, error) {
	meds, err := remote.ListMedicines(ctx)
	if err != nil {
		return backup.Report{}, fmt.Errorf("listing remote medicines: %w", err)
	}
	logs, err := remote.ListMedicineLogs(ctx)
	if err != nil {
		return backup.Report{}, fmt.Errorf("listing remote logs: %w", err)
	}
	readings, err := remote.ListGlucoseReadings(ctx)
	if err != nil {
		return backup.Report{}, fmt.Errorf("listing remote readings: %w", err)
	}

	// Import expects medicines newest first.
	slices.SortStableFunc(meds, func(a, b types.Medicine) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return backup.Import(dst, backup.Payload{
		Version:         backup.FormatVersion,
		Medicines:       meds,
		MedicineLogs:    logs,
		GlucoseReadings: readings,
	})
}

// PushReport counts the records created remotely.
type PushReport struct {
	Medicines int `json:"medicines"`
	Logs      int `json:"logs"`
	Readings  int `json:"readings"`
	Skipped   int `json:"skipped"`
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Push creates remotely every local medicine whose name is missing there,
// then every local log and reading whose timestamp is missing there. Logs
// reference the remote medicine of the same name.
func Push(ctx context.Context, remote Remote, src backup.Source) (PushReport, error) {
	var rep PushReport

	remoteMeds, err := remote.ListMedicines(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing remote medicines: %w", err)
	}
	remoteIDs := make(map[string]string, len(remoteMeds))
	for _, m := range remoteMeds {
		if _, ok := remoteIDs[nameKey(m.Name)]; !ok {
			remoteIDs[nameKey(m.Name)] = m.ID
		}
	}

	local := src.ListMedicines()
	slices.Reverse(local)
	for _, m := range local {
		key := nameKey(m.Name)
		if _, ok := remoteIDs[key]; ok {
			continue
		}
		created, err := remote.AddMedicine(ctx, types.MedicineInput{
			Name:         m.Name,
			TotalStock:   m.TotalStock,
			CurrentStock: m.CurrentStock,
			Dosage:       m.Dosage,
			Schedule:     m.Schedule,
			Notes:        m.Notes,
		})
		if err != nil {
			return rep, fmt.Errorf("pushing medicine %q: %w", m.Name, err)
		}
		remoteIDs[key] = cmp.Or(created.ID, m.ID)
		rep.Medicines++
	}

	remoteLogs, err := remote.ListMedicineLogs(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing remote logs: %w", err)
	}
	seen := make(map[int64]bool, len(remoteLogs))
	for _, l := range remoteLogs {
		seen[l.Timestamp.UnixMilli()] = true
	}
	logs := src.ListMedicineLogs()
	slices.Reverse(logs)
	for _, l := range logs {
		if seen[l.Timestamp.UnixMilli()] {
			continue
		}
		id, ok := remoteIDs[nameKey(l.MedicineName)]
		if !ok {
			rep.Skipped++
			continue
		}
		if _, err := remote.AddMedicineLog(ctx, types.MedicineLogInput{
			MedicineID:   id,
			MedicineName: l.MedicineName,
			Quantity:     l.Quantity,
			Timestamp:    l.Timestamp,
			Notes:        l.Notes,
		}); err != nil {
			return rep, fmt.Errorf("pushing log: %w", err)
		}
		seen[l.Timestamp.UnixMilli()] = true
		rep.Logs++
	}

	remoteReadings, err := remote.ListGlucoseReadings(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing remote readings: %w", err)
	}
	seen = make(map[int64]bool, len(remoteReadings))
	for _, g := range remoteReadings {
		seen[g.Timestamp.UnixMilli()] = true
	}
	readings := src.ListGlucoseReadings()
	slices.Reverse(readings)
	for _, g := range readings {
		if seen[g.Timestamp.UnixMilli()] {
			continue
		}
		if _, err := remote.AddGlucoseReading(ctx, types.GlucoseInput{
			Value:           g.Value,
			Timestamp:       g.Timestamp,
			Notes:           g.Notes,
			Unit:            g.Unit,
			MeasurementType: g.MeasurementType,
		}); err != nil {
			return rep, fmt.Errorf("pushing reading: %w", err)
		}
		seen[g.Timestamp.UnixMilli()] = true
		rep.Readings++
	}
	return rep, nil
}
