package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

func TestWriteMedicinesCSV(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, WriteMedicinesCSV(&buf, []types.Medicine{
		{ID: "med_1", Name: `Vitamin "D", high`, TotalStock: 10, CurrentStock: 4, Dosage: "1000IU", Notes: "line1\nline2", CreatedAt: created},
		{ID: "med_2", Name: "Plain", TotalStock: 1, Dosage: "1"},
	}))

	want := "id,name,totalStock,currentStock,dosage,notes,createdAt\n" +
		`med_1,"Vitamin ""D"", high",10,4,1000IU,"line1` + "\n" + `line2",2026-01-02T03:04:05.000Z` + "\n" +
		"med_2,Plain,1,0,1,,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteTableHeaders(t *testing.T) {
	tests := []struct {
		name  string
		write func(*bytes.Buffer) error
		want  string
	}{
		{"logs", func(b *bytes.Buffer) error { return WriteMedicineLogsCSV(b, nil) }, "id,medicineId,medicineName,quantity,timestamp,notes\n"},
		{"glucose", func(b *bytes.Buffer) error { return WriteGlucoseCSV(b, nil) }, "id,value,timestamp,notes\n"},
		{"stock", func(b *bytes.Buffer) error { return WriteStockRecordsCSV(b, nil) }, "id,medicineId,operation,quantityChanged,previousStock,newStock,timestamp,notes\n"},
		{"settings", func(b *bytes.Buffer) error { return WriteUserSettingsCSV(b, types.DefaultUserSettings()) }, "lowStockThresholdPercent,theme\n20,system\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tt.write(&buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestExportCSVDir(t *testing.T) {
	empty := newStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	dir := t.TempDir()
	files, err := ExportCSVDir(empty, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, MedicinesCSV),
		filepath.Join(dir, MedicineLogsCSV),
		filepath.Join(dir, GlucoseReadingsCSV),
		filepath.Join(dir, UserSettingsCSV),
	}, files)

	full := newStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	seed(t, full)
	dir = t.TempDir()
	files, err = ExportCSVDir(full, dir)
	require.NoError(t, err)
	assert.Len(t, files, 5)

	data, err := os.ReadFile(filepath.Join(dir, StockRecordsCSV))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	assert.Len(t, lines, 6)
	assert.Contains(t, string(data), ",initial_stock,40,0,40,")
}

func TestCSVDirRoundTrip(t *testing.T) {
	src := newStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	seed(t, src)
	dir := t.TempDir()
	_, err := ExportCSVDir(src, dir)
	require.NoError(t, err)

	dst := newStore(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	rep, err := ImportCSVDir(dst, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.MedicinesAdded)
	assert.Equal(t, 3, rep.LogsAdded)
	assert.Equal(t, 2, rep.ReadingsAdded)
	assert.True(t, rep.SettingsRestored)

	// CSV carries no schedule, unit, or measurement type.
	if diff := cmp.Diff(src.ListMedicines(), dst.ListMedicines(),
		cmpopts.IgnoreFields(types.Medicine{}, "ID", "CreatedAt", "Schedule")); diff != "" {
		t.Errorf("medicines mismatch (-src +dst):\n%s", diff)
	}
	if diff := cmp.Diff(src.ListMedicineLogs(), dst.ListMedicineLogs(), ignoreLogIdentity); diff != "" {
		t.Errorf("logs mismatch (-src +dst):\n%s", diff)
	}
	got := dst.ListGlucoseReadings()
	require.Len(t, got, 2)
	assert.Equal(t, 7.2, got[0].Value)
	assert.Equal(t, 110.0, got[1].Value)

	settings := dst.GetUserSettings()
	assert.Equal(t, 35, settings.LowStockThresholdPercent)
	assert.Equal(t, types.ThemeDark, settings.Theme)
	assert.True(t, settings.Notifications())
	assert.Empty(t, dst.VerifyStock())
}

func TestImportMedicineLogsCSV(t *testing.T) {
	dst := newStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	med, err := dst.AddMedicine(types.MedicineInput{Name: "Metformin", Dosage: "500mg", TotalStock: 60, CurrentStock: 20})
	require.NoError(t, err)

	input := "id,medicineId,medicineName,quantity,timestamp,notes\n" +
		"l1,,metformin,2,2026-02-01T08:00:00.000Z,\n" +
		"l2," + med.ID + ",Old name,1,2026-02-01T20:00:00Z,\"evening, late\"\n" +
		"l3,,Metformin,two,2026-02-02T08:00:00Z,\n" +
		"l4,,Unknown,1,2026-02-02T08:00:00Z,\n"
	rep, err := ImportMedicineLogsCSV(dst, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.LogsAdded)
	assert.Equal(t, 2, rep.LogsSkipped)

	got, err := dst.GetMedicine(med.ID)
	require.NoError(t, err)
	assert.Equal(t, 17, got.CurrentStock)

	logs := dst.ListMedicineLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, "evening, late", logs[0].Notes)
	assert.Equal(t, "Metformin", logs[0].MedicineName)

	rep, err = ImportMedicineLogsCSV(dst, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 0, rep.LogsAdded, "duplicates are skipped")
}

func TestImportMedicinesCSV(t *testing.T) {
	dst := newStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := dst.AddMedicine(types.MedicineInput{Name: "Aspirin", Dosage: "81mg", TotalStock: 30, CurrentStock: 30})
	require.NoError(t, err)

	input := "name,dosage,totalStock,currentStock\n" +
		"Aspirin,81mg,30,12\n" +
		"Lisinopril,10mg,90,45\n" +
		"Broken,1mg,lots,1\n"
	rep, err := ImportMedicinesCSV(dst, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.MedicinesAdded)
	assert.Equal(t, 1, rep.MedicinesUpdated)
	assert.Equal(t, 1, rep.Adjustments)
	assert.Len(t, rep.Warnings, 1)

	asp, ok := dst.FindMedicineByName("aspirin")
	require.True(t, ok)
	assert.Equal(t, 12, asp.CurrentStock)
	assert.Equal(t, types.OpAdjustment, dst.GetStockRecordsByMedicine(asp.ID)[0].Operation)
}

func TestImportCSVErrors(t *testing.T) {
	dst := newStore(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := ImportGlucoseCSV(dst, strings.NewReader("id,timestamp\n1,2026-01-01T00:00:00Z\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = ImportMedicinesCSV(dst, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingColumn)

	rep, err := ImportGlucoseCSV(dst, strings.NewReader("\ufeffvalue,timestamp\n95,2026-01-01T07:00:00Z\n-3,2026-01-01T08:00:00Z\nabc,2026-01-01T09:00:00Z\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ReadingsAdded)
	assert.Equal(t, 2, rep.ReadingsSkipped)

	rep, err = ImportCSVDir(dst, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
}
