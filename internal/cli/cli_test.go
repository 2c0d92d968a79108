package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/medtrack/internal/alerts"
	"github.com/mesh-intelligence/medtrack/internal/backup"
	"github.com/mesh-intelligence/medtrack/internal/reports"
	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// testEnv is an isolated config and data directory pair.
type testEnv struct {
	configDir string
	dataDir   string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	for _, k := range []string{"MEDTRACK_CONFIG_DIR", "MEDTRACK_DATA_DIR", "MEDTRACK_CACHE_DIR", "MEDTRACK_BACKEND", "MEDTRACK_QUOTA_BYTES"} {
		t.Setenv(k, "")
	}
	t.Setenv("MEDTRACK_NOTIFY_COMMAND", notifyCommandLog)
	root := t.TempDir()
	return testEnv{configDir: filepath.Join(root, "config"), dataDir: filepath.Join(root, "data")}
}

type result struct {
	stdout string
	stderr string
	code   int
}

func (e testEnv) run(t *testing.T, args ...string) result {
	t.Helper()
	root, a := newRoot()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	full := append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...)
	code := run(root, a, full, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

// runJSON runs a command with --json, requires success, and decodes stdout.
func (e testEnv) runJSON(t *testing.T, out any, args ...string) {
	t.Helper()
	res := e.run(t, append([]string{"--json"}, args...)...)
	require.Equal(t, exitSuccess, res.code, "stderr: %s", res.stderr)
	require.NoError(t, json.Unmarshal([]byte(res.stdout), out), "stdout: %s", res.stdout)
}

func (e testEnv) addMedicine(t *testing.T, args ...string) types.Medicine {
	t.Helper()
	var m types.Medicine
	e.runJSON(t, &m, append([]string{"medicine", "add"}, args...)...)
	return m
}

func TestVersion(t *testing.T) {
	res := newTestEnv(t).run(t, "version")
	require.Equal(t, exitSuccess, res.code)
	assert.Contains(t, res.stdout, "medtrack v"+Version)
	assert.Contains(t, res.stdout, modulePath)
}

func TestInit(t *testing.T) {
	env := newTestEnv(t)
	res := env.run(t, "init", "--backend", "sqlite")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "initialized successfully")

	data, err := os.ReadFile(filepath.Join(env.configDir, configFileExt))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "sqlite", doc[cfgKeyBackend])
	assert.Equal(t, env.dataDir, doc[cfgKeyDataDir])
	assert.Contains(t, doc, "cache", "other sections are kept")

	_, err = os.Stat(filepath.Join(env.dataDir, "medtrack.db"))
	assert.NoError(t, err)
}

func TestInitRejectsUnknownBackend(t *testing.T) {
	res := newTestEnv(t).run(t, "init", "--backend", "postgres")
	assert.Equal(t, exitUserError, res.code)
	assert.Contains(t, res.stderr, "unknown backend")
}

func TestMedicineLifecycle(t *testing.T) {
	env := newTestEnv(t)
	m := env.addMedicine(t, "--name", "Metformin", "--dosage", "500mg x2", "--total", "60", "--schedule", "morning_night")
	assert.Equal(t, 60, m.CurrentStock)
	assert.Equal(t, types.ScheduleMorningNight, m.Schedule)

	var meds []types.Medicine
	env.runJSON(t, &meds, "medicine", "list")
	require.Len(t, meds, 1)
	assert.Equal(t, m.ID, meds[0].ID)

	var took takeResult
	env.runJSON(t, &took, "medicine", "take", "Metformin", "--quantity", "2")
	assert.Equal(t, 58, took.Stock)
	assert.Equal(t, 2, took.Log.Quantity)
	assert.False(t, took.Alerted)

	var rec types.StockRecord
	env.runJSON(t, &rec, "medicine", "refill", m.ID, "--quantity", "10")
	assert.Equal(t, 68, rec.NewStock)

	env.runJSON(t, &rec, "medicine", "adjust", m.ID, "--stock", "50", "--notes", "counted")
	assert.Equal(t, 68, rec.PreviousStock)
	assert.Equal(t, -18, rec.QuantityChanged)

	var hist historyResult
	env.runJSON(t, &hist, "medicine", "history", "Metformin")
	require.Len(t, hist.Records, 4)
	assert.Equal(t, types.OpAdjustment, hist.Records[0].Operation)
	require.NotNil(t, hist.FromHistory)
	assert.Equal(t, 50, *hist.FromHistory)

	var detail medicineDetail
	env.runJSON(t, &detail, "medicine", "show", "Metformin")
	assert.Equal(t, 2, detail.TabletsPerDose)
	assert.Equal(t, 12, detail.DaysRemaining)
	assert.Equal(t, "ok", detail.Status)

	var supply supplyResult
	env.runJSON(t, &supply, "medicine", "supply", "Metformin", "--days", "30")
	assert.Equal(t, 120, supply.Needed)
	assert.Equal(t, 70, supply.Shortfall)

	res := env.run(t, "medicine", "delete", "Metformin")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	var logs []types.MedicineLog
	env.runJSON(t, &logs, "log", "list")
	assert.Empty(t, logs)
}

func TestMedicineUpdate(t *testing.T) {
	env := newTestEnv(t)
	m := env.addMedicine(t, "--name", "Aspirin", "--dosage", "81mg", "--total", "30", "--notes", "after breakfast")

	var updated types.Medicine
	env.runJSON(t, &updated, "medicine", "update", m.ID, "--dosage", "100mg", "--schedule", "night")
	assert.Equal(t, "100mg", updated.Dosage)
	assert.Equal(t, types.ScheduleNight, updated.Schedule)
	assert.Equal(t, "after breakfast", updated.Notes)
	assert.Equal(t, 30, updated.CurrentStock)

	res := env.run(t, "medicine", "update", m.ID)
	assert.Equal(t, exitUserError, res.code)
	assert.Contains(t, res.stderr, "nothing to update")

	res = env.run(t, "medicine", "update", m.ID, "--schedule", "hourly")
	assert.Equal(t, exitUserError, res.code)
}

func TestMedicineListFilters(t *testing.T) {
	env := newTestEnv(t)
	env.addMedicine(t, "--name", "Morning pill", "--dosage", "1 tablet", "--total", "30", "--schedule", "morning")
	env.addMedicine(t, "--name", "Night pill", "--dosage", "1 tablet", "--total", "30", "--current", "3", "--schedule", "night")
	env.addMedicine(t, "--name", "Derived", "--dosage", "5mg at bedtime", "--total", "30", "--derive")

	names := func(args ...string) []string {
		var meds []types.Medicine
		env.runJSON(t, &meds, append([]string{"medicine", "list"}, args...)...)
		var out []string
		for _, m := range meds {
			out = append(out, m.Name)
		}
		return out
	}
	assert.ElementsMatch(t, []string{"Night pill", "Derived"}, names("--schedule", "night"))
	assert.Equal(t, []string{"Night pill"}, names("--low"))
	assert.Len(t, names(), 3)

	res := env.run(t, "medicine", "list", "--schedule", "dawn")
	assert.Equal(t, exitUserError, res.code)
}

func TestMedicineListTable(t *testing.T) {
	env := newTestEnv(t)
	res := env.run(t, "medicine", "list")
	require.Equal(t, exitSuccess, res.code)
	assert.Equal(t, "No medicines found.\n", res.stdout)

	env.addMedicine(t, "--name", "Metformin", "--dosage", "500mg", "--total", "60", "--current", "2")
	res = env.run(t, "medicine", "list")
	require.Equal(t, exitSuccess, res.code)
	assert.Contains(t, res.stdout, "ID")
	assert.Contains(t, res.stdout, "2/60")
	assert.Contains(t, res.stdout, "critical")
	assert.Contains(t, res.stdout, "Total: 1 medicine(s)")
}

func TestTakeCrossingThresholdAlerts(t *testing.T) {
	env := newTestEnv(t)
	env.addMedicine(t, "--name", "Insulin", "--dosage", "10u", "--total", "20", "--current", "5")

	var took takeResult
	env.runJSON(t, &took, "medicine", "take", "Insulin", "--quantity", "4")
	assert.Equal(t, 1, took.Stock)
	assert.True(t, took.Alerted)
	assert.Equal(t, "ok", took.Outcome)

	// Already alerted, so check does not notify again.
	var rep alerts.Report
	env.runJSON(t, &rep, "alerts", "check")
	require.Len(t, rep.Low, 1)
	assert.Empty(t, rep.Notified)
	assert.True(t, rep.Low[0].Critical)
}

func TestAlertsCheck(t *testing.T) {
	env := newTestEnv(t)
	low := env.addMedicine(t, "--name", "Low", "--dosage", "1", "--total", "100", "--current", "10")
	env.addMedicine(t, "--name", "Fine", "--dosage", "1", "--total", "100")

	var rep alerts.Report
	env.runJSON(t, &rep, "alerts", "check")
	assert.Equal(t, types.DefaultLowStockThresholdPercent, rep.Threshold)
	assert.Equal(t, []string{low.ID}, rep.Notified)

	env.runJSON(t, &rep, "alerts", "check")
	assert.Empty(t, rep.Notified)

	env.run(t, "medicine", "refill", "Low", "--quantity", "50")
	env.runJSON(t, &rep, "alerts", "check")
	assert.Equal(t, []string{low.ID}, rep.Recovered)
	assert.Empty(t, rep.Low)
}

func TestGlucose(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	at := func(d time.Duration) string { return now.Add(-d).Format(time.RFC3339) }

	var g types.GlucoseReading
	env.runJSON(t, &g, "glucose", "add", "100", "--type", "fasting", "--at", at(time.Hour))
	assert.Equal(t, types.UnitMgDL, g.Unit)
	env.runJSON(t, &g, "glucose", "add", "7", "--unit", "mmol/L", "--at", at(2*time.Hour))
	assert.Equal(t, types.UnitMmolL, g.Unit)
	env.runJSON(t, &g, "glucose", "add", "200", "--at", at(10*24*time.Hour))

	res := env.run(t, "glucose", "add", "500")
	require.Equal(t, exitSuccess, res.code)
	assert.Contains(t, res.stderr, "Warning: Glucose unusually high")

	res = env.run(t, "glucose", "add", "-5")
	assert.Equal(t, exitUserError, res.code)
	res = env.run(t, "glucose", "add", "abc")
	assert.Equal(t, exitUserError, res.code)

	var rep reports.GlucoseReport
	env.runJSON(t, &rep, "glucose", "report", "--range", "1d")
	assert.Equal(t, 3, rep.Count)
	require.NotNil(t, rep.Max)
	assert.Equal(t, 500.0, *rep.Max)

	env.runJSON(t, &rep, "glucose", "report", "--range", "30d")
	assert.Equal(t, 4, rep.Count)

	res = env.run(t, "glucose", "report", "--range", "1y")
	assert.Equal(t, exitUserError, res.code)

	var list []types.GlucoseReading
	env.runJSON(t, &list, "glucose", "list", "--limit", "2")
	assert.Len(t, list, 2)
	res = env.run(t, "glucose", "delete", list[0].ID)
	require.Equal(t, exitSuccess, res.code, res.stderr)
	env.runJSON(t, &list, "glucose", "list")
	assert.Len(t, list, 3)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)
	var s types.UserSettings
	env.runJSON(t, &s, "settings", "show")
	assert.Equal(t, types.DefaultUserSettings(), s)

	env.runJSON(t, &s, "settings", "set", "--threshold", "35", "--notifications=false")
	assert.Equal(t, 35, s.LowStockThresholdPercent)
	assert.False(t, s.Notifications())
	assert.Equal(t, types.ThemeSystem, s.Theme)

	res := env.run(t, "settings", "set", "--threshold", "150")
	assert.Equal(t, exitUserError, res.code)
	res = env.run(t, "settings", "set")
	assert.Equal(t, exitUserError, res.code)
}

func TestExportImportJSON(t *testing.T) {
	src := newTestEnv(t)
	src.addMedicine(t, "--name", "Metformin", "--dosage", "500mg", "--total", "60")
	src.run(t, "medicine", "take", "Metformin")
	src.run(t, "glucose", "add", "110")

	file := filepath.Join(t.TempDir(), "backup.json")
	res := src.run(t, "export", "--output", file)
	require.Equal(t, exitSuccess, res.code, res.stderr)

	dst := newTestEnv(t)
	var rep backup.Report
	dst.runJSON(t, &rep, "import", file)
	assert.Equal(t, 1, rep.MedicinesAdded)
	assert.Equal(t, 1, rep.LogsAdded)
	assert.Equal(t, 1, rep.ReadingsAdded)

	var meds []types.Medicine
	dst.runJSON(t, &meds, "medicine", "list")
	require.Len(t, meds, 1)
	assert.Equal(t, 59, meds[0].CurrentStock)

	dst.runJSON(t, &rep, "import", file)
	assert.Zero(t, rep.MedicinesAdded)
	assert.Equal(t, 1, rep.LogsSkipped)
	assert.Equal(t, 1, rep.ReadingsSkipped)
}

func TestExportImportCSV(t *testing.T) {
	src := newTestEnv(t)
	src.addMedicine(t, "--name", "Aspirin", "--dosage", "81mg", "--total", "30")
	src.run(t, "medicine", "take", "Aspirin", "--quantity", "3")

	dir := filepath.Join(t.TempDir(), "csv")
	res := src.run(t, "export", "--format", "csv", "--output", dir)
	require.Equal(t, exitSuccess, res.code, res.stderr)
	_, err := os.Stat(filepath.Join(dir, backup.MedicinesCSV))
	require.NoError(t, err)

	dst := newTestEnv(t)
	var rep backup.Report
	dst.runJSON(t, &rep, "import", dir)
	assert.Equal(t, 1, rep.MedicinesAdded)
	assert.Equal(t, 1, rep.LogsAdded)

	var meds []types.Medicine
	dst.runJSON(t, &meds, "medicine", "list")
	require.Len(t, meds, 1)
	assert.Equal(t, 27, meds[0].CurrentStock)

	res = src.run(t, "export", "--format", "csv")
	assert.Equal(t, exitUserError, res.code)
	res = src.run(t, "export", "--format", "xml")
	assert.Equal(t, exitUserError, res.code)
}

func TestExitCodes(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		args []string
		code int
		msg  string
	}{
		{"unknown medicine", []string{"medicine", "show", "nope"}, exitUserError, "entity not found"},
		{"missing required flag", []string{"medicine", "add", "--dosage", "1", "--total", "1"}, exitUserError, "name"},
		{"validation", []string{"medicine", "add", "--name", "X", "--total", "1"}, exitUserError, "Dosage is required"},
		{"missing backup", []string{"import", "/nonexistent/backup.json"}, exitUserError, "no such file"},
		{"sync without url", []string{"sync", "pull"}, exitUserError, "not configured"},
		{"serve without origin", []string{"serve"}, exitUserError, "no origin"},
		{"unknown command", []string{"frobnicate"}, exitUserError, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.run(t, tt.args...)
			assert.Equal(t, tt.code, res.code)
			assert.Contains(t, res.stderr, tt.msg)
		})
	}
}

func TestBadBackendInConfig(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.configDir, configFileExt), []byte("backend: bogus\n"), 0o644))
	res := env.run(t, "medicine", "list")
	assert.Equal(t, exitUserError, res.code)
	assert.Contains(t, res.stderr, "unknown backend")
}

func TestQuotaBytesFallsBackToMemory(t *testing.T) {
	env := newTestEnv(t)
	env.addMedicine(t, "--name", "Aspirin", "--dosage", "100mg", "--total", "30")

	t.Setenv("MEDTRACK_QUOTA_BYTES", "10")
	var meds []types.Medicine
	res := env.run(t, "--json", "medicine", "list")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stderr, "storage quota exceeded")
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &meds))
	assert.Empty(t, meds)

	t.Setenv("MEDTRACK_QUOTA_BYTES", "-1")
	res = env.run(t, "medicine", "list")
	assert.Equal(t, exitUserError, res.code)
	assert.Contains(t, res.stderr, "quota_bytes must not be negative")
}

func TestCacheCommands(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("MEDTRACK_CACHE_DIR", filepath.Join(t.TempDir(), "assets"))

	res := env.run(t, "cache", "list")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Equal(t, "No cache containers.\n", res.stdout)

	var purged map[string][]string
	env.runJSON(t, &purged, "cache", "purge")
	assert.Empty(t, purged["deleted"])

	t.Setenv("MEDTRACK_CACHE_STORAGE", "tape")
	res = env.run(t, "cache", "list")
	assert.Equal(t, exitUserError, res.code)
}
