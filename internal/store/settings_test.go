package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/medtrack/internal/kv"
	"github.com/mesh-intelligence/medtrack/pkg/types"
)

func TestGetUserSettingsMaterializesDefaults(t *testing.T) {
	m := kv.NewMemoryMedium()
	s := newTestStore(t, m)

	got := s.GetUserSettings()
	assert.Equal(t, 20, got.LowStockThresholdPercent)
	assert.Equal(t, types.ThemeSystem, got.Theme)
	assert.True(t, got.Notifications())

	data, ok, err := m.Get(KeyUserSettings)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"settings":{"lowStockThresholdPercent":20,"theme":"system","notificationsEnabled":true}}`, string(data))
}

func TestSaveUserSettings(t *testing.T) {
	s := newTestStore(t, nil)
	off := false
	want := types.UserSettings{LowStockThresholdPercent: 35, Theme: types.ThemeDark, NotificationsEnabled: &off}
	require.NoError(t, s.SaveUserSettings(want))
	assert.Equal(t, want, s.GetUserSettings())

	assert.ErrorIs(t, s.SaveUserSettings(types.UserSettings{LowStockThresholdPercent: 101}), types.ErrInvalidSettings)
	assert.ErrorIs(t, s.SaveUserSettings(types.UserSettings{Theme: "neon"}), types.ErrInvalidSettings)
}

func TestPartialStoredSettings(t *testing.T) {
	m := kv.NewMemoryMedium()
	require.NoError(t, m.Set(KeyUserSettings, []byte(`{"settings":{"theme":"light"}}`)))
	s := newTestStore(t, m)

	got := s.GetUserSettings()
	assert.Equal(t, types.ThemeLight, got.Theme)
	assert.Equal(t, 20, got.LowStockThresholdPercent)
	assert.True(t, got.Notifications())
}

func TestCorruptedSettingsReadAsDefaults(t *testing.T) {
	m := kv.NewMemoryMedium()
	require.NoError(t, m.Set(KeyUserSettings, []byte(`{"settings":"oops"}`)))
	s := newTestStore(t, m)
	assert.Equal(t, types.DefaultUserSettings(), s.GetUserSettings())
}

func TestSettingsReadFailureKeepsStoredRecord(t *testing.T) {
	m := newFaultyMedium()
	s := newTestStore(t, m)
	off := false
	saved := types.UserSettings{LowStockThresholdPercent: 55, Theme: types.ThemeDark, NotificationsEnabled: &off}
	require.NoError(t, s.SaveUserSettings(saved))

	m.failGet[KeyUserSettings] = true
	assert.Equal(t, types.DefaultUserSettings(), s.GetUserSettings())

	m.failGet[KeyUserSettings] = false
	assert.Equal(t, saved, s.GetUserSettings())
}

func TestLowStockNotified(t *testing.T) {
	m := kv.NewMemoryMedium()
	s := newTestStore(t, m)
	assert.Empty(t, s.LowStockNotified())

	require.NoError(t, s.SaveLowStockNotified([]string{"med_a", "", "med_b", "med_a"}))
	assert.Equal(t, []string{"med_a", "med_b"}, s.LowStockNotified())

	data, _, err := m.Get(KeyLowStockNotified)
	require.NoError(t, err)
	var raw []string
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, []string{"med_a", "med_b"}, raw)

	require.NoError(t, m.Set(KeyLowStockNotified, []byte(`{"not":"array"}`)))
	assert.Empty(t, s.LowStockNotified())
}
