package types

// Theme is the display theme preference.
type Theme string

// Themes.
const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// DefaultLowStockThresholdPercent is the threshold used until the user
// saves their own.
const DefaultLowStockThresholdPercent = 20

// UserSettings is the singleton settings record.
type UserSettings struct {
	LowStockThresholdPercent int   `json:"lowStockThresholdPercent"`
	Theme                    Theme `json:"theme,omitempty"`
	NotificationsEnabled     *bool `json:"notificationsEnabled,omitempty"`
}

// DefaultUserSettings returns the settings materialized on first read.
func DefaultUserSettings() UserSettings {
	enabled := true
	return UserSettings{
		LowStockThresholdPercent: DefaultLowStockThresholdPercent,
		Theme:                    ThemeSystem,
		NotificationsEnabled:     &enabled,
	}
}

// Notifications reports whether notifications are enabled. An unset value
// counts as enabled.
func (s UserSettings) Notifications() bool {
	return s.NotificationsEnabled == nil || *s.NotificationsEnabled
}

// Validate checks the threshold range and theme.
// Returns ErrInvalidSettings on failure.
func (s UserSettings) Validate() error {
	if s.LowStockThresholdPercent < 0 || s.LowStockThresholdPercent > 100 {
		return ErrInvalidSettings
	}
	switch s.Theme {
	case "", ThemeLight, ThemeDark, ThemeSystem:
		return nil
	default:
		return ErrInvalidSettings
	}
}
