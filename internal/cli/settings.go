package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change user settings",
	}
	cmd.AddCommand(newSettingsShowCmd(a), newSettingsSetCmd(a))
	return cmd
}

func printSettings(w io.Writer, s types.UserSettings) {
	fmt.Fprintf(w, "Low stock threshold: %d%%\n", s.LowStockThresholdPercent)
	fmt.Fprintf(w, "Theme:               %s\n", cmpString(string(s.Theme), string(types.ThemeSystem)))
	fmt.Fprintf(w, "Notifications:       %t\n", s.Notifications())
}

func newSettingsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show user settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			settings := s.GetUserSettings()
			return a.emit(cmd, settings, func(w io.Writer) { printSettings(w, settings) })
		},
	}
}

func newSettingsSetCmd(a *app) *cobra.Command {
	var threshold int
	var theme string
	var notifications bool
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change user settings",
		Long: `Set changes the given settings and leaves the rest.

Example:
  medtrack settings set --threshold 30
  medtrack settings set --theme dark --notifications=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if !f.Changed("threshold") && !f.Changed("theme") && !f.Changed("notifications") {
				return userError(errors.New("nothing to change"))
			}
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			settings := s.GetUserSettings()
			if f.Changed("threshold") {
				settings.LowStockThresholdPercent = threshold
			}
			if f.Changed("theme") {
				settings.Theme = types.Theme(theme)
			}
			if f.Changed("notifications") {
				settings.NotificationsEnabled = &notifications
			}
			if err := s.SaveUserSettings(settings); err != nil {
				return storeError(fmt.Errorf("save settings: %w", err))
			}
			return a.emit(cmd, settings, func(w io.Writer) { printSettings(w, settings) })
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", types.DefaultLowStockThresholdPercent, "low-stock threshold percent (0-100)")
	cmd.Flags().StringVar(&theme, "theme", string(types.ThemeSystem), "theme (light, dark, system)")
	cmd.Flags().BoolVar(&notifications, "notifications", true, "enable low-stock notifications")
	return cmd
}
