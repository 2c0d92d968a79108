package store

import (
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// settingsEnvelope is the persisted shape of the settings key.
type settingsEnvelope struct {
	Settings *types.UserSettings `json:"settings"`
}

// GetUserSettings returns the stored settings. Defaults are written when no
// record exists; fields missing from a stored record take their default
// values. A medium read failure returns defaults and leaves the stored
// record alone.
func (s *Store) GetUserSettings() types.UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := types.DefaultUserSettings()
	if !s.attached {
		return defaults
	}
	data, ok, err := s.medium.Get(KeyUserSettings)
	if err != nil {
		s.logger.Warn("reading settings", zap.String("key", KeyUserSettings), zap.Error(err))
		return defaults
	}
	if ok {
		var env struct {
			Settings json.RawMessage `json:"settings"`
		}
		if err := json.Unmarshal(data, &env); err == nil && detectSchema(env.Settings) == schemaMap {
			settings := defaults
			if err := json.Unmarshal(env.Settings, &settings); err == nil {
				return settings
			}
		}
		s.logger.Warn("corrupted settings read as defaults", zap.String("key", KeyUserSettings))
	}
	if err := s.writeSettings(defaults); err != nil {
		s.logger.Warn("persisting default settings", zap.Error(err))
	}
	return defaults
}

// SaveUserSettings overwrites the settings record.
func (s *Store) SaveUserSettings(settings types.UserSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	return s.writeSettings(settings)
}

func (s *Store) writeSettings(settings types.UserSettings) error {
	data, err := json.Marshal(settingsEnvelope{Settings: &settings})
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := s.medium.Set(KeyUserSettings, data); err != nil {
		return fmt.Errorf("writing %s: %w", KeyUserSettings, err)
	}
	return nil
}

// LowStockNotified returns the ids already alerted for low stock.
func (s *Store) LowStockNotified() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return []string{}
	}
	data, ok, err := s.medium.Get(KeyLowStockNotified)
	if err != nil || !ok {
		return []string{}
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		s.logger.Warn("corrupted notified set reads as empty", zap.Error(err))
		return []string{}
	}
	return ids
}

// SaveLowStockNotified replaces the alerted set. Duplicates and empty ids
// are dropped.
func (s *Store) SaveLowStockNotified(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(clean, id) {
			clean = append(clean, id)
		}
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("encoding notified set: %w", err)
	}
	if err := s.medium.Set(KeyLowStockNotified, data); err != nil {
		return fmt.Errorf("writing %s: %w", KeyLowStockNotified, err)
	}
	return nil
}
