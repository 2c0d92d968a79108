// Package alerts evaluates stock levels against the low-stock threshold and
// notifies once per medicine until it recovers.
package alerts

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/medtrack/internal/notify"
	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// Title is the notification title for every low-stock alert.
const Title = "Low stock alert"

// Store is the part of the record store the monitor reads and writes.
type Store interface {
	ListMedicines() []types.Medicine
	GetUserSettings() types.UserSettings
	LowStockNotified() []string
	SaveLowStockNotified(ids []string) error
}

// Alert describes one medicine below the threshold.
type Alert struct {
	MedicineID   string  `json:"medicineId"`
	Name         string  `json:"name"`
	CurrentStock int     `json:"currentStock"`
	TotalStock   int     `json:"totalStock"`
	Percent      float64 `json:"percent"`
	Critical     bool    `json:"critical"`
}

// Outcome is the result of one notification attempt.
type Outcome struct {
	MedicineID string        `json:"medicineId"`
	Result     notify.Result `json:"-"`
	Status     string        `json:"result"`
}

// Report is the result of a Check.
type Report struct {
	Threshold int       `json:"threshold"`
	Low       []Alert   `json:"low"`
	Notified  []string  `json:"notified"`
	Recovered []string  `json:"recovered"`
	Outcomes  []Outcome `json:"outcomes,omitempty"`
}

// Body formats the notification body for m.
func Body(m types.Medicine) string {
	return fmt.Sprintf("%s: %d remaining", m.Name, m.CurrentStock)
}

// CrossedThreshold reports whether a stock change moved a medicine from at
// or above thresholdPercent to below it.
func CrossedThreshold(before, after types.Medicine, thresholdPercent int) bool {
	if after.TotalStock <= 0 {
		return false
	}
	t := float64(thresholdPercent)
	return before.StockPercent() >= t && after.StockPercent() < t
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// Monitor runs low-stock checks against a store.
type Monitor struct {
	store    Store
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewMonitor returns a monitor that notifies through notifier.
func NewMonitor(store Store, notifier notify.Notifier, opts ...Option) *Monitor {
	m := &Monitor{store: store, notifier: notifier, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check evaluates every medicine. Ids that are no longer low are dropped
// from the notified set. When notifications are enabled each newly low
// medicine is notified and remembered; a Failed notification is retried on
// the next check. The updated set is persisted.
func (m *Monitor) Check(ctx context.Context) (Report, error) {
	settings := m.store.GetUserSettings()
	threshold := settings.LowStockThresholdPercent
	rep := Report{Threshold: threshold, Low: []Alert{}, Notified: []string{}, Recovered: []string{}}

	var low []types.Medicine
	lowIDs := make(map[string]bool)
	for _, med := range m.store.ListMedicines() {
		if !med.IsLowStock(threshold) {
			continue
		}
		low = append(low, med)
		lowIDs[med.ID] = true
		rep.Low = append(rep.Low, Alert{
			MedicineID:   med.ID,
			Name:         med.Name,
			CurrentStock: med.CurrentStock,
			TotalStock:   med.TotalStock,
			Percent:      med.StockPercent(),
			Critical:     med.IsCriticalStock(threshold),
		})
	}

	var notified []string
	for _, id := range m.store.LowStockNotified() {
		if lowIDs[id] {
			notified = append(notified, id)
		} else {
			rep.Recovered = append(rep.Recovered, id)
		}
	}

	if settings.Notifications() {
		for _, med := range low {
			if slices.Contains(notified, med.ID) {
				continue
			}
			res := m.notifier.Show(ctx, Title, Body(med))
			rep.Outcomes = append(rep.Outcomes, Outcome{MedicineID: med.ID, Result: res, Status: res.String()})
			if res == notify.Failed {
				m.logger.Warn("low stock notification failed", zap.String("medicine", med.ID))
				continue
			}
			notified = append(notified, med.ID)
			rep.Notified = append(rep.Notified, med.ID)
		}
	}

	if err := m.store.SaveLowStockNotified(notified); err != nil {
		return rep, fmt.Errorf("saving notified set: %w", err)
	}
	m.logger.Debug("low stock check",
		zap.Int("low", len(rep.Low)),
		zap.Int("notified", len(rep.Notified)),
		zap.Int("recovered", len(rep.Recovered)))
	return rep, nil
}

// AfterDose notifies immediately when a dose moved a medicine below the
// threshold and records it so the next Check does not repeat the alert.
// It returns false when no notification was attempted.
func (m *Monitor) AfterDose(ctx context.Context, before, after types.Medicine) (bool, notify.Result, error) {
	settings := m.store.GetUserSettings()
	if !settings.Notifications() || !CrossedThreshold(before, after, settings.LowStockThresholdPercent) {
		return false, notify.Ok, nil
	}
	notified := m.store.LowStockNotified()
	if slices.Contains(notified, after.ID) {
		return false, notify.Ok, nil
	}
	res := m.notifier.Show(ctx, Title, Body(after))
	if res == notify.Failed {
		return true, res, nil
	}
	if err := m.store.SaveLowStockNotified(append(notified, after.ID)); err != nil {
		return true, res, fmt.Errorf("saving notified set: %w", err)
	}
	return true, res, nil
}
