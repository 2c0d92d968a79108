package types

import (
	"math"
	"time"
)

// Schedule is a dosing-time pattern. The zero value means no schedule.
type Schedule string

// Dosing schedules.
const (
	ScheduleNone         Schedule = ""
	ScheduleMorning      Schedule = "morning"
	ScheduleNoon         Schedule = "noon"
	ScheduleNight        Schedule = "night"
	ScheduleMorningNoon  Schedule = "morning_noon"
	ScheduleMorningNight Schedule = "morning_night"
	ScheduleNoonNight    Schedule = "noon_night"
	ScheduleThreeTimes   Schedule = "three_times"
)

// validSchedules is the set of recognized schedule values.
var validSchedules = map[Schedule]bool{
	ScheduleNone:         true,
	ScheduleMorning:      true,
	ScheduleNoon:         true,
	ScheduleNight:        true,
	ScheduleMorningNoon:  true,
	ScheduleMorningNight: true,
	ScheduleNoonNight:    true,
	ScheduleThreeTimes:   true,
}

// Valid reports whether s is a recognized schedule (including none).
func (s Schedule) Valid() bool {
	return validSchedules[s]
}

// ParseSchedule converts a string to a Schedule.
// Returns ErrInvalidSchedule if the value is not recognized.
func ParseSchedule(v string) (Schedule, error) {
	s := Schedule(v)
	if !s.Valid() {
		return ScheduleNone, ErrInvalidSchedule
	}
	return s, nil
}

// Medicine is an inventory item with a dosing schedule and stock counters.
//
// CurrentStock is a cache of the newest StockRecord.NewStock for the
// medicine; it is only written through the store's stock record path or the
// free-form edit path of UpdateMedicine.
type Medicine struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	TotalStock   int       `json:"totalStock"`
	CurrentStock int       `json:"currentStock"`
	Dosage       string    `json:"dosage"`
	Schedule     Schedule  `json:"schedule,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MedicineInput carries the caller-supplied fields of a new medicine.
// The store generates ID and CreatedAt.
type MedicineInput struct {
	Name         string   `json:"name"`
	TotalStock   int      `json:"totalStock"`
	CurrentStock int      `json:"currentStock"`
	Dosage       string   `json:"dosage"`
	Schedule     Schedule `json:"schedule,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// MedicineUpdate is a partial update. Nil fields are left unchanged.
// ID and CreatedAt are immutable and therefore absent.
type MedicineUpdate struct {
	Name         *string   `json:"name,omitempty"`
	TotalStock   *int      `json:"totalStock,omitempty"`
	CurrentStock *int      `json:"currentStock,omitempty"`
	Dosage       *string   `json:"dosage,omitempty"`
	Schedule     *Schedule `json:"schedule,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u MedicineUpdate) Empty() bool {
	return u.Name == nil && u.TotalStock == nil && u.CurrentStock == nil &&
		u.Dosage == nil && u.Schedule == nil && u.Notes == nil
}

// Apply merges the non-nil fields of u into m and clamps CurrentStock to be
// non-negative.
func (u MedicineUpdate) Apply(m *Medicine) {
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.TotalStock != nil {
		m.TotalStock = *u.TotalStock
	}
	if u.CurrentStock != nil {
		m.CurrentStock = *u.CurrentStock
	}
	if u.Dosage != nil {
		m.Dosage = *u.Dosage
	}
	if u.Schedule != nil {
		m.Schedule = *u.Schedule
	}
	if u.Notes != nil {
		m.Notes = *u.Notes
	}
	if m.CurrentStock < 0 {
		m.CurrentStock = 0
	}
}

// StockPercent returns CurrentStock as a percentage of TotalStock.
// A medicine without a nominal total reports 100.
func (m Medicine) StockPercent() float64 {
	if m.TotalStock <= 0 {
		return 100
	}
	return float64(m.CurrentStock) / float64(m.TotalStock) * 100
}

// IsLowStock reports whether the medicine is below thresholdPercent of its
// nominal total. Medicines without a nominal total are never low.
func (m Medicine) IsLowStock(thresholdPercent int) bool {
	return m.TotalStock > 0 && m.StockPercent() < float64(thresholdPercent)
}

// IsCriticalStock reports whether the medicine is below the critical level,
// which is half the threshold but never less than 5 percent.
func (m Medicine) IsCriticalStock(thresholdPercent int) bool {
	if m.TotalStock <= 0 {
		return false
	}
	critical := math.Max(5, math.Floor(float64(thresholdPercent)/2))
	return m.StockPercent() < critical
}
