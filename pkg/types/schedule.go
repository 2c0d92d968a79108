// Dosing schedule helpers: doses per day, schedule inference from free text,
// schedule slot filtering, and supply arithmetic.
package types

import (
	"regexp"
	"strconv"
	"strings"
)

// Schedule slots accepted by MatchesScheduleFilter.
const (
	SlotAll     = "all"
	SlotMorning = "morning"
	SlotNoon    = "noon"
	SlotNight   = "night"
)

// TimesPerDay returns the number of doses the schedule implies.
// An absent schedule counts as once a day.
func (s Schedule) TimesPerDay() int {
	switch s {
	case ScheduleMorningNoon, ScheduleMorningNight, ScheduleNoonNight:
		return 2
	case ScheduleThreeTimes:
		return 3
	default:
		return 1
	}
}

// Slots returns the day slots the schedule covers.
func (s Schedule) Slots() []string {
	switch s {
	case ScheduleMorning:
		return []string{SlotMorning}
	case ScheduleNoon:
		return []string{SlotNoon}
	case ScheduleNight:
		return []string{SlotNight}
	case ScheduleMorningNoon:
		return []string{SlotMorning, SlotNoon}
	case ScheduleMorningNight:
		return []string{SlotMorning, SlotNight}
	case ScheduleNoonNight:
		return []string{SlotNoon, SlotNight}
	case ScheduleThreeTimes:
		return []string{SlotMorning, SlotNoon, SlotNight}
	default:
		return nil
	}
}

var (
	reMorning = regexp.MustCompile(`\b(morning|breakfast|am)\b`)
	reNoon    = regexp.MustCompile(`\b(noon|lunch|afternoon|midday)\b`)
	reNight   = regexp.MustCompile(`\b(night|evening|dinner|bed\s*time|pm)\b`)
	reThrice  = regexp.MustCompile(`\b(thrice|3\s*times|three\s*times)\b`)
	reTwice   = regexp.MustCompile(`\b(twice|2\s*times|two\s*times|bid)\b`)

	reTimesPrefix = regexp.MustCompile(`(?:x|×)\s*(\d+)`)
	reTimesSuffix = regexp.MustCompile(`(\d+)\s*x`)
	reTablets     = regexp.MustCompile(`(\d+)\s*(?:tablets|tablet|tab)\b`)
)

// DeriveSchedule infers a schedule from dosage and notes text. Returns
// ScheduleNone when nothing recognizable is found.
func DeriveSchedule(dosage, notes string) Schedule {
	text := strings.ToLower(dosage + " " + notes)
	if reThrice.MatchString(text) {
		return ScheduleThreeTimes
	}
	if reTwice.MatchString(text) {
		return ScheduleMorningNight
	}
	morning := reMorning.MatchString(text)
	noon := reNoon.MatchString(text)
	night := reNight.MatchString(text)
	switch {
	case morning && noon && night:
		return ScheduleThreeTimes
	case morning && noon:
		return ScheduleMorningNoon
	case morning && night:
		return ScheduleMorningNight
	case noon && night:
		return ScheduleNoonNight
	case morning:
		return ScheduleMorning
	case noon:
		return ScheduleNoon
	case night:
		return ScheduleNight
	}
	return ScheduleNone
}

// EffectiveSchedule returns the stored schedule or, when absent, the one
// derived from the dosage and notes text.
func (m Medicine) EffectiveSchedule() Schedule {
	if m.Schedule != ScheduleNone {
		return m.Schedule
	}
	return DeriveSchedule(m.Dosage, m.Notes)
}

// MatchesScheduleFilter reports whether the medicine is taken in slot.
// SlotAll matches everything; a medicine with no known schedule matches only
// SlotAll. Unknown slots match everything.
func MatchesScheduleFilter(m Medicine, slot string) bool {
	switch slot {
	case SlotMorning, SlotNoon, SlotNight:
	default:
		return true
	}
	for _, s := range m.EffectiveSchedule().Slots() {
		if s == slot {
			return true
		}
	}
	return false
}

// InferTabletsPerDose parses a per-dose tablet count out of free text such
// as "x2", "2x", or "2 tablets". Only counts from 1 to 9 are accepted.
func InferTabletsPerDose(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	lower := strings.ToLower(text)
	for _, re := range []*regexp.Regexp{reTimesPrefix, reTimesSuffix, reTablets} {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 && n < 10 {
			return n, true
		}
	}
	return 0, false
}

// TabletsPerDose infers the per-dose count from the dosage, then the notes,
// defaulting to one.
func (m Medicine) TabletsPerDose() int {
	if n, ok := InferTabletsPerDose(m.Dosage); ok {
		return n
	}
	if n, ok := InferTabletsPerDose(m.Notes); ok {
		return n
	}
	return 1
}

// SupplyForDays returns the number of tablets needed for days of treatment.
// Negative inputs count as zero.
func SupplyForDays(perDose, timesPerDay, days int) int {
	return max(0, perDose) * max(0, timesPerDay) * max(0, days)
}

// DaysRemaining returns how many whole days the current stock lasts at the
// inferred daily consumption.
func (m Medicine) DaysRemaining() int {
	daily := m.TabletsPerDose() * m.EffectiveSchedule().TimesPerDay()
	if daily <= 0 {
		return 0
	}
	return m.CurrentStock / daily
}
