package types

import "time"

// GlucoseUnit is the unit a reading was taken in.
type GlucoseUnit string

// Glucose units.
const (
	UnitMgDL   GlucoseUnit = "mg/dL"
	UnitMmolL  GlucoseUnit = "mmol/L"
	mgPerMmolL             = 18.0
)

// Common measurement types. Other free-form values are accepted.
const (
	MeasurementFasting  = "fasting"
	MeasurementPostMeal = "post-meal"
	MeasurementRandom   = "random"
	MeasurementBedtime  = "bedtime"
)

// GlucoseReading is a single blood-glucose measurement.
type GlucoseReading struct {
	ID              string      `json:"id"`
	Value           float64     `json:"value"`
	Timestamp       time.Time   `json:"timestamp"`
	Notes           string      `json:"notes,omitempty"`
	Unit            GlucoseUnit `json:"unit,omitempty"`
	MeasurementType string      `json:"measurementType,omitempty"`
}

// GlucoseInput carries the caller-supplied fields of a reading. Empty Unit and
// MeasurementType are defaulted by the store; a zero Timestamp means "now" for
// the timestamped store operation.
type GlucoseInput struct {
	Value           float64     `json:"value"`
	Timestamp       time.Time   `json:"timestamp,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	Unit            GlucoseUnit `json:"unit,omitempty"`
	MeasurementType string      `json:"measurementType,omitempty"`
}

// MgDL returns the reading value in mg/dL.
func (g GlucoseReading) MgDL() float64 {
	if g.Unit == UnitMmolL {
		return g.Value * mgPerMmolL
	}
	return g.Value
}
