package types

import (
	"math"
	"strings"
)

// Glucose plausibility bounds in mg/dL. Values outside produce warnings only.
const (
	GlucoseLowWarning  = 40
	GlucoseHighWarning = 400
)

// ValidationResult collects blocking errors and advisory warnings.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newValidationResult(errs, warnings []string) ValidationResult {
	if errs == nil {
		errs = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

// ValidateMedicine checks a new or edited medicine. Current stock above the
// nominal total is a warning, not an error.
func ValidateMedicine(in MedicineInput) ValidationResult {
	var errs, warnings []string
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, "Medicine name is required")
	}
	if strings.TrimSpace(in.Dosage) == "" {
		errs = append(errs, "Dosage is required")
	}
	if in.TotalStock <= 0 {
		errs = append(errs, "Total stock must be > 0")
	}
	if in.CurrentStock < 0 {
		errs = append(errs, "Current stock must be >= 0")
	}
	if !in.Schedule.Valid() {
		errs = append(errs, "Schedule is not recognized")
	}
	if in.CurrentStock > in.TotalStock {
		warnings = append(warnings, "Current stock exceeds total stock")
	}
	return newValidationResult(errs, warnings)
}

// ValidateGlucose checks a reading value. Thresholds are compared in mg/dL.
func ValidateGlucose(in GlucoseInput) ValidationResult {
	var errs, warnings []string
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) || in.Value <= 0 {
		errs = append(errs, "Glucose value must be > 0")
		return newValidationResult(errs, warnings)
	}
	mg := GlucoseReading{Value: in.Value, Unit: in.Unit}.MgDL()
	if mg < GlucoseLowWarning {
		warnings = append(warnings, "Glucose unusually low")
	}
	if mg > GlucoseHighWarning {
		warnings = append(warnings, "Glucose unusually high")
	}
	return newValidationResult(errs, warnings)
}
