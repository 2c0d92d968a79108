package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMedicine(t *testing.T) {
	tests := []struct {
		name         string
		in           MedicineInput
		wantValid    bool
		wantErrors   int
		wantWarnings int
	}{
		{
			name:      "valid",
			in:        MedicineInput{Name: "Aspirin", Dosage: "81mg", TotalStock: 30, CurrentStock: 30},
			wantValid: true,
		},
		{
			name:       "missing name and dosage",
			in:         MedicineInput{Name: "  ", TotalStock: 30, CurrentStock: 10},
			wantErrors: 2,
		},
		{
			name:       "zero total",
			in:         MedicineInput{Name: "A", Dosage: "1", TotalStock: 0, CurrentStock: 0},
			wantErrors: 1,
		},
		{
			name:         "negative current",
			in:           MedicineInput{Name: "A", Dosage: "1", TotalStock: 10, CurrentStock: -1},
			wantErrors:   1,
			wantWarnings: 0,
		},
		{
			name:       "unknown schedule",
			in:         MedicineInput{Name: "A", Dosage: "1", TotalStock: 10, Schedule: "hourly"},
			wantErrors: 1,
		},
		{
			name:         "overstock is a warning",
			in:           MedicineInput{Name: "A", Dosage: "1", TotalStock: 10, CurrentStock: 12},
			wantValid:    true,
			wantWarnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateMedicine(tt.in)
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Len(t, res.Errors, tt.wantErrors)
			assert.Len(t, res.Warnings, tt.wantWarnings)
		})
	}
}

func TestValidateGlucose(t *testing.T) {
	tests := []struct {
		name         string
		in           GlucoseInput
		wantValid    bool
		wantWarnings []string
	}{
		{name: "normal", in: GlucoseInput{Value: 110}, wantValid: true, wantWarnings: []string{}},
		{name: "zero", in: GlucoseInput{Value: 0}, wantWarnings: []string{}},
		{name: "negative", in: GlucoseInput{Value: -5}, wantWarnings: []string{}},
		{name: "low", in: GlucoseInput{Value: 35}, wantValid: true, wantWarnings: []string{"Glucose unusually low"}},
		{name: "high", in: GlucoseInput{Value: 450}, wantValid: true, wantWarnings: []string{"Glucose unusually high"}},
		{name: "mmol normal", in: GlucoseInput{Value: 6.1, Unit: UnitMmolL}, wantValid: true, wantWarnings: []string{}},
		{name: "mmol high", in: GlucoseInput{Value: 25, Unit: UnitMmolL}, wantValid: true, wantWarnings: []string{"Glucose unusually high"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateGlucose(tt.in)
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantWarnings, res.Warnings)
			assert.NotNil(t, res.Errors)
		})
	}
}
