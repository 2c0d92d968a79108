package types

import "time"

// MedicineLog records one instance of taking a dose.
//
// MedicineName is a snapshot taken when the log is written; renaming the
// medicine later does not touch existing logs.
type MedicineLog struct {
	ID           string    `json:"id"`
	MedicineID   string    `json:"medicineId"`
	MedicineName string    `json:"medicineName"`
	Quantity     int       `json:"quantity"`
	Timestamp    time.Time `json:"timestamp"`
	Notes        string    `json:"notes,omitempty"`
}

// MedicineLogInput carries the caller-supplied fields of a dose log.
// A zero Timestamp means "now" for the timestamped store operation.
type MedicineLogInput struct {
	MedicineID   string    `json:"medicineId"`
	MedicineName string    `json:"medicineName"`
	Quantity     int       `json:"quantity"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}
