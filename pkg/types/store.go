package types

import "errors"

// RecordStore is the sole reader and writer of persisted entities.
//
// Read operations never fail: missing, corrupted, or unreadable collections
// read as empty. Write operations that target a missing id return an error
// wrapping ErrNotFound.
type RecordStore interface {
	// Attach opens the medium described by config. If the medium cannot be
	// written the store continues in memory and StorageWarning reports why.
	// Returns ErrAlreadyAttached if called while attached.
	Attach(config Config) error

	// Detach releases the medium. Idempotent.
	Detach() error

	// StorageWarning returns a non-nil error wrapping ErrStorageUnavailable
	// when the store is running without persistence.
	StorageWarning() error

	ListMedicines() []Medicine
	GetMedicine(id string) (Medicine, error)
	FindMedicineByName(name string) (Medicine, bool)
	AddMedicine(in MedicineInput) (Medicine, error)
	UpdateMedicine(id string, update MedicineUpdate) (Medicine, error)
	DeleteMedicine(id string) error
	RefillMedicine(id string, quantity int, notes string) (StockRecord, error)
	AdjustStockDirectly(id string, newStock int, notes string) (StockRecord, error)

	ListMedicineLogs() []MedicineLog
	ListMedicineLogsByMedicine(medicineID string) []MedicineLog
	AddMedicineLog(in MedicineLogInput) (MedicineLog, error)
	AddMedicineLogWithTimestamp(in MedicineLogInput) (MedicineLog, error)
	DeleteMedicineLog(id string) error

	ListGlucoseReadings() []GlucoseReading
	AddGlucoseReading(in GlucoseInput) (GlucoseReading, error)
	AddGlucoseReadingWithTimestamp(in GlucoseInput) (GlucoseReading, error)
	DeleteGlucoseReading(id string) error

	AddStockRecord(in StockRecordInput) (StockRecord, error)
	ListStockRecords() []StockRecord
	GetStockRecordsByMedicine(medicineID string) []StockRecord
	StockFromHistory(medicineID string) (int, bool)

	GetUserSettings() UserSettings
	SaveUserSettings(settings UserSettings) error

	LowStockNotified() []string
	SaveLowStockNotified(ids []string) error

	Clear() error
}

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("record store is detached")
	ErrAlreadyAttached = errors.New("record store is already attached")
)

// Storage errors.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
)

// Record operation errors.
var (
	ErrNotFound         = errors.New("entity not found")
	ErrInvalidID        = errors.New("invalid entity ID")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidOperation = errors.New("invalid stock operation")
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrInvalidSettings  = errors.New("invalid user settings")
)
