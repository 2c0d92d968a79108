// Stock audit records and the stock arithmetic shared by every stock change.
package types

import "time"

// StockOperation names the cause of a stock change.
type StockOperation string

// Stock operations.
const (
	OpInitialStock   StockOperation = "initial_stock"
	OpAdministration StockOperation = "administration"
	OpRefill         StockOperation = "refill"
	OpAdjustment     StockOperation = "adjustment"
)

// validStockOperations is the set of recognized stock operations.
var validStockOperations = map[StockOperation]bool{
	OpInitialStock:   true,
	OpAdministration: true,
	OpRefill:         true,
	OpAdjustment:     true,
}

// Valid reports whether op is a recognized stock operation.
func (op StockOperation) Valid() bool {
	return validStockOperations[op]
}

// StockRecord is an append-only audit entry capturing one stock-level change.
// NewStock always equals ApplyStockDelta(PreviousStock, QuantityChanged).
type StockRecord struct {
	ID              string         `json:"id"`
	MedicineID      string         `json:"medicineId"`
	Operation       StockOperation `json:"operation"`
	QuantityChanged int            `json:"quantityChanged"`
	PreviousStock   int            `json:"previousStock"`
	NewStock        int            `json:"newStock"`
	Timestamp       time.Time      `json:"timestamp"`
	Notes           string         `json:"notes,omitempty"`
}

// StockRecordInput carries the fields of a stock change. The store computes
// NewStock from PreviousStock and QuantityChanged and generates ID and
// Timestamp.
type StockRecordInput struct {
	MedicineID      string
	Operation       StockOperation
	QuantityChanged int
	PreviousStock   int
	Notes           string
}

// ApplyStockDelta returns previous+delta floored at zero.
func ApplyStockDelta(previous, delta int) int {
	if n := previous + delta; n > 0 {
		return n
	}
	return 0
}

// AdministrationDelta returns the signed stock change for taking quantity
// units: always non-positive regardless of the sign of quantity.
func AdministrationDelta(quantity int) int {
	if quantity < 0 {
		return quantity
	}
	return -quantity
}

// FoldStock replays records in application order and returns the resulting
// stock. ok is false when records is empty.
func FoldStock(records []StockRecord) (stock int, ok bool) {
	for _, r := range records {
		stock = r.NewStock
		ok = true
	}
	return stock, ok
}
