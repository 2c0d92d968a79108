package store

import (
	"cmp"
	"slices"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// AddStockRecord appends an audit record and overwrites the medicine's
// currentStock with its newStock. A record for an absent medicine is still
// kept.
func (s *Store) AddStockRecord(in types.StockRecordInput) (types.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return types.StockRecord{}, err
	}
	return s.addStockRecordLocked(in)
}

// addStockRecordLocked is the only path that writes a stock record.
// Callers hold s.mu.
func (s *Store) addStockRecordLocked(in types.StockRecordInput) (types.StockRecord, error) {
	if in.MedicineID == "" {
		return types.StockRecord{}, types.ErrInvalidID
	}
	if !in.Operation.Valid() {
		return types.StockRecord{}, types.ErrInvalidOperation
	}

	rec := types.StockRecord{
		ID:              newID(prefixStock),
		MedicineID:      in.MedicineID,
		Operation:       in.Operation,
		QuantityChanged: in.QuantityChanged,
		PreviousStock:   in.PreviousStock,
		NewStock:        types.ApplyStockDelta(in.PreviousStock, in.QuantityChanged),
		Timestamp:       s.timestamp(),
		Notes:           in.Notes,
	}
	records := readCollection[types.StockRecord](s, KeyStockRecords)
	records[rec.ID] = rec
	if err := writeCollection(s, KeyStockRecords, records); err != nil {
		return types.StockRecord{}, err
	}

	meds := readCollection[types.Medicine](s, KeyMedicines)
	if med, ok := meds[in.MedicineID]; ok {
		med.CurrentStock = rec.NewStock
		meds[in.MedicineID] = med
		if err := writeCollection(s, KeyMedicines, meds); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// ListStockRecords returns every stock record, newest first.
func (s *Store) ListStockRecords() []types.StockRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedStockRecords(readCollection[types.StockRecord](s, KeyStockRecords), "")
}

// GetStockRecordsByMedicine returns one medicine's records, newest first.
// Records outlive their medicine.
func (s *Store) GetStockRecordsByMedicine(medicineID string) []types.StockRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedStockRecords(readCollection[types.StockRecord](s, KeyStockRecords), medicineID)
}

func sortedStockRecords(m map[string]types.StockRecord, medicineID string) []types.StockRecord {
	out := make([]types.StockRecord, 0, len(m))
	for _, r := range m {
		if medicineID == "" || r.MedicineID == medicineID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b types.StockRecord) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// StockFromHistory folds the medicine's records oldest first and returns
// the last newStock. ok is false when the medicine has no records.
func (s *Store) StockFromHistory(medicineID string) (int, bool) {
	records := s.GetStockRecordsByMedicine(medicineID)
	slices.Reverse(records)
	return types.FoldStock(records)
}

// StockDrift describes a medicine whose cached stock disagrees with its
// stock history.
type StockDrift struct {
	MedicineID  string `json:"medicineId"`
	Name        string `json:"name"`
	Cached      int    `json:"cached"`
	FromHistory int    `json:"fromHistory"`
}

// VerifyStock compares every medicine's currentStock with the fold of its
// records. Medicines without records are skipped.
func (s *Store) VerifyStock() []StockDrift {
	s.mu.Lock()
	meds := sortedMedicines(readCollection[types.Medicine](s, KeyMedicines))
	all := readCollection[types.StockRecord](s, KeyStockRecords)
	s.mu.Unlock()

	var drift []StockDrift
	for _, m := range meds {
		records := sortedStockRecords(all, m.ID)
		slices.Reverse(records)
		stock, ok := types.FoldStock(records)
		if ok && stock != m.CurrentStock {
			drift = append(drift, StockDrift{
				MedicineID:  m.ID,
				Name:        m.Name,
				Cached:      m.CurrentStock,
				FromHistory: stock,
			})
		}
	}
	return drift
}
