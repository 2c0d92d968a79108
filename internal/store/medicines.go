package store

import (
	"cmp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// ListMedicines returns every medicine, newest first.
func (s *Store) ListMedicines() []types.Medicine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedMedicines(readCollection[types.Medicine](s, KeyMedicines))
}

func sortedMedicines(m map[string]types.Medicine) []types.Medicine {
	out := make([]types.Medicine, 0, len(m))
	for _, med := range m {
		out = append(out, med)
	}
	slices.SortFunc(out, func(a, b types.Medicine) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// GetMedicine returns the medicine with id.
func (s *Store) GetMedicine(id string) (types.Medicine, error) {
	if id == "" {
		return types.Medicine{}, types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	med, ok := readCollection[types.Medicine](s, KeyMedicines)[id]
	if !ok {
		return types.Medicine{}, notFound("medicine", id)
	}
	return med, nil
}

// FindMedicineByName matches names case-insensitively after trimming.
// When several medicines share a name the oldest wins.
func (s *Store) FindMedicineByName(name string) (types.Medicine, bool) {
	want := strings.TrimSpace(name)
	if want == "" {
		return types.Medicine{}, false
	}
	meds := s.ListMedicines()
	for i := len(meds) - 1; i >= 0; i-- {
		if strings.EqualFold(strings.TrimSpace(meds[i].Name), want) {
			return meds[i], true
		}
	}
	return types.Medicine{}, false
}

// AddMedicine persists a new medicine and its initial_stock record.
// Negative current stock is clamped to zero.
func (s *Store) AddMedicine(in types.MedicineInput) (types.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return types.Medicine{}, err
	}
	if !in.Schedule.Valid() {
		return types.Medicine{}, types.ErrInvalidSchedule
	}

	med := types.Medicine{
		ID:           newID(prefixMedicine),
		Name:         in.Name,
		TotalStock:   in.TotalStock,
		CurrentStock: max(0, in.CurrentStock),
		Dosage:       in.Dosage,
		Schedule:     in.Schedule,
		Notes:        in.Notes,
		CreatedAt:    s.timestamp(),
	}
	meds := readCollection[types.Medicine](s, KeyMedicines)
	meds[med.ID] = med
	if err := writeCollection(s, KeyMedicines, meds); err != nil {
		return types.Medicine{}, err
	}

	rec, err := s.addStockRecordLocked(types.StockRecordInput{
		MedicineID:      med.ID,
		Operation:       types.OpInitialStock,
		QuantityChanged: med.CurrentStock,
		PreviousStock:   0,
		Notes:           "Initial stock",
	})
	if err != nil {
		return med, err
	}
	med.CurrentStock = rec.NewStock
	s.logger.Debug("medicine added", zap.String("id", med.ID), zap.Int("stock", med.CurrentStock))
	return med, nil
}

// UpdateMedicine merges update into the stored medicine. This is the
// free-form edit path: a changed CurrentStock is written without a stock
// record. Use AdjustStockDirectly for an audited change.
func (s *Store) UpdateMedicine(id string, update types.MedicineUpdate) (types.Medicine, error) {
	if id == "" {
		return types.Medicine{}, types.ErrInvalidID
	}
	if update.Schedule != nil && !update.Schedule.Valid() {
		return types.Medicine{}, types.ErrInvalidSchedule
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return types.Medicine{}, err
	}

	meds := readCollection[types.Medicine](s, KeyMedicines)
	med, ok := meds[id]
	if !ok {
		return types.Medicine{}, notFound("medicine", id)
	}
	update.Apply(&med)
	meds[id] = med
	if err := writeCollection(s, KeyMedicines, meds); err != nil {
		return types.Medicine{}, err
	}
	return med, nil
}

// DeleteMedicine removes the medicine and every log that references it.
// Stock records are kept. Deleting an absent medicine still removes its
// logs and is not an error.
func (s *Store) DeleteMedicine(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}

	meds := readCollection[types.Medicine](s, KeyMedicines)
	delete(meds, id)
	if err := writeCollection(s, KeyMedicines, meds); err != nil {
		return err
	}

	logs := readCollection[types.MedicineLog](s, KeyMedicineLogs)
	removed := 0
	for k, l := range logs {
		if l.MedicineID == id {
			delete(logs, k)
			removed++
		}
	}
	if err := writeCollection(s, KeyMedicineLogs, logs); err != nil {
		return err
	}
	s.logger.Debug("medicine deleted", zap.String("id", id), zap.Int("logs_removed", removed))
	return nil
}

// RefillMedicine adds quantity units and raises TotalStock to the new level
// when the refill overfills the nominal total.
func (s *Store) RefillMedicine(id string, quantity int, notes string) (types.StockRecord, error) {
	if id == "" {
		return types.StockRecord{}, types.ErrInvalidID
	}
	if quantity <= 0 {
		return types.StockRecord{}, types.ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return types.StockRecord{}, err
	}

	med, ok := readCollection[types.Medicine](s, KeyMedicines)[id]
	if !ok {
		return types.StockRecord{}, notFound("medicine", id)
	}
	rec, err := s.addStockRecordLocked(types.StockRecordInput{
		MedicineID:      id,
		Operation:       types.OpRefill,
		QuantityChanged: quantity,
		PreviousStock:   med.CurrentStock,
		Notes:           notes,
	})
	if err != nil {
		return rec, err
	}
	if rec.NewStock > med.TotalStock {
		meds := readCollection[types.Medicine](s, KeyMedicines)
		if m, ok := meds[id]; ok {
			m.TotalStock = rec.NewStock
			meds[id] = m
			if err := writeCollection(s, KeyMedicines, meds); err != nil {
				return rec, err
			}
		}
	}
	return rec, nil
}

// AdjustStockDirectly sets the stock to newStock (floored at zero) through an
// adjustment record.
func (s *Store) AdjustStockDirectly(id string, newStock int, notes string) (types.StockRecord, error) {
	if id == "" {
		return types.StockRecord{}, types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return types.StockRecord{}, err
	}

	med, ok := readCollection[types.Medicine](s, KeyMedicines)[id]
	if !ok {
		return types.StockRecord{}, notFound("medicine", id)
	}
	if notes == "" {
		notes = "Manual adjustment"
	}
	return s.addStockRecordLocked(types.StockRecordInput{
		MedicineID:      id,
		Operation:       types.OpAdjustment,
		QuantityChanged: max(0, newStock) - med.CurrentStock,
		PreviousStock:   med.CurrentStock,
		Notes:           notes,
	})
}
