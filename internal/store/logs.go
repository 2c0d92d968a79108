package store

import (
	"cmp"
	"slices"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// ListMedicineLogs returns every dose log, newest first.
func (s *Store) ListMedicineLogs() []types.MedicineLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedLogs(readCollection[types.MedicineLog](s, KeyMedicineLogs), "")
}

// ListMedicineLogsByMedicine returns the logs of one medicine, newest first.
func (s *Store) ListMedicineLogsByMedicine(medicineID string) []types.MedicineLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedLogs(readCollection[types.MedicineLog](s, KeyMedicineLogs), medicineID)
}

func sortedLogs(m map[string]types.MedicineLog, medicineID string) []types.MedicineLog {
	out := make([]types.MedicineLog, 0, len(m))
	for _, l := range m {
		if medicineID == "" || l.MedicineID == medicineID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b types.MedicineLog) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// AddMedicineLog records a dose taken now and deducts it from stock.
func (s *Store) AddMedicineLog(in types.MedicineLogInput) (types.MedicineLog, error) {
	in.Timestamp = s.timestamp()
	return s.addMedicineLog(in)
}

// AddMedicineLogWithTimestamp records a dose at in.Timestamp, or now when it
// is zero, and deducts it from stock.
func (s *Store) AddMedicineLogWithTimestamp(in types.MedicineLogInput) (types.MedicineLog, error) {
	if in.Timestamp.IsZero() {
		in.Timestamp = s.timestamp()
	}
	return s.addMedicineLog(in)
}

// addMedicineLog writes the log, then the administration record. The
// previous stock is read after the log write; a missing medicine counts as
// zero stock.
func (s *Store) addMedicineLog(in types.MedicineLogInput) (types.MedicineLog, error) {
	if in.MedicineID == "" {
		return types.MedicineLog{}, types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return types.MedicineLog{}, err
	}

	entry := types.MedicineLog{
		ID:           newID(prefixLog),
		MedicineID:   in.MedicineID,
		MedicineName: in.MedicineName,
		Quantity:     in.Quantity,
		Timestamp:    in.Timestamp.UTC(),
		Notes:        in.Notes,
	}
	logs := readCollection[types.MedicineLog](s, KeyMedicineLogs)
	logs[entry.ID] = entry
	if err := writeCollection(s, KeyMedicineLogs, logs); err != nil {
		return types.MedicineLog{}, err
	}

	previous := 0
	if med, ok := readCollection[types.Medicine](s, KeyMedicines)[in.MedicineID]; ok {
		previous = med.CurrentStock
	}
	rec, err := s.addStockRecordLocked(types.StockRecordInput{
		MedicineID:      in.MedicineID,
		Operation:       types.OpAdministration,
		QuantityChanged: types.AdministrationDelta(in.Quantity),
		PreviousStock:   previous,
		Notes:           in.Notes,
	})
	if err != nil {
		s.logger.Warn("dose logged without stock record",
			zap.String("log_id", entry.ID), zap.String("medicine_id", in.MedicineID), zap.Error(err))
		return entry, err
	}
	s.logger.Debug("dose logged",
		zap.String("medicine_id", in.MedicineID), zap.Int("previous", rec.PreviousStock), zap.Int("new", rec.NewStock))
	return entry, nil
}

// DeleteMedicineLog removes a log. Stock is not restored. Idempotent.
func (s *Store) DeleteMedicineLog(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	logs := readCollection[types.MedicineLog](s, KeyMedicineLogs)
	if _, ok := logs[id]; !ok {
		return nil
	}
	delete(logs, id)
	return writeCollection(s, KeyMedicineLogs, logs)
}
