package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

func TestAddMedicineLogDeductsStock(t *testing.T) {
	s := newTestStore(t, nil)
	med := addMedicine(t, s, "Metformin", 50, 100)

	entry, err := s.AddMedicineLog(types.MedicineLogInput{MedicineID: med.ID, MedicineName: med.Name, Quantity: 5})
	require.NoError(t, err)
	assert.False(t, entry.Timestamp.IsZero())

	records := s.GetStockRecordsByMedicine(med.ID)
	require.Len(t, records, 2)
	assert.Equal(t, types.OpAdministration, records[0].Operation)
	assert.Equal(t, -5, records[0].QuantityChanged)
	assert.Equal(t, 50, records[0].PreviousStock)
	assert.Equal(t, 45, records[0].NewStock)

	meds := s.ListMedicines()
	require.Len(t, meds, 1)
	assert.Equal(t, 45, meds[0].CurrentStock)
}

func TestAddMedicineLogStockWriteFailureLeavesOrphanLog(t *testing.T) {
	m := newFaultyMedium()
	s := newTestStore(t, m)
	med := addMedicine(t, s, "Metformin", 50, 100)

	m.failSet[KeyStockRecords] = true
	entry, err := s.AddMedicineLog(types.MedicineLogInput{MedicineID: med.ID, MedicineName: med.Name, Quantity: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, errMediumDown)

	logs := s.ListMedicineLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, entry.ID, logs[0].ID)

	got, err := s.GetMedicine(med.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.CurrentStock)
	assert.Len(t, s.GetStockRecordsByMedicine(med.ID), 1)
	assert.Empty(t, s.VerifyStock())
}

func TestAddMedicineLogNeverNegative(t *testing.T) {
	s := newTestStore(t, nil)
	med := addMedicine(t, s, "Aspirin", 3, 30)

	_, err := s.AddMedicineLog(types.MedicineLogInput{MedicineID: med.ID, Quantity: 1000})
	require.NoError(t, err)
	records := s.GetStockRecordsByMedicine(med.ID)
	assert.Equal(t, 0, records[0].NewStock)

	got, err := s.GetMedicine(med.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentStock)
}

func TestAddMedicineLogNegativeQuantityStillDeducts(t *testing.T) {
	s := newTestStore(t, nil)
	med := addMedicine(t, s, "Aspirin", 10, 30)

	_, err := s.AddMedicineLog(types.MedicineLogInput{MedicineID: med.ID, Quantity: -2})
	require.NoError(t, err)
	got, err := s.GetMedicine(med.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.CurrentStock)
}

func TestAddMedicineLogForMissingMedicine(t *testing.T) {
	s := newTestStore(t, nil)

	entry, err := s.AddMedicineLog(types.MedicineLogInput{MedicineID: "med_gone", MedicineName: "Gone", Quantity: 2})
	require.NoError(t, err)
	assert.Len(t, s.ListMedicineLogs(), 1)

	records := s.GetStockRecordsByMedicine("med_gone")
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].PreviousStock)
	assert.Equal(t, 0, records[0].NewStock)
	assert.Equal(t, "Gone", entry.MedicineName)

	_, err = s.AddMedicineLog(types.MedicineLogInput{Quantity: 1})
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func TestAddMedicineLogWithTimestamp(t *testing.T) {
	s := newTestStore(t, nil)
	med := addMedicine(t, s, "Aspirin", 10, 30)
	when := time.Date(2025, 6, 1, 21, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	entry, err := s.AddMedicineLogWithTimestamp(types.MedicineLogInput{
		MedicineID: med.ID, MedicineName: med.Name, Quantity: 2, Timestamp: when,
	})
	require.NoError(t, err)
	assert.True(t, entry.Timestamp.Equal(when))

	got, err := s.GetMedicine(med.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.CurrentStock)
}

func TestListMedicineLogsOrderAndFilter(t *testing.T) {
	s := newTestStore(t, nil)
	a := addMedicine(t, s, "A", 10, 10)
	b := addMedicine(t, s, "B", 10, 10)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, m := range []types.Medicine{a, b, a} {
		_, err := s.AddMedicineLogWithTimestamp(types.MedicineLogInput{
			MedicineID: m.ID, Quantity: 1, Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	logs := s.ListMedicineLogs()
	require.Len(t, logs, 3)
	assert.True(t, logs[0].Timestamp.After(logs[1].Timestamp))
	assert.True(t, logs[1].Timestamp.After(logs[2].Timestamp))

	onlyA := s.ListMedicineLogsByMedicine(a.ID)
	require.Len(t, onlyA, 2)
	assert.True(t, onlyA[0].Timestamp.Equal(base.Add(2*time.Hour)))
}

func TestDeleteMedicineLogIdempotent(t *testing.T) {
	s := newTestStore(t, nil)
	med := addMedicine(t, s, "A", 10, 10)
	entry, err := s.AddMedicineLog(types.MedicineLogInput{MedicineID: med.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, s.DeleteMedicineLog(entry.ID))
	require.NoError(t, s.DeleteMedicineLog(entry.ID))
	assert.Empty(t, s.ListMedicineLogs())

	// Stock is not restored.
	got, err := s.GetMedicine(med.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.CurrentStock)
}
