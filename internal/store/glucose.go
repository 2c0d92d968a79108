package store

import (
	"cmp"
	"slices"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// ListGlucoseReadings returns every reading, newest first.
func (s *Store) ListGlucoseReadings() []types.GlucoseReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := readCollection[types.GlucoseReading](s, KeyGlucoseReadings)
	out := make([]types.GlucoseReading, 0, len(m))
	for _, g := range m {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b types.GlucoseReading) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// AddGlucoseReading records a reading taken now.
func (s *Store) AddGlucoseReading(in types.GlucoseInput) (types.GlucoseReading, error) {
	in.Timestamp = s.timestamp()
	return s.addGlucoseReading(in)
}

// AddGlucoseReadingWithTimestamp records a reading at in.Timestamp, or now
// when it is zero.
func (s *Store) AddGlucoseReadingWithTimestamp(in types.GlucoseInput) (types.GlucoseReading, error) {
	if in.Timestamp.IsZero() {
		in.Timestamp = s.timestamp()
	}
	return s.addGlucoseReading(in)
}

func (s *Store) addGlucoseReading(in types.GlucoseInput) (types.GlucoseReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return types.GlucoseReading{}, err
	}

	reading := types.GlucoseReading{
		ID:              newID(prefixGlucose),
		Value:           in.Value,
		Timestamp:       in.Timestamp.UTC(),
		Notes:           in.Notes,
		Unit:            cmp.Or(in.Unit, types.UnitMgDL),
		MeasurementType: cmp.Or(in.MeasurementType, types.MeasurementRandom),
	}
	m := readCollection[types.GlucoseReading](s, KeyGlucoseReadings)
	m[reading.ID] = reading
	if err := writeCollection(s, KeyGlucoseReadings, m); err != nil {
		return types.GlucoseReading{}, err
	}
	return reading, nil
}

// DeleteGlucoseReading removes a reading. Idempotent.
func (s *Store) DeleteGlucoseReading(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	m := readCollection[types.GlucoseReading](s, KeyGlucoseReadings)
	if _, ok := m[id]; !ok {
		return nil
	}
	delete(m, id)
	return writeCollection(s, KeyGlucoseReadings, m)
}
