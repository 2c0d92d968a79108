package reports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

func TestGlucose(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	reading := func(ago time.Duration, v float64, unit types.GlucoseUnit) types.GlucoseReading {
		return types.GlucoseReading{Timestamp: now.Add(-ago), Value: v, Unit: unit}
	}
	readings := []types.GlucoseReading{
		reading(time.Hour, 100, types.UnitMgDL),
		reading(3*time.Hour, 121, ""),
		reading(2*24*time.Hour, 6, types.UnitMmolL),
		reading(10*24*time.Hour, 200, types.UnitMgDL),
		reading(40*24*time.Hour, 300, types.UnitMgDL),
	}

	tests := []struct {
		rng      Range
		count    int
		avg      float64
		min, max float64
	}{
		{Day, 2, 110.5, 100, 121},
		{Week, 3, 109.7, 100, 121},
		{Month, 4, 132.3, 100, 200},
	}
	for _, tt := range tests {
		t.Run(string(tt.rng), func(t *testing.T) {
			rep := Glucose(readings, tt.rng, now)
			assert.Equal(t, tt.count, rep.Count)
			require.NotNil(t, rep.Average)
			assert.InDelta(t, tt.avg, *rep.Average, 1e-9)
			assert.Equal(t, tt.min, *rep.Min)
			assert.Equal(t, tt.max, *rep.Max)
			require.Len(t, rep.Series, tt.count)
			for i := 1; i < len(rep.Series); i++ {
				assert.False(t, rep.Series[i].Timestamp.Before(rep.Series[i-1].Timestamp), "series is chronological")
			}
			assert.True(t, rep.To.Equal(now))
		})
	}
}

func TestGlucoseEmpty(t *testing.T) {
	rep := Glucose(nil, Week, time.Now())
	assert.Zero(t, rep.Count)
	assert.Nil(t, rep.Average)
	assert.Nil(t, rep.Min)
	assert.NotNil(t, rep.Series)
}

func TestGlucoseBoundary(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	rep := Glucose([]types.GlucoseReading{{Timestamp: now.Add(-24 * time.Hour), Value: 90}}, Day, now)
	assert.Equal(t, 1, rep.Count, "a reading exactly at the cutoff is included")
}

func TestParseRange(t *testing.T) {
	for _, v := range []string{"1d", "7d", "30d"} {
		r, err := ParseRange(v)
		require.NoError(t, err)
		assert.Equal(t, Range(v), r)
	}
	_, err := ParseRange("90d")
	assert.ErrorIs(t, err, ErrInvalidRange)
}
