// Package reports summarizes glucose readings over a trailing time range.
package reports

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// Range is a trailing report window.
type Range string

// Ranges.
const (
	Day   Range = "1d"
	Week  Range = "7d"
	Month Range = "30d"
)

// ErrInvalidRange is returned by ParseRange for unknown ranges.
var ErrInvalidRange = errors.New("invalid report range")

// ParseRange accepts 1d, 7d, and 30d.
func ParseRange(v string) (Range, error) {
	switch r := Range(v); r {
	case Day, Week, Month:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRange, v)
	}
}

// Duration returns the window length.
func (r Range) Duration() time.Duration {
	switch r {
	case Day:
		return 24 * time.Hour
	case Month:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Point is one reading in a report series, in mg/dL.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// GlucoseReport summarizes readings in a range. Average, Min, and Max are
// nil when the range holds no readings.
type GlucoseReport struct {
	Range   Range     `json:"range"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Count   int       `json:"count"`
	Average *float64  `json:"average,omitempty"`
	Min     *float64  `json:"min,omitempty"`
	Max     *float64  `json:"max,omitempty"`
	Series  []Point   `json:"series"`
}

// Glucose reports the readings taken at or after now minus the range.
// Values are normalized to mg/dL; the average is rounded to one decimal and
// the series is oldest first.
func Glucose(readings []types.GlucoseReading, rng Range, now time.Time) GlucoseReport {
	from := now.Add(-rng.Duration())
	rep := GlucoseReport{Range: rng, From: from, To: now, Series: []Point{}}
	for _, r := range readings {
		if r.Timestamp.Before(from) {
			continue
		}
		rep.Series = append(rep.Series, Point{Timestamp: r.Timestamp, Value: r.MgDL()})
	}
	slices.SortStableFunc(rep.Series, func(a, b Point) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	rep.Count = len(rep.Series)
	if rep.Count == 0 {
		return rep
	}
	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, p := range rep.Series {
		lo = min(lo, p.Value)
		hi = max(hi, p.Value)
		sum += p.Value
	}
	avg := math.Round(sum/float64(rep.Count)*10) / 10
	rep.Average, rep.Min, rep.Max = &avg, &lo, &hi
	return rep
}
