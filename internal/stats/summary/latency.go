package summary

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DefaultAccuracy is the relative accuracy of latency percentiles.
const DefaultAccuracy = 0.01

// LatencyAggregate accumulates per-minute latency averages, each weighted by
// the number of images it covers.
type LatencyAggregate struct {
	count int64
	sum   float64
	min   float64
	max   float64

	sketch *ddsketch.DDSketch
}

// NewLatencyAggregate creates an empty aggregate. Percentiles are omitted if
// the sketch cannot be built for accuracy.
func NewLatencyAggregate(accuracy float64) *LatencyAggregate {
	agg := &LatencyAggregate{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}

	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err == nil {
		agg.sketch = sketch
	}
	return agg
}

// AddWithCount adds value count times. Non-positive counts are ignored.
func (a *LatencyAggregate) AddWithCount(value float64, count int64) {
	if count <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}

	a.count += count
	a.sum += value * float64(count)

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.sketch != nil {
		_ = a.sketch.AddWithCount(value, float64(count))
	}
}

// Merge combines other into a.
func (a *LatencyAggregate) Merge(other *LatencyAggregate) {
	if other == nil || other.count == 0 {
		return
	}

	a.count += other.count
	a.sum += other.sum
	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}

	if a.sketch != nil && other.sketch != nil {
		_ = a.sketch.MergeWith(other.sketch)
	}
}

// LatencyStats is the result of a LatencyAggregate, in minutes.
type LatencyStats struct {
	Count int64
	Mean  float64
	Min   float64
	Max   float64

	// Percentiles are nil when no sketch was available.
	P50 *float64
	P90 *float64
	P99 *float64
}

// HasPercentiles returns true if percentile values are present.
func (s LatencyStats) HasPercentiles() bool {
	return s.P50 != nil
}

// Result returns the accumulated statistics.
func (a *LatencyAggregate) Result() LatencyStats {
	stats := LatencyStats{Count: a.count}
	if a.count == 0 {
		return stats
	}

	stats.Mean = a.sum / float64(a.count)
	stats.Min = a.min
	stats.Max = a.max

	if a.sketch != nil {
		p50, err50 := a.sketch.GetValueAtQuantile(0.50)
		p90, err90 := a.sketch.GetValueAtQuantile(0.90)
		p99, err99 := a.sketch.GetValueAtQuantile(0.99)
		if err50 == nil && err90 == nil && err99 == nil {
			stats.P50, stats.P90, stats.P99 = &p50, &p90, &p99
		}
	}
	return stats
}
