// Package summary reduces a day table to daily totals, backlog peaks and
// latency distributions.
package summary

import (
	"fmt"
	"strings"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/stats/types"
)

// DaySummary describes one day table.
type DaySummary struct {
	Key types.Key

	Created   int64
	Uploaded  int64
	Processed int64

	PeakUnprocessed           int64
	PeakUnprocessedMinute     int
	PeakUnprocessedPrev       int64
	PeakUnprocessedPrevMinute int

	// Server tables only.
	Restarts int64
	Errors   int64

	// LastMinute is the last minute with any field set, -1 for an empty table.
	LastMinute int

	UploadLatency     LatencyStats
	ProcessingLatency LatencyStats
}

// Summarize computes the summary of t. Upload latency percentiles weight each
// minute's average by its created count; processing latency by its uploaded
// count.
func Summarize(key types.Key, t *types.Table) (DaySummary, error) {
	if t == nil {
		return DaySummary{}, errors.Wrapf(errors.ErrTableNotFound, "%s", key)
	}
	if t.RowLen() != key.RowLen() {
		return DaySummary{}, errors.Wrapf(errors.ErrInvalidKey,
			"%s: table has %d fields per row, want %d", key, t.RowLen(), key.RowLen())
	}

	s := DaySummary{
		Key:                       key,
		LastMinute:                -1,
		PeakUnprocessedMinute:     -1,
		PeakUnprocessedPrevMinute: -1,
	}
	upload := NewLatencyAggregate(DefaultAccuracy)
	processing := NewLatencyAggregate(DefaultAccuracy)

	for m := 0; m < types.MinutesPerDay; m++ {
		row := t.Row(m)

		for _, v := range row {
			if v.IsSet() {
				s.LastMinute = m
				break
			}
		}

		created := row[types.NCreate].Int64()
		uploaded := row[types.NUpload].Int64()
		s.Created += created
		s.Uploaded += uploaded
		s.Processed += row[types.NProcessed].Int64()

		if row[types.AvgUploadLatency].IsSet() {
			upload.AddWithCount(row[types.AvgUploadLatency].Float64(), created)
		}
		if row[types.AvgProcLatency].IsSet() {
			processing.AddWithCount(row[types.AvgProcLatency].Float64(), uploaded)
		}

		if v := row[types.NUnprocessed]; v.IsSet() && (s.PeakUnprocessedMinute < 0 || v.Int64() > s.PeakUnprocessed) {
			s.PeakUnprocessed = v.Int64()
			s.PeakUnprocessedMinute = m
		}
		if v := row[types.NUnprocessedPrev]; v.IsSet() && (s.PeakUnprocessedPrevMinute < 0 || v.Int64() > s.PeakUnprocessedPrev) {
			s.PeakUnprocessedPrev = v.Int64()
			s.PeakUnprocessedPrevMinute = m
		}

		if key.IsServer() {
			s.Restarts += row[types.Restarted].Int64()
			s.Errors += row[types.NErrors].Int64()
		}
	}

	s.UploadLatency = upload.Result()
	s.ProcessingLatency = processing.Result()
	return s, nil
}

// Format renders s for terminal output.
func Format(s DaySummary) string {
	var b strings.Builder

	name := s.Key.Camera
	if s.Key.IsServer() {
		name = "(server)"
	}
	fmt.Fprintf(&b, "%s %s\n", s.Key.Date, name)

	if s.LastMinute < 0 {
		b.WriteString("  no data\n")
		return b.String()
	}

	fmt.Fprintf(&b, "  last update:  %s\n", types.MinuteLabel(s.Key.Date, s.LastMinute))
	fmt.Fprintf(&b, "  created:      %d\n", s.Created)
	fmt.Fprintf(&b, "  uploaded:     %d\n", s.Uploaded)
	fmt.Fprintf(&b, "  processed:    %d\n", s.Processed)
	fmt.Fprintf(&b, "  upload lat:   %s\n", formatLatency(s.UploadLatency))
	fmt.Fprintf(&b, "  process lat:  %s\n", formatLatency(s.ProcessingLatency))

	if s.PeakUnprocessedMinute >= 0 {
		fmt.Fprintf(&b, "  backlog peak: %d today at %s", s.PeakUnprocessed,
			types.MinuteLabel(s.Key.Date, s.PeakUnprocessedMinute)[11:])
		if s.PeakUnprocessedPrevMinute >= 0 {
			fmt.Fprintf(&b, ", %d older at %s", s.PeakUnprocessedPrev,
				types.MinuteLabel(s.Key.Date, s.PeakUnprocessedPrevMinute)[11:])
		}
		b.WriteString("\n")
	}

	if s.Key.IsServer() {
		fmt.Fprintf(&b, "  restarts:     %d\n", s.Restarts)
	}
	return b.String()
}

func formatLatency(l LatencyStats) string {
	if l.Count == 0 {
		return "-"
	}
	out := fmt.Sprintf("mean %.1fm (min %.1fm, max %.1fm)", l.Mean, l.Min, l.Max)
	if l.HasPercentiles() {
		out += fmt.Sprintf(" p50 %.1fm p90 %.1fm p99 %.1fm", *l.P50, *l.P90, *l.P99)
	}
	return out
}
