package summary

import (
	"math"
	"strings"
	"testing"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/stats/types"
)

func TestLatencyAggregate_Basic(t *testing.T) {
	agg := NewLatencyAggregate(DefaultAccuracy)

	if agg.Result().Count != 0 {
		t.Error("new aggregate should be empty")
	}

	agg.AddWithCount(10, 1)
	agg.AddWithCount(20, 2)
	agg.AddWithCount(99, 0)

	result := agg.Result()
	if result.Count != 3 {
		t.Errorf("expected count=3, got %d", result.Count)
	}

	expectedMean := 50.0 / 3
	if math.Abs(result.Mean-expectedMean) > 0.001 {
		t.Errorf("expected mean=%f, got %f", expectedMean, result.Mean)
	}
	if result.Min != 10 || result.Max != 20 {
		t.Errorf("expected min=10 max=20, got %f %f", result.Min, result.Max)
	}
}

func TestLatencyAggregate_Percentiles(t *testing.T) {
	agg := NewLatencyAggregate(DefaultAccuracy)

	// Values 1..100, value i weighted i times.
	var total int64
	for i := 1; i <= 100; i++ {
		agg.AddWithCount(float64(i), int64(i))
		total += int64(i)
	}

	result := agg.Result()
	if !result.HasPercentiles() {
		t.Fatal("should have percentiles")
	}

	// The weighted median of value i with weight i is ~71.
	if math.Abs(*result.P50-71) > 71*0.02+1 {
		t.Errorf("expected p50 near 71, got %f", *result.P50)
	}
	if math.Abs(*result.P99-99.5) > 99.5*0.02+1 {
		t.Errorf("expected p99 near 99.5, got %f", *result.P99)
	}
	if result.Count != total {
		t.Errorf("expected count %d, got %d", total, result.Count)
	}
}

func TestLatencyAggregate_Merge(t *testing.T) {
	a := NewLatencyAggregate(DefaultAccuracy)
	b := NewLatencyAggregate(DefaultAccuracy)

	a.AddWithCount(5, 2)
	b.AddWithCount(-1, 1)
	b.AddWithCount(15, 1)

	a.Merge(b)
	a.Merge(nil)

	result := a.Result()
	if result.Count != 4 {
		t.Errorf("expected count=4, got %d", result.Count)
	}
	if result.Min != -1 || result.Max != 15 {
		t.Errorf("expected min=-1 max=15, got %f %f", result.Min, result.Max)
	}
	if math.Abs(result.Mean-6) > 0.001 {
		t.Errorf("expected mean=6, got %f", result.Mean)
	}
}

func TestSummarize(t *testing.T) {
	key := types.ServerKey("2014-07-01")
	tbl := types.NewTableFor(key)

	tbl.AddSample(1, types.NCreate, types.AvgUploadLatency, 1444)
	tbl.AddSample(1, types.NCreate, types.AvgUploadLatency, 1444)
	tbl.AddSample(2, types.NCreate, types.AvgUploadLatency, 4)
	tbl.AddSample(5, types.NUpload, types.AvgProcLatency, 10)
	tbl.Increment(15, types.NProcessed)
	tbl.Increment(15, types.NProcessed)
	tbl.Set(600, types.NUnprocessed, types.Int(7))
	tbl.Set(601, types.NUnprocessed, types.Int(3))
	tbl.Set(600, types.NUnprocessedPrev, types.Int(0))
	tbl.Set(0, types.Restarted, types.Int(1))

	s, err := Summarize(key, tbl)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if s.Created != 3 || s.Uploaded != 1 || s.Processed != 2 {
		t.Errorf("unexpected totals %d/%d/%d", s.Created, s.Uploaded, s.Processed)
	}
	if s.PeakUnprocessed != 7 || s.PeakUnprocessedMinute != 600 {
		t.Errorf("unexpected peak %d at %d", s.PeakUnprocessed, s.PeakUnprocessedMinute)
	}
	if s.PeakUnprocessedPrevMinute != 600 {
		t.Errorf("expected zero peak recorded at 600, got %d", s.PeakUnprocessedPrevMinute)
	}
	if s.Restarts != 1 {
		t.Errorf("expected 1 restart, got %d", s.Restarts)
	}
	if s.LastMinute != 601 {
		t.Errorf("expected last minute 601, got %d", s.LastMinute)
	}

	expectedMean := (1444.0*2 + 4) / 3
	if math.Abs(s.UploadLatency.Mean-expectedMean) > 1e-9 {
		t.Errorf("expected upload mean %f, got %f", expectedMean, s.UploadLatency.Mean)
	}
	if s.UploadLatency.Count != 3 {
		t.Errorf("expected 3 upload samples, got %d", s.UploadLatency.Count)
	}
	if s.ProcessingLatency.Mean != 10 {
		t.Errorf("expected processing mean 10, got %f", s.ProcessingLatency.Mean)
	}

	out := Format(s)
	for _, want := range []string{"2014-07-01 (server)", "created:      3", "restarts:     1", "10:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSummarizeEmpty(t *testing.T) {
	key := types.CameraKey("2014-07-01", "cam1")
	s, err := Summarize(key, types.NewTableFor(key))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if s.LastMinute != -1 || s.UploadLatency.Count != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
	if !strings.Contains(Format(s), "no data") {
		t.Error("expected no data output")
	}
}

func TestSummarizeShapeMismatch(t *testing.T) {
	key := types.ServerKey("2014-07-01")
	_, err := Summarize(key, types.NewTable(types.CameraRowLen))
	if !errors.Is(err, errors.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}

	if _, err := Summarize(key, nil); !errors.Is(err, errors.ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
}
