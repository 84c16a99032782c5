package query

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/xtxerr/camstats/internal/stats/archive"
	"github.com/xtxerr/camstats/internal/stats/codec"
	"github.com/xtxerr/camstats/internal/stats/config"
	"github.com/xtxerr/camstats/internal/stats/types"
)

func newTestService(t *testing.T) (*Service, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.StatsDir = t.TempDir()

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	return svc, cfg
}

// writeArchive archives the given tables of one date.
func writeArchive(t *testing.T, cfg *config.Config, date string, tables map[types.Key]*types.Table) {
	t.Helper()

	var files []string
	for key, tbl := range tables {
		path := filepath.Join(cfg.StatsDir, key.FileName())
		if err := codec.WriteFile(path, key, tbl); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		files = append(files, path)
	}

	a := archive.NewArchiver(cfg.ArchiveDir(), archive.DefaultOptions())
	if err := a.ArchiveDate(date, files); err != nil {
		t.Fatalf("ArchiveDate: %v", err)
	}
}

func TestService_New(t *testing.T) {
	svc, _ := newTestService(t)

	if svc == nil {
		t.Fatal("service is nil")
	}
}

func TestService_ExecuteSQL(t *testing.T) {
	svc, _ := newTestService(t)

	ctx := context.Background()

	// Simple query
	results, err := svc.ExecuteSQL(ctx, "SELECT 1 AS value")
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	if _, ok := results[0]["value"]; !ok {
		t.Errorf("expected column value, got %v", results[0])
	}

	stats := svc.Stats()
	if stats.QueriesExecuted != 1 {
		t.Errorf("expected 1 query executed, got %d", stats.QueriesExecuted)
	}
}

func TestService_ExecuteSQLError(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.ExecuteSQL(context.Background(), "SELEC nothing"); err == nil {
		t.Error("expected syntax error")
	}

	if svc.Stats().Errors != 1 {
		t.Errorf("expected 1 error, got %d", svc.Stats().Errors)
	}
}

func TestService_DailyTotalsNoArchives(t *testing.T) {
	svc, _ := newTestService(t)

	results, err := svc.DailyTotals(context.Background(), "cam1", "2014-07-01", "2014-07-31")
	if err != nil {
		t.Fatalf("DailyTotals: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestService_DailyTotalsInvalidDate(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.DailyTotals(context.Background(), "cam1", "July", "2014-07-31"); err == nil {
		t.Error("expected error for invalid date")
	}
}

func TestService_DailyTotals(t *testing.T) {
	svc, cfg := newTestService(t)

	cam := types.CameraKey("2014-07-01", "cam1")
	ct := types.NewTableFor(cam)
	ct.AddSample(1, types.NCreate, types.AvgUploadLatency, 1444)
	ct.AddSample(1, types.NCreate, types.AvgUploadLatency, 1442)
	ct.AddSample(2, types.NCreate, types.AvgUploadLatency, 1440)
	ct.AddSample(5, types.NUpload, types.AvgProcLatency, 10)
	ct.Increment(15, types.NProcessed)
	ct.Increment(15, types.NProcessed)
	ct.Set(600, types.NUnprocessed, types.Int(4))

	other := types.CameraKey("2014-07-01", "cam2")
	ot := types.NewTableFor(other)
	ot.Increment(3, types.NProcessed)

	writeArchive(t, cfg, "2014-07-01", map[types.Key]*types.Table{cam: ct, other: ot})

	next := types.CameraKey("2014-07-02", "cam1")
	nt := types.NewTableFor(next)
	nt.Increment(0, types.NProcessed)
	writeArchive(t, cfg, "2014-07-02", map[types.Key]*types.Table{next: nt})

	results, err := svc.DailyTotals(context.Background(), "cam1", "2014-07-01", "2014-07-31")
	if err != nil {
		t.Fatalf("DailyTotals: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 dates, got %d", len(results))
	}

	r := results[0]
	if r.Date != "2014-07-01" {
		t.Errorf("expected 2014-07-01 first, got %s", r.Date)
	}
	if r.Created != 3 || r.Uploaded != 1 || r.Processed != 2 {
		t.Errorf("unexpected totals %d/%d/%d", r.Created, r.Uploaded, r.Processed)
	}
	if !r.UploadLatency.Valid || math.Abs(r.UploadLatency.Float64-1442) > 1e-9 {
		t.Errorf("expected upload latency 1442, got %+v", r.UploadLatency)
	}
	if !r.ProcessingLatency.Valid || r.ProcessingLatency.Float64 != 10 {
		t.Errorf("expected processing latency 10, got %+v", r.ProcessingLatency)
	}
	if r.PeakUnprocessed != 4 {
		t.Errorf("expected peak 4, got %d", r.PeakUnprocessed)
	}

	if results[1].Processed != 1 || results[1].UploadLatency.Valid {
		t.Errorf("unexpected second date %+v", results[1])
	}

	// Range filter
	results, err = svc.DailyTotals(context.Background(), "cam1", "2014-07-02", "2014-07-02")
	if err != nil {
		t.Fatalf("DailyTotals: %v", err)
	}
	if len(results) != 1 || results[0].Date != "2014-07-02" {
		t.Errorf("expected only 2014-07-02, got %+v", results)
	}
}
