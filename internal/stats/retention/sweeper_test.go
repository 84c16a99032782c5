package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/testutil"
)

// writeDates creates a server and a camera table for each date, plus a stale
// temp file for the oldest date.
func writeDates(t *testing.T, dir string, dates []string) {
	t.Helper()
	for i, d := range dates {
		testutil.WriteFile(t, filepath.Join(dir, d+".csv"), []byte("test"))
		testutil.WriteFile(t, filepath.Join(dir, d+"_cam1.csv"), []byte("test"))
		if i == 0 {
			testutil.WriteFile(t, filepath.Join(dir, d+"_cam1.csv.temp"), []byte("partial"))
		}
	}
}

func TestExpireKeepsMostRecentDates(t *testing.T) {
	dates := []string{"2014-06-28", "2014-06-29", "2014-07-01", "2014-07-05", "2014-07-06"}

	for m := 1; m <= len(dates)+1; m++ {
		t.Run(fmt.Sprintf("retain %d", m), func(t *testing.T) {
			dir := t.TempDir()
			writeDates(t, dir, dates)
			testutil.Touch(t, dir, "notes.txt")

			result := New(dir).Expire(m)
			if len(result.Errors) != 0 {
				t.Fatalf("unexpected errors: %v", result.Errors)
			}

			remaining := testutil.ListDir(t, dir)

			k := len(dates)
			for i, d := range dates {
				kept := slices.Contains(remaining, d+".csv") && slices.Contains(remaining, d+"_cam1.csv")
				gone := !slices.Contains(remaining, d+".csv") && !slices.Contains(remaining, d+"_cam1.csv")
				if m < k && i < k-m {
					if !gone {
						t.Errorf("date %s should be removed", d)
					}
				} else if !kept {
					t.Errorf("date %s should be kept", d)
				}
			}

			if !slices.Contains(remaining, "notes.txt") {
				t.Error("unrelated files must be left alone")
			}

			if m < k {
				if result.Cutoff != dates[k-m] {
					t.Errorf("expected cutoff %s, got %s", dates[k-m], result.Cutoff)
				}
				if len(result.DatesRemoved) != k-m {
					t.Errorf("expected %d dates removed, got %v", k-m, result.DatesRemoved)
				}
			} else if result.FilesDeleted != 0 {
				t.Errorf("expected nothing deleted, got %d", result.FilesDeleted)
			}
		})
	}
}

func TestExpireRemovesTempAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	testutil.Touch(t, dir,
		"2014-07-01_cam1.csv.temp",
		"2014-07-01.csv.corrupt",
		"2014-07-02.csv",
	)

	result := New(dir).Expire(1)
	if result.FilesDeleted != 2 {
		t.Errorf("expected 2 files deleted, got %d", result.FilesDeleted)
	}

	remaining := testutil.ListDir(t, dir)
	if len(remaining) != 1 || remaining[0] != "2014-07-02.csv" {
		t.Errorf("unexpected remaining files %v", remaining)
	}
}

func TestExpireNonPositive(t *testing.T) {
	dir := t.TempDir()
	writeDates(t, dir, []string{"2014-07-01", "2014-07-02"})

	for _, n := range []int{0, -3} {
		result := New(dir).Expire(n)
		if result.FilesDeleted != 0 {
			t.Errorf("retain %d: expected no deletions, got %d", n, result.FilesDeleted)
		}
	}
	if len(testutil.ListDir(t, dir)) != 5 {
		t.Error("files should be untouched")
	}
}

func TestExpireMissingDir(t *testing.T) {
	result := New(filepath.Join(t.TempDir(), "absent")).Expire(3)
	if len(result.Errors) != 0 {
		t.Errorf("missing directory is not an error, got %v", result.Errors)
	}
}

func TestExpireContinuesPastRemovalFailure(t *testing.T) {
	dir := t.TempDir()
	writeDates(t, dir, []string{"2014-07-01", "2014-07-02", "2014-07-03"})

	// The archiver removes one file after it was listed, so its removal fails.
	s := New(dir, WithArchiver(archiverFunc(func(date string, files []string) error {
		if date == "2014-07-01" {
			return os.Remove(filepath.Join(dir, "2014-07-01.csv"))
		}
		return nil
	})))

	result := s.Expire(1)
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	if !errors.Is(result.Errors[0], os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", result.Errors[0])
	}

	remaining := testutil.ListDir(t, dir)
	expected := []string{"2014-07-03.csv", "2014-07-03_cam1.csv"}
	if !slices.Equal(remaining, expected) {
		t.Errorf("expected %v, got %v", expected, remaining)
	}
	if result.FilesDeleted != 4 {
		t.Errorf("expected 4 files deleted, got %d", result.FilesDeleted)
	}
	if s.Stats().Errors != 1 {
		t.Errorf("expected 1 error in stats, got %d", s.Stats().Errors)
	}
}

type archiverFunc func(date string, files []string) error

func (f archiverFunc) ArchiveDate(date string, files []string) error { return f(date, files) }

func TestExpireArchivesBeforeDelete(t *testing.T) {
	dir := t.TempDir()
	writeDates(t, dir, []string{"2014-07-01", "2014-07-02", "2014-07-03"})

	archived := map[string][]string{}
	s := New(dir, WithArchiver(archiverFunc(func(date string, files []string) error {
		if date == "2014-07-02" {
			return errors.New("archive disk full")
		}
		for _, f := range files {
			if _, err := os.Stat(f); err != nil {
				return err
			}
		}
		archived[date] = files
		return nil
	})))

	result := s.Expire(1)

	if len(archived["2014-07-01"]) != 2 {
		t.Errorf("expected 2 canonical files archived, got %v", archived["2014-07-01"])
	}
	for _, f := range archived["2014-07-01"] {
		if strings.HasSuffix(f, ".temp") {
			t.Errorf("temp file %s must not be archived", f)
		}
	}
	if !slices.Equal(result.Archived, []string{"2014-07-01"}) {
		t.Errorf("unexpected archived dates %v", result.Archived)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 error, got %v", result.Errors)
	}

	remaining := testutil.ListDir(t, dir)
	if slices.Contains(remaining, "2014-07-01.csv") {
		t.Error("archived date should be deleted")
	}
	if !slices.Contains(remaining, "2014-07-02.csv") {
		t.Error("date whose archive failed must be kept")
	}
}

func TestExpireSkipsArchiveOfLeftoversOnly(t *testing.T) {
	dir := t.TempDir()
	testutil.Touch(t, dir,
		"2014-07-01_cam1.csv.temp",
		"2014-07-01.csv.corrupt",
		"2014-07-02.csv",
	)

	var calls int
	s := New(dir, WithArchiver(archiverFunc(func(string, []string) error {
		calls++
		return nil
	})))

	result := s.Expire(1)
	if calls != 0 {
		t.Errorf("expected no archive call, got %d", calls)
	}
	if len(result.Archived) != 0 {
		t.Errorf("expected nothing archived, got %v", result.Archived)
	}
	if result.FilesDeleted != 2 {
		t.Errorf("expected 2 files deleted, got %d", result.FilesDeleted)
	}
	if s.Stats().DatesArchived != 0 {
		t.Errorf("expected 0 dates archived, got %d", s.Stats().DatesArchived)
	}
}

func TestDryRun(t *testing.T) {
	dir := t.TempDir()
	writeDates(t, dir, []string{"2014-07-01", "2014-07-02"})

	called := false
	s := New(dir, WithArchiver(archiverFunc(func(string, []string) error {
		called = true
		return nil
	})))

	result := s.DryRun(1)
	if !result.DryRun {
		t.Error("expected dry run result")
	}
	if result.FilesDeleted != 3 {
		t.Errorf("expected 3 files would be deleted, got %d", result.FilesDeleted)
	}
	if len(testutil.ListDir(t, dir)) != 5 {
		t.Error("dry run must not delete files")
	}
	if called {
		t.Error("dry run must not archive")
	}
	if s.Stats().Runs != 0 {
		t.Error("dry run must not count as a run")
	}
}

func TestExpireArchives(t *testing.T) {
	dir := t.TempDir()
	testutil.Touch(t, dir,
		"2014-06-01.parquet",
		"2014-06-02.parquet",
		"2014-06-03.parquet.temp",
		"2014-06-04.parquet",
		"2014-06-04.csv",
	)

	result := ExpireArchives(dir, 2)
	if result.FilesDeleted != 2 {
		t.Errorf("expected 2 files deleted, got %d", result.FilesDeleted)
	}

	remaining := testutil.ListDir(t, dir)
	expected := []string{"2014-06-03.parquet.temp", "2014-06-04.csv", "2014-06-04.parquet"}
	if !slices.Equal(remaining, expected) {
		t.Errorf("expected %v, got %v", expected, remaining)
	}
}

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()
	writeDates(t, dir, []string{"2014-07-01", "2014-07-03"})

	s := New(dir)
	u, err := s.DiskUsage()
	if err != nil {
		t.Fatalf("DiskUsage failed: %v", err)
	}

	if u.FileCount != 5 {
		t.Errorf("expected 5 files, got %d", u.FileCount)
	}
	if u.TotalSize != 4*4+7 {
		t.Errorf("expected %d bytes, got %d", 4*4+7, u.TotalSize)
	}
	if u.Oldest != "2014-07-01" || u.Newest != "2014-07-03" || u.Dates != 2 {
		t.Errorf("unexpected usage %+v", u)
	}

	out := s.FormatDiskUsage()
	if !strings.Contains(out, "5 files") || !strings.Contains(out, "2014-07-01 to 2014-07-03") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	writeDates(t, dir, []string{"2014-07-01", "2014-07-02"})

	s := New(dir)
	if s.Stats().FilesDeleted != 0 {
		t.Error("expected no deletions initially")
	}

	s.Expire(1)

	stats := s.Stats()
	if stats.FilesDeleted != 3 {
		t.Errorf("expected 3 files deleted, got %d", stats.FilesDeleted)
	}
	if stats.LastRunTime.IsZero() {
		t.Error("last run time should be set")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{500, "500 B"},
		{1024, "1.00 KB"},
		{1024 * 1024, "1.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{1024 * 1024 * 1024 * 1024, "1.00 TB"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.bytes)
		if result != tt.expected {
			t.Errorf("formatBytes(%d): expected %s, got %s", tt.bytes, tt.expected, result)
		}
	}
}
