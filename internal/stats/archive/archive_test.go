package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xtxerr/camstats/internal/stats/codec"
	"github.com/xtxerr/camstats/internal/stats/types"
)

func sampleTables() map[types.Key]*types.Table {
	cam := types.CameraKey("2014-07-01", "cam1")
	ct := types.NewTableFor(cam)
	ct.AddSample(1, types.NCreate, types.AvgUploadLatency, 1444)
	ct.AddSample(1, types.NCreate, types.AvgUploadLatency, 1443)
	ct.AddSample(5, types.NUpload, types.AvgProcLatency, 10)
	ct.Increment(15, types.NProcessed)

	srv := cam.Server()
	st := types.NewTableFor(srv)
	st.AddSample(1, types.NCreate, types.AvgUploadLatency, 1444)
	st.Increment(15, types.NProcessed)
	st.Set(600, types.NUnprocessed, types.Int(4))
	st.Set(600, types.NUnprocessedPrev, types.Int(6))
	st.Set(600, types.Restarted, types.Int(1))
	st.Set(601, types.NErrors, types.Int(2))

	return map[types.Key]*types.Table{cam: ct, srv: st}
}

func writeTables(t *testing.T, dir string, tables map[types.Key]*types.Table) []string {
	t.Helper()

	var files []string
	for key, tbl := range tables {
		path := filepath.Join(dir, key.FileName())
		if err := codec.WriteFile(path, key, tbl); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		files = append(files, path)
	}
	return files
}

func TestTableRowsSkipsEmptyMinutes(t *testing.T) {
	tables := sampleTables()
	key := types.CameraKey("2014-07-01", "cam1")

	rows := TableRows(key, tables[key])

	// Minute 0 is backfilled with zero counts, so it is not empty.
	if len(rows) != 16 {
		t.Fatalf("expected 16 rows, got %d", len(rows))
	}
	if rows[0].Minute != 0 || rows[0].NCreate == nil || *rows[0].NCreate != 0 {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[1].AvgUploadLatency == nil || *rows[1].AvgUploadLatency != 1443.5 {
		t.Errorf("unexpected average in minute 1: %+v", rows[1])
	}
	if rows[1].Restarted != nil || rows[1].Errors != nil {
		t.Error("camera rows should not carry server columns")
	}

	if got := TableRows(key, types.NewTableFor(key)); len(got) != 0 {
		t.Errorf("expected no rows for an empty table, got %d", len(got))
	}
}

func TestExportAndReadBack(t *testing.T) {
	dir := t.TempDir()
	tables := sampleTables()
	files := writeTables(t, dir, tables)

	dst := filepath.Join(dir, "archive", "2014-07-01.parquet")
	n, err := ExportDate(files, dst, DefaultOptions())
	if err != nil {
		t.Fatalf("ExportDate: %v", err)
	}
	if n == 0 {
		t.Fatal("expected rows to be written")
	}

	if _, err := os.Stat(dst + types.TempSuffix); !os.IsNotExist(err) {
		t.Error("temporary archive should be gone")
	}

	info, err := GetFileInfo(dst)
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	if info.NumRows != n {
		t.Errorf("expected %d rows, got %d", n, info.NumRows)
	}

	got, err := Tables(dst)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(got) != len(tables) {
		t.Fatalf("expected %d tables, got %d", len(tables), len(got))
	}
	for key, want := range tables {
		tbl, ok := got[key]
		if !ok {
			t.Errorf("missing table %s", key)
			continue
		}
		if !tbl.Equal(want) {
			t.Errorf("table %s differs after round trip", key)
		}
	}
}

func TestExportCompressions(t *testing.T) {
	for _, name := range []string{"none", "snappy", "zstd", "lz4", "gzip"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			files := writeTables(t, dir, sampleTables())

			opts := DefaultOptions()
			opts.Compression = ParseCompressionType(name)

			dst := filepath.Join(dir, "out.parquet")
			if _, err := ExportDate(files, dst, opts); err != nil {
				t.Fatalf("ExportDate: %v", err)
			}
			rows, err := ReadAll(dst)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if len(rows) == 0 {
				t.Error("expected rows")
			}
		})
	}
}

func TestExportRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "out.parquet")
	if _, err := ExportDate([]string{other}, dst, DefaultOptions()); err == nil {
		t.Error("expected error for a non-table file")
	}

	bad := filepath.Join(dir, "2014-07-01_cam1.csv")
	if err := os.WriteFile(bad, []byte("garbage\r\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExportDate([]string{bad}, dst, DefaultOptions()); err == nil {
		t.Error("expected error for a malformed table")
	}

	for _, p := range []string{dst, dst + types.TempSuffix} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist", filepath.Base(p))
		}
	}
}

func TestArchiver(t *testing.T) {
	dir := t.TempDir()
	files := writeTables(t, dir, sampleTables())

	a := NewArchiver(filepath.Join(dir, "archive"), DefaultOptions())
	if err := a.ArchiveDate("2014-07-01", files); err != nil {
		t.Fatalf("ArchiveDate: %v", err)
	}

	path := a.PathFor("2014-07-01")
	if filepath.Base(path) != "2014-07-01.parquet" {
		t.Errorf("unexpected archive name %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("archive should exist: %v", err)
	}

	// Archiving again replaces the file.
	if err := a.ArchiveDate("2014-07-01", files[:1]); err != nil {
		t.Fatalf("second ArchiveDate: %v", err)
	}
	got, err := Tables(path)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 table after re-archive, got %d", len(got))
	}
}

func TestRowsToTablesValidates(t *testing.T) {
	if _, err := RowsToTables([]Row{{Date: "bad", Minute: 0}}); err == nil {
		t.Error("expected error for invalid date")
	}
	if _, err := RowsToTables([]Row{{Date: "2014-07-01", Minute: 1440}}); err == nil {
		t.Error("expected error for minute out of range")
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		in   string
		want CompressionType
	}{
		{"snappy", CompressionSnappy},
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
		{"", CompressionZstd},
		{"brotli", CompressionZstd},
	}

	for _, tt := range tests {
		if got := ParseCompressionType(tt.in); got != tt.want {
			t.Errorf("ParseCompressionType(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
