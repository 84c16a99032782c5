package codec

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/stats/types"
)

func sampleTable(rowLen int) *types.Table {
	t := types.NewTable(rowLen)
	t.Set(0, types.NCreate, types.Int(0))
	t.Set(1, types.NCreate, types.Int(5))
	t.Set(1, types.AvgUploadLatency, types.Float(1444))
	t.Set(2, types.AvgProcLatency, types.Float(0.3333333333333333))
	t.Set(700, types.NUnprocessedPrev, types.Int(12))
	t.Set(1439, types.NProcessed, types.Int(-1))
	t.Set(1439, types.AvgUploadLatency, types.Float(2.5e-12))
	if rowLen == types.ServerRowLen {
		t.Set(3, types.Restarted, types.Int(1))
		t.Set(3, types.NErrors, types.Int(0))
	}
	return t
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		key  types.Key
	}{
		{"camera", types.CameraKey("2014-07-01", "cam1")},
		{"server", types.ServerKey("2014-07-01")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := sampleTable(tt.key.RowLen())

			data, err := Marshal(tt.key, orig)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			decoded, err := Unmarshal(data, "test", tt.key.RowLen())
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}

			if !decoded.Equal(orig) {
				t.Error("decoded table differs from original")
			}
			if decoded.Get(1, types.AvgUploadLatency).Kind() != types.KindFloat {
				t.Error("whole-number float must decode as float")
			}
			if decoded.Get(1, types.NCreate).Kind() != types.KindInt {
				t.Error("int must decode as int")
			}
		})
	}
}

func TestRoundTripEmpty(t *testing.T) {
	key := types.ServerKey("2014-07-01")
	data, err := Marshal(key, types.NewTableFor(key))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	decoded, err := Unmarshal(data, "test", key.RowLen())
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.LastSet(types.NCreate) != -1 {
		t.Error("expected all fields unset")
	}
}

func TestEncodeFormat(t *testing.T) {
	key := types.CameraKey("2014-07-01", "cam1")
	data, err := Marshal(key, sampleTable(key.RowLen()))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n")
	if len(lines) != types.MinutesPerDay+1 {
		t.Fatalf("expected %d lines, got %d", types.MinutesPerDay+1, len(lines))
	}

	expectedHeader := "Time,Images Created/Min,Upload Latency,Images Uploaded/Min," +
		"Processing Latency,Images Processed/Min,Today's Unprocessed Images," +
		"Previous Days' Unprocessed Images"
	if lines[0] != expectedHeader {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[2] != "2014-07-01 00:01,5,1444.0,,,,," {
		t.Errorf("unexpected minute 1 line %q", lines[2])
	}
	if !strings.HasPrefix(lines[len(lines)-1], "2014-07-01 23:59,") {
		t.Errorf("unexpected last line %q", lines[len(lines)-1])
	}
}

func buildCSV(header bool, rows, fields int) string {
	var b strings.Builder
	if header {
		b.WriteString(strings.Join(types.CameraHeaders, ",") + "\n")
	}
	for m := 0; m < rows; m++ {
		b.WriteString(types.MinuteLabel("2014-07-01", m))
		b.WriteString(strings.Repeat(",", fields))
		b.WriteString("\n")
	}
	return b.String()
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		line     int
		hasError bool
	}{
		{"valid", buildCSV(true, 1440, 7), 0, false},
		{"no header", buildCSV(false, 1440, 7), 0, false},
		{"too few rows", buildCSV(true, 1439, 7), 0, true},
		{"too many rows", buildCSV(true, 1441, 7), 1442, true},
		{"wrong field count", buildCSV(true, 1440, 9), 2, true},
		{"empty", "", 0, true},
		{"header only", strings.Join(types.CameraHeaders, ",") + "\n", 0, true},
		{"bad number", strings.Replace(buildCSV(true, 1440, 7), "2014-07-01 00:05,", "2014-07-01 00:05,x", 1), 7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input), "mem.csv", types.CameraRowLen)
			if !tt.hasError {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, errors.ErrMalformedTable) {
				t.Errorf("expected ErrMalformedTable, got %v", err)
			}

			var mte *errors.MalformedTableError
			if !errors.As(err, &mte) {
				t.Fatalf("expected *MalformedTableError, got %T", err)
			}
			if mte.Path != "mem.csv" {
				t.Errorf("expected path mem.csv, got %s", mte.Path)
			}
			if mte.Line != tt.line {
				t.Errorf("expected line %d, got %d (%v)", tt.line, mte.Line, err)
			}
		})
	}
}

func TestDecodeUnrecognizedHeader(t *testing.T) {
	input := "when,a,b,c,d,e,f,g\n" + buildCSV(false, 1440, 7)
	tbl, err := Decode(strings.NewReader(input), "mem.csv", types.CameraRowLen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.RowLen() != types.CameraRowLen {
		t.Errorf("expected row length %d, got %d", types.CameraRowLen, tbl.RowLen())
	}
}

func TestDecodeQuotedFields(t *testing.T) {
	var b bytes.Buffer
	b.WriteString(strings.Join(types.CameraHeaders, ",") + "\r\n")
	for m := 0; m < types.MinutesPerDay; m++ {
		fmt.Fprintf(&b, "\"%s\",\"3\",,,,,,\r\n", types.MinuteLabel("2014-07-01", m))
	}

	tbl, err := Decode(&b, "quoted", types.CameraRowLen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.Get(100, types.NCreate).Int64() != 3 {
		t.Errorf("expected 3, got %v", tbl.Get(100, types.NCreate))
	}
}

func TestFileHelpers(t *testing.T) {
	dir := t.TempDir()
	key := types.ServerKey("2014-07-01")
	path := filepath.Join(dir, key.FileName())

	if _, err := ReadFile(path, key.RowLen()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}

	orig := sampleTable(key.RowLen())
	if err := WriteFile(path, key, orig); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := ReadFile(path, key.RowLen())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !got.Equal(orig) {
		t.Error("file round trip changed the table")
	}
}
