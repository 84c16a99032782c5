package types

import (
	"fmt"
	"time"
)

// MinutesPerDay is the number of rows in every day table.
const MinutesPerDay = 1440

// Column indices shared by camera and server rows.
const (
	NCreate          = iota // images created during this minute (and since uploaded)
	AvgUploadLatency        // mean upload latency of images created this minute
	NUpload                 // images processed that were uploaded this minute
	AvgProcLatency          // mean processing latency of images uploaded this minute
	NProcessed              // images processed during this minute
	NUnprocessed            // unprocessed images from today at this minute
	NUnprocessedPrev        // unprocessed images from previous days at this minute

	CameraRowLen
)

// Extra columns of the per-server row.
const (
	Restarted = CameraRowLen + iota // non-zero if the server restarted this minute
	NErrors                         // reserved: ERROR-level events this minute

	ServerRowLen = CameraRowLen + 2
)

// CameraHeaders are the CSV column names of a per-camera table.
var CameraHeaders = []string{
	"Time",
	"Images Created/Min",
	"Upload Latency",
	"Images Uploaded/Min",
	"Processing Latency",
	"Images Processed/Min",
	"Today's Unprocessed Images",
	"Previous Days' Unprocessed Images",
}

// ServerHeaders are the CSV column names of a per-server table.
var ServerHeaders = append(append([]string(nil), CameraHeaders...), "Restarted", "Errors")

// Headers returns the header row for a row length.
func Headers(rowLen int) []string {
	if rowLen == ServerRowLen {
		return ServerHeaders
	}
	return CameraHeaders
}

// Row is one minute of a table.
type Row []Value

// Table holds the per-minute statistics of one key. It is not safe for
// concurrent use; the registry serializes access with a per-key lock.
type Table struct {
	rowLen int
	rows   []Row
}

// NewTable returns an all-unset table with rowLen fields per row.
func NewTable(rowLen int) *Table {
	cells := make([]Value, MinutesPerDay*rowLen)
	rows := make([]Row, MinutesPerDay)
	for i := range rows {
		rows[i] = cells[i*rowLen : (i+1)*rowLen : (i+1)*rowLen]
	}
	return &Table{rowLen: rowLen, rows: rows}
}

// NewTableFor returns an all-unset table shaped for key.
func NewTableFor(key Key) *Table {
	return NewTable(key.RowLen())
}

// RowLen returns the number of fields per row.
func (t *Table) RowLen() int { return t.rowLen }

// Row returns the row for a minute of the day. The returned slice aliases the
// table.
func (t *Table) Row(minute int) Row { return t.rows[minute] }

// Get returns one field.
func (t *Table) Get(minute, col int) Value { return t.rows[minute][col] }

// Set replaces one field.
func (t *Table) Set(minute, col int, v Value) { t.rows[minute][col] = v }

// SetRow replaces a whole row; len(r) must equal RowLen.
func (t *Table) SetRow(minute int, r Row) error {
	if len(r) != t.rowLen {
		return fmt.Errorf("row has %d fields, want %d", len(r), t.rowLen)
	}
	copy(t.rows[minute], r)
	return nil
}

// Zeroback replaces unset values in column col with integer zero, starting at
// row minute-1 and walking backwards until a defined value is found. Defined
// values are never overwritten.
func (t *Table) Zeroback(minute, col int) {
	for r := minute - 1; r >= 0 && !t.rows[r][col].IsSet(); r-- {
		t.rows[r][col] = Int(0)
	}
}

// Increment adds one to the count in col at minute (unset counts as zero)
// and backfills the column.
func (t *Table) Increment(minute, col int) {
	row := t.rows[minute]
	row[col] = Int(row[col].Int64() + 1)
	t.Zeroback(minute, col)
}

// AddSample folds sample into the running mean stored in avgCol, increments
// the count in countCol, and backfills the count column. Unset average and
// count are treated as 0.0 and 0.
func (t *Table) AddSample(minute, countCol, avgCol int, sample float64) {
	row := t.rows[minute]
	n := row[countCol].Int64()
	avg := row[avgCol].Float64()

	row[avgCol] = Float((avg*float64(n) + sample) / float64(n+1))
	row[countCol] = Int(n + 1)
	t.Zeroback(minute, countCol)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := NewTable(t.rowLen)
	for i, r := range t.rows {
		copy(c.rows[i], r)
	}
	return c
}

// Equal reports whether both tables have the same shape and values.
func (t *Table) Equal(o *Table) bool {
	if t.rowLen != o.rowLen {
		return false
	}
	for i := range t.rows {
		for j := range t.rows[i] {
			if !t.rows[i][j].Equal(o.rows[i][j]) {
				return false
			}
		}
	}
	return true
}

// LastSet returns the last minute at which col is defined, or -1.
func (t *Table) LastSet(col int) int {
	for r := MinutesPerDay - 1; r >= 0; r-- {
		if t.rows[r][col].IsSet() {
			return r
		}
	}
	return -1
}

// MinuteOfDay returns the row index of t (in t's location).
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// MinuteLabel returns the "YYYY-MM-DD HH:MM" label of a row.
func MinuteLabel(date string, minute int) string {
	return fmt.Sprintf("%s %02d:%02d", date, minute/60, minute%60)
}
