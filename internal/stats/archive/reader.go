package archive

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/camstats/internal/stats/types"
)

// Reader reads day-table rows from a Parquet file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[Row]
	path   string
}

// NewReader opens the Parquet file at path.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &Reader{
		file:   f,
		reader: parquet.NewGenericReader[Row](f, parquet.ReadBufferSize(1024*1024)),
		path:   path,
	}, nil
}

// ReadAll reads every row of the file.
func (r *Reader) ReadAll() ([]Row, error) {
	rows := make([]Row, r.reader.NumRows())

	read := 0
	for read < len(rows) {
		n, err := r.reader.Read(rows[read:])
		read += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
	}

	return rows[:read], nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}

// ReadAll reads every row of the Parquet file at path.
func ReadAll(path string) ([]Row, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.ReadAll()
}

// Tables rebuilds the day tables stored in the Parquet file at path.
func Tables(path string) (map[types.Key]*types.Table, error) {
	rows, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	return RowsToTables(rows)
}

// RowsToTables rebuilds day tables from rows.
func RowsToTables(rows []Row) (map[types.Key]*types.Table, error) {
	tables := make(map[types.Key]*types.Table)

	for i := range rows {
		row := &rows[i]
		key := types.CameraKey(row.Date, row.Camera)
		if err := key.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if row.Minute < 0 || int(row.Minute) >= types.MinutesPerDay {
			return nil, fmt.Errorf("row %d: minute %d out of range", i, row.Minute)
		}

		t, ok := tables[key]
		if !ok {
			t = types.NewTableFor(key)
			tables[key] = t
		}

		m := int(row.Minute)
		setInt(t, m, types.NCreate, row.NCreate)
		setFloat(t, m, types.AvgUploadLatency, row.AvgUploadLatency)
		setInt(t, m, types.NUpload, row.NUpload)
		setFloat(t, m, types.AvgProcLatency, row.AvgProcLatency)
		setInt(t, m, types.NProcessed, row.NProcessed)
		setInt(t, m, types.NUnprocessed, row.NUnprocessed)
		setInt(t, m, types.NUnprocessedPrev, row.NUnprocessedPrev)
		if key.IsServer() {
			setInt(t, m, types.Restarted, row.Restarted)
			setInt(t, m, types.NErrors, row.Errors)
		}
	}

	return tables, nil
}

func setInt(t *types.Table, minute, col int, v *int64) {
	if v != nil {
		t.Set(minute, col, types.Int(*v))
	}
}

func setFloat(t *types.Table, minute, col int, v *float64) {
	if v != nil {
		t.Set(minute, col, types.Float(*v))
	}
}

// FileInfo holds information about a Parquet file.
type FileInfo struct {
	Path    string
	Size    int64
	NumRows int64
}

// GetFileInfo returns information about a Parquet file.
func GetFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return &FileInfo{
		Path:    path,
		Size:    stat.Size(),
		NumRows: r.NumRows(),
	}, nil
}
