package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/camstats/internal/stats/types"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionZstd,
		RowGroupSize: 64 * types.MinutesPerDay,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Row is one minute of one day table. Unset fields are null. Camera is empty
// for the server table.
type Row struct {
	Date             string   `parquet:"date,dict"`
	Camera           string   `parquet:"camera,dict"`
	Minute           int32    `parquet:"minute"`
	NCreate          *int64   `parquet:"n_create,optional"`
	AvgUploadLatency *float64 `parquet:"avg_upload_latency,optional"`
	NUpload          *int64   `parquet:"n_upload,optional"`
	AvgProcLatency   *float64 `parquet:"avg_proc_latency,optional"`
	NProcessed       *int64   `parquet:"n_processed,optional"`
	NUnprocessed     *int64   `parquet:"n_unprocessed,optional"`
	NUnprocessedPrev *int64   `parquet:"n_unprocessed_prev,optional"`
	Restarted        *int64   `parquet:"restarted,optional"`
	Errors           *int64   `parquet:"errors,optional"`
}

func intField(v types.Value) *int64 {
	if !v.IsSet() {
		return nil
	}
	n := v.Int64()
	return &n
}

func floatField(v types.Value) *float64 {
	if !v.IsSet() {
		return nil
	}
	f := v.Float64()
	return &f
}

// TableRows converts the minutes of t that have any field set. Count columns
// are stored as integers and averages as floats.
func TableRows(key types.Key, t *types.Table) []Row {
	var rows []Row

	for m := 0; m < types.MinutesPerDay; m++ {
		r := t.Row(m)

		empty := true
		for _, v := range r {
			if v.IsSet() {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		row := Row{
			Date:             key.Date,
			Camera:           key.Camera,
			Minute:           int32(m),
			NCreate:          intField(r[types.NCreate]),
			AvgUploadLatency: floatField(r[types.AvgUploadLatency]),
			NUpload:          intField(r[types.NUpload]),
			AvgProcLatency:   floatField(r[types.AvgProcLatency]),
			NProcessed:       intField(r[types.NProcessed]),
			NUnprocessed:     intField(r[types.NUnprocessed]),
			NUnprocessedPrev: intField(r[types.NUnprocessedPrev]),
		}
		if len(r) == types.ServerRowLen {
			row.Restarted = intField(r[types.Restarted])
			row.Errors = intField(r[types.NErrors])
		}
		rows = append(rows, row)
	}

	return rows
}

// Writer writes day tables to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[Row]
	rowCount int64
	closed   bool
}

// NewWriter creates a new Parquet writer at path.
func NewWriter(path string, opts Options) (*Writer, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(int64(opts.RowGroupSize)))
	}

	return &Writer{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[Row](f, writerOpts...),
	}, nil
}

// WriteTable writes the set minutes of t.
func (w *Writer) WriteTable(key types.Key, t *types.Table) error {
	rows := TableRows(key, t)
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer, syncs and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("sync file: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
