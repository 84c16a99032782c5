package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xtxerr/camstats/internal/logging"
	"github.com/xtxerr/camstats/internal/stats/codec"
	"github.com/xtxerr/camstats/internal/stats/types"
)

// FileExt is the extension of archive files.
const FileExt = ".parquet"

// ExportDate writes the tables in files to a Parquet file at dst. Files are
// named as persisted tables; their keys are derived from the name. The
// archive is written to a temporary file and renamed into place.
func ExportDate(files []string, dst string, opts Options) (int64, error) {
	tmp := dst + types.TempSuffix

	w, err := NewWriter(tmp, opts)
	if err != nil {
		return 0, err
	}

	for _, path := range files {
		key, ok := types.ParseFileName(filepath.Base(path))
		if !ok {
			w.Close()
			os.Remove(tmp)
			return 0, fmt.Errorf("%s: not a table file", path)
		}

		t, err := codec.ReadFile(path, key.RowLen())
		if err != nil {
			w.Close()
			os.Remove(tmp)
			return 0, err
		}

		if err := w.WriteTable(key, t); err != nil {
			w.Close()
			os.Remove(tmp)
			return 0, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename archive: %w", err)
	}

	return w.RowCount(), nil
}

// Archiver writes one archive per date into a directory.
type Archiver struct {
	dir  string
	opts Options
}

// NewArchiver creates an archiver writing to dir.
func NewArchiver(dir string, opts Options) *Archiver {
	return &Archiver{dir: dir, opts: opts}
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string {
	return a.dir
}

// PathFor returns the archive path of date.
func (a *Archiver) PathFor(date string) string {
	return filepath.Join(a.dir, date+FileExt)
}

// ArchiveDate exports files to <dir>/<date>.parquet, replacing any earlier
// archive of that date.
func (a *Archiver) ArchiveDate(date string, files []string) error {
	path := a.PathFor(date)

	rows, err := ExportDate(files, path, a.opts)
	if err != nil {
		return err
	}

	logging.Component("archive").Info("archived date",
		"date", date,
		"tables", len(files),
		"rows", rows,
		"path", path,
	)
	return nil
}
