// Package retention removes stats files older than the retention window.
//
// Retention counts distinct dates that have files, not calendar days: with
// retainDays = 7 the seven most recent dates present on disk are kept, however
// far apart they are. The sweeper works on file names only and never touches
// the in-memory registry.
package retention

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/logging"
	"github.com/xtxerr/camstats/internal/stats/types"
)

var (
	// TablePattern matches persisted tables, including .temp and .corrupt
	// leftovers. The first group is the date.
	TablePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})(_.*)?\.csv.*$`)

	// ArchivePattern matches per-date archive files.
	ArchivePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.parquet.*$`)
)

// Archiver preserves a date's tables before they are deleted.
type Archiver interface {
	ArchiveDate(date string, files []string) error
}

// Sweeper applies the retention policy to one directory.
type Sweeper struct {
	mu       sync.Mutex
	dir      string
	pattern  *regexp.Regexp
	archiver Archiver
	stats    Stats
	logger   *slog.Logger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithArchiver archives each expiring date before its files are deleted. If
// archiving fails the date is kept.
func WithArchiver(a Archiver) Option {
	return func(s *Sweeper) {
		s.archiver = a
	}
}

// WithPattern replaces TablePattern. The first group must capture the date.
func WithPattern(re *regexp.Regexp) Option {
	return func(s *Sweeper) {
		s.pattern = re
	}
}

// New creates a Sweeper for dir.
func New(dir string, opts ...Option) *Sweeper {
	s := &Sweeper{
		dir:     dir,
		pattern: TablePattern,
		logger:  logging.Component("retention"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result describes one sweep.
type Result struct {
	RetainDays   int
	Cutoff       string // oldest date kept; empty if nothing expired
	DatesRemoved []string
	Archived     []string
	FilesDeleted int
	BytesFreed   int64
	FilesKept    int
	DryRun       bool
	Errors       []error
}

// Err joins the errors of the sweep.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// Stats holds cumulative sweeper statistics.
type Stats struct {
	LastRunTime   time.Time
	Runs          int64
	FilesDeleted  int64
	BytesFreed    int64
	DatesArchived int64
	Errors        int64
}

// Expire keeps the files of the retainDays most recent dates and deletes the
// rest. Files are visited in name order and the walk stops at the first file
// dated at or after the cutoff. A file that cannot be removed is logged and
// skipped. retainDays <= 0 deletes nothing.
func (s *Sweeper) Expire(retainDays int) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.sweep(retainDays, false)

	s.stats.LastRunTime = time.Now()
	s.stats.Runs++
	s.stats.FilesDeleted += int64(result.FilesDeleted)
	s.stats.BytesFreed += result.BytesFreed
	s.stats.DatesArchived += int64(len(result.Archived))
	s.stats.Errors += int64(len(result.Errors))

	if result.FilesDeleted > 0 || len(result.Errors) > 0 {
		s.logger.Info("retention sweep",
			"dir", s.dir,
			"retain_days", retainDays,
			"cutoff", result.Cutoff,
			"files_deleted", result.FilesDeleted,
			"bytes_freed", result.BytesFreed,
			"errors", len(result.Errors))
	}

	return result
}

// DryRun reports what Expire would delete without deleting or archiving.
func (s *Sweeper) DryRun(retainDays int) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweep(retainDays, true)
}

func (s *Sweeper) sweep(retainDays int, dryRun bool) Result {
	result := Result{RetainDays: retainDays, DryRun: dryRun}

	files, err := s.listFiles()
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, errors.Wrap(err, "list files"))
		}
		return result
	}

	dates := distinctDates(files)
	if retainDays <= 0 || len(dates) <= retainDays {
		result.FilesKept = len(files)
		return result
	}

	cutoff := dates[len(dates)-retainDays]
	result.Cutoff = cutoff

	skip := make(map[string]bool)
	if s.archiver != nil && !dryRun {
		for _, date := range dates {
			if date >= cutoff {
				break
			}
			archived, err := s.archive(date, files)
			if err != nil {
				s.logger.Error("archive failed, keeping date", "date", date, "error", err)
				result.Errors = append(result.Errors, err)
				skip[date] = true
				continue
			}
			if archived {
				result.Archived = append(result.Archived, date)
			}
		}
	}

	for _, f := range files {
		if f.date >= cutoff {
			break
		}
		if skip[f.date] {
			continue
		}

		if !dryRun {
			if err := os.Remove(f.path); err != nil {
				s.logger.Warn("failed to remove expired file", "path", f.path, "error", err)
				result.Errors = append(result.Errors, errors.Wrapf(err, "delete %s", f.path))
				continue
			}
		}

		result.FilesDeleted++
		result.BytesFreed += f.size
		if n := len(result.DatesRemoved); n == 0 || result.DatesRemoved[n-1] != f.date {
			result.DatesRemoved = append(result.DatesRemoved, f.date)
		}
	}

	result.FilesKept = len(files) - result.FilesDeleted
	return result
}

// archive hands the canonical table files of date to the archiver and
// reports whether there were any. Temporary and set-aside files are not
// archived.
func (s *Sweeper) archive(date string, files []fileInfo) (bool, error) {
	var paths []string
	for _, f := range files {
		if f.date != date {
			continue
		}
		if _, ok := types.ParseFileName(f.name); ok {
			paths = append(paths, f.path)
		}
	}
	if len(paths) == 0 {
		return false, nil
	}
	if err := s.archiver.ArchiveDate(date, paths); err != nil {
		return false, errors.Wrapf(err, "archive %s", date)
	}
	return true, nil
}

// fileInfo holds information about a file.
type fileInfo struct {
	name string
	path string
	date string
	size int64
}

// listFiles lists the matching files in name order.
func (s *Sweeper) listFiles() ([]fileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var files []fileInfo

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		m := s.pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}

		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}

		files = append(files, fileInfo{
			name: name,
			path: filepath.Join(s.dir, name),
			date: m[1],
			size: size,
		})
	}

	slices.SortFunc(files, func(a, b fileInfo) int {
		switch {
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		default:
			return 0
		}
	})

	return files, nil
}

func distinctDates(files []fileInfo) []string {
	var dates []string
	for _, f := range files {
		dates = append(dates, f.date)
	}
	slices.Sort(dates)
	return slices.Compact(dates)
}

// Stats returns cumulative statistics.
func (s *Sweeper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// DiskUsage holds disk usage information.
type DiskUsage struct {
	FileCount int
	TotalSize int64
	Dates     int
	Oldest    string
	Newest    string
}

// DiskUsage returns the usage of the matching files in the directory.
func (s *Sweeper) DiskUsage() (DiskUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.listFiles()
	if err != nil {
		if os.IsNotExist(err) {
			return DiskUsage{}, nil
		}
		return DiskUsage{}, err
	}

	usage := DiskUsage{FileCount: len(files)}
	for _, f := range files {
		usage.TotalSize += f.size
	}

	dates := distinctDates(files)
	usage.Dates = len(dates)
	if len(dates) > 0 {
		usage.Oldest = dates[0]
		usage.Newest = dates[len(dates)-1]
	}
	return usage, nil
}

// FormatDiskUsage returns a formatted string of disk usage.
func (s *Sweeper) FormatDiskUsage() string {
	u, err := s.DiskUsage()
	if err != nil {
		return fmt.Sprintf("Disk Usage: %v\n", err)
	}
	if u.Dates == 0 {
		return fmt.Sprintf("Disk Usage (%s): no files\n", s.dir)
	}
	return fmt.Sprintf("Disk Usage (%s):\n  %d files, %s\n  %d dates, %s to %s\n",
		s.dir, u.FileCount, formatBytes(u.TotalSize), u.Dates, u.Oldest, u.Newest)
}

// ExpireArchives applies the retention policy to the parquet archives in dir.
func ExpireArchives(dir string, retainDays int) Result {
	return New(dir, WithPattern(ArchivePattern)).Expire(retainDays)
}

// formatBytes formats bytes as human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
