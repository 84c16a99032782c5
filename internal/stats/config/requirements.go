package config

import (
	"fmt"
)

// Requirements represents estimated storage and memory requirements.
type Requirements struct {
	Cameras int

	// Tables written per day: one per camera plus the server table.
	TablesPerDay int

	// Table storage
	TableBytesPerDay  int64
	StatsStorageBytes int64

	// Archive storage
	ArchiveBytesPerDay  int64
	ArchiveStorageBytes int64

	// Rows updated per day by the tick driver alone.
	TickUpdatesPerDay int64

	QueryMemoryBytes int64
}

// Constants for calculations
const (
	minutesPerDay = 1440

	// Bytes per CSV row of a fully populated camera table.
	bytesPerCameraRow = 56

	// Bytes per CSV row of a fully populated server table.
	bytesPerServerRow = 64

	// Bytes per Parquet row (compressed)
	bytesPerArchiveRow = 12
)

// CalculateRequirements estimates resource requirements based on configuration.
func (c *Config) CalculateRequirements() Requirements {
	r := Requirements{
		Cameras:      len(c.Cameras),
		TablesPerDay: len(c.Cameras) + 1,
	}

	r.TableBytesPerDay = int64(minutesPerDay) *
		(int64(r.Cameras)*bytesPerCameraRow + bytesPerServerRow)

	// Retention keeps Days distinct dates; zero disables the sweep, so count
	// one year.
	days := int64(c.Retention.Days)
	if days <= 0 {
		days = 365
	}
	r.StatsStorageBytes = r.TableBytesPerDay * days

	r.TickUpdatesPerDay = int64(minutesPerDay) * int64(r.TablesPerDay)

	if c.Retention.Archive {
		r.ArchiveBytesPerDay = int64(minutesPerDay) * int64(r.TablesPerDay) * bytesPerArchiveRow
		archiveDays := int64(c.Archive.RetainDays)
		if archiveDays <= 0 {
			archiveDays = 365
		}
		r.ArchiveStorageBytes = r.ArchiveBytesPerDay * archiveDays
	}

	r.QueryMemoryBytes = parseMemoryLimit(c.Query.MemoryLimit)

	return r
}

// FormatRequirements returns a human-readable summary of requirements.
func (r *Requirements) FormatRequirements() string {
	return fmt.Sprintf(`Resource Requirements
=====================

Load:
  Cameras:           %d
  Tables/day:        %d
  Tick updates/day:  %s

Storage:
  Tables/day:        %s
  Tables retained:   %s
  Archive/day:       %s
  Archive retained:  %s

Memory:
  Query Engine:      %s
`,
		r.Cameras,
		r.TablesPerDay,
		formatNumber(r.TickUpdatesPerDay),
		formatBytes(r.TableBytesPerDay),
		formatBytes(r.StatsStorageBytes),
		formatBytes(r.ArchiveBytesPerDay),
		formatBytes(r.ArchiveStorageBytes),
		formatBytes(r.QueryMemoryBytes),
	)
}

// parseMemoryLimit parses a memory limit string like "2GB" into bytes.
func parseMemoryLimit(s string) int64 {
	if s == "" {
		return 2 * 1024 * 1024 * 1024 // Default 2GB
	}

	var value int64
	var unit string
	_, err := fmt.Sscanf(s, "%d%s", &value, &unit)
	if err != nil {
		// Try without space
		for i, c := range s {
			if c < '0' || c > '9' {
				fmt.Sscanf(s[:i], "%d", &value)
				unit = s[i:]
				break
			}
		}
	}

	switch unit {
	case "B", "b", "":
		return value
	case "KB", "kb", "K", "k":
		return value * 1024
	case "MB", "mb", "M", "m":
		return value * 1024 * 1024
	case "GB", "gb", "G", "g":
		return value * 1024 * 1024 * 1024
	case "TB", "tb", "T", "t":
		return value * 1024 * 1024 * 1024 * 1024
	default:
		return value
	}
}

// formatBytes formats bytes as a human-readable string.
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

// formatNumber formats a number with thousand separators.
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	if n < 1000000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1000000000)
}
