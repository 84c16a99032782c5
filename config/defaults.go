// Package config provides configuration defaults for the camstats
// application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or daemon flags.
package config

import "time"

// =============================================================================
// Path Defaults
// =============================================================================

const (
	// DefaultStatsDir holds the day table files.
	// Override via config: stats_dir, or -stats-dir
	DefaultStatsDir = "/var/lib/camstats/stats"

	// DefaultImageRoot is the root of the <date>/<camera>/ image tree.
	// Override via config: image_root, or -image-root
	DefaultImageRoot = "/var/lib/camstats/images"

	// DefaultArchiveSubdir is the archive directory below the stats
	// directory when archive.dir is not set.
	DefaultArchiveSubdir = "archive"
)

// =============================================================================
// Tick Defaults
// =============================================================================

const (
	// DefaultTickWorkers bounds concurrent camera directory scans per tick.
	// Override via config: tick.workers
	DefaultTickWorkers = 4
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultReplaceMode selects how a flushed table replaces its file.
	// "atomic" renames over the old file, "remove_first" deletes it before
	// the rename, "auto" picks remove_first on Windows.
	// Override via config: storage.replace_mode
	DefaultReplaceMode = "auto"
)

// =============================================================================
// Retention Defaults
// =============================================================================

const (
	// DefaultRetentionDays is the number of distinct dates whose tables are
	// kept. Zero disables the sweep.
	// Override via config: retention.days
	DefaultRetentionDays = 30

	// DefaultRetentionHour is the local hour at which the daily sweep runs.
	// Override via config: retention.hour
	DefaultRetentionHour = 3

	// DefaultArchiveRetainDays is the number of archived dates kept.
	// Override via config: archive.retain_days
	DefaultArchiveRetainDays = 365

	// DefaultArchiveCompression is the Parquet compression of archives.
	// Override via config: archive.compression
	DefaultArchiveCompression = "zstd"
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultQueryMemoryLimit caps DuckDB memory.
	// Override via config: query.memory_limit
	DefaultQueryMemoryLimit = "512MB"

	// DefaultQueryTimeout bounds a single query.
	// Override via config: query.timeout
	DefaultQueryTimeout = 30 * time.Second
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the minimum level logged.
	// Override via config: logging.level, or -log-level
	DefaultLogLevel = "info"
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultShutdownTimeout is how long the daemon waits for the final
	// flush before exiting.
	DefaultShutdownTimeout = 30 * time.Second
)
