package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/camstats/config"
)

// Config represents the complete stats configuration.
type Config struct {
	// StatsDir is the directory holding the day table files.
	StatsDir string `yaml:"stats_dir"`

	// ImageRoot is the root of the image tree: <root>/<YYYY-MM-DD>/<camera>/.
	ImageRoot string `yaml:"image_root"`

	// Timezone names the location used to derive dates and minutes.
	// Empty means the local timezone.
	Timezone string `yaml:"timezone"`

	// Cameras lists the cameras counted on each tick.
	Cameras []CameraConfig `yaml:"cameras"`

	// Retention configures the daily sweep of old tables.
	Retention RetentionConfig `yaml:"retention"`

	// Storage configures how tables are persisted.
	Storage StorageConfig `yaml:"storage"`

	// Tick configures the minute tick driver.
	Tick TickConfig `yaml:"tick"`

	// Archive configures Parquet export of expiring dates.
	Archive ArchiveConfig `yaml:"archive"`

	// Query configures the query service.
	Query QueryConfig `yaml:"query"`

	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging"`
}

// CameraConfig describes one camera.
type CameraConfig struct {
	// Name is the camera short name used in directory and file names.
	Name string `yaml:"short_name"`
}

// ShortName returns the camera short name.
func (c CameraConfig) ShortName() string {
	return c.Name
}

// RetentionConfig configures the retention sweep.
type RetentionConfig struct {
	// Days is the number of distinct dates kept. Zero disables the sweep.
	Days int `yaml:"days"`

	// Hour is the local hour (0-23) at which the daily sweep runs.
	Hour int `yaml:"hour"`

	// Archive exports each expiring date to Parquet before deleting it.
	Archive bool `yaml:"archive"`
}

// StorageConfig configures table persistence.
type StorageConfig struct {
	// ReplaceMode selects how a flushed file replaces the previous one:
	// atomic, remove_first or auto.
	ReplaceMode string `yaml:"replace_mode"`

	// ResetCorrupt sets malformed table files aside and starts empty tables
	// instead of failing every update of that table.
	ResetCorrupt bool `yaml:"reset_corrupt"`
}

// TickConfig configures the minute tick driver.
type TickConfig struct {
	// Workers bounds the number of camera directories scanned in parallel.
	Workers int `yaml:"workers"`
}

// ArchiveConfig configures Parquet archives.
type ArchiveConfig struct {
	// Dir is the archive directory. Defaults to {StatsDir}/archive.
	Dir string `yaml:"dir"`

	// Compression is the compression algorithm: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// RetainDays is the number of archived dates kept. Zero keeps all.
	RetainDays int `yaml:"retain_days"`
}

// QueryConfig configures the query service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the query timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// JSON selects JSON output instead of text.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StatsDir:  defaults.DefaultStatsDir,
		ImageRoot: defaults.DefaultImageRoot,
		Retention: RetentionConfig{
			Days: defaults.DefaultRetentionDays,
			Hour: defaults.DefaultRetentionHour,
		},
		Storage: StorageConfig{
			ReplaceMode: defaults.DefaultReplaceMode,
		},
		Tick: TickConfig{
			Workers: defaults.DefaultTickWorkers,
		},
		Archive: ArchiveConfig{
			Compression: defaults.DefaultArchiveCompression,
			RetainDays:  defaults.DefaultArchiveRetainDays,
		},
		Query: QueryConfig{
			MemoryLimit: defaults.DefaultQueryMemoryLimit,
			Timeout:     defaults.DefaultQueryTimeout,
		},
		Logging: LoggingConfig{
			Level: defaults.DefaultLogLevel,
		},
	}
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ArchiveDir returns the archive directory path.
func (c *Config) ArchiveDir() string {
	if c.Archive.Dir != "" {
		return c.Archive.Dir
	}
	return filepath.Join(c.StatsDir, defaults.DefaultArchiveSubdir)
}

// CameraNames returns the configured camera short names.
func (c *Config) CameraNames() []string {
	names := make([]string, len(c.Cameras))
	for i, cam := range c.Cameras {
		names[i] = cam.Name
	}
	return names
}
