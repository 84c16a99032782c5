package config

import (
	"fmt"
	"os"
	"time"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/logging"
	"github.com/xtxerr/camstats/internal/validation"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	if c.StatsDir == "" {
		v.AddMissing("stats_dir")
	}
	if c.ImageRoot == "" {
		v.AddMissing("image_root")
	}

	if c.Timezone != "" && c.Timezone != "Local" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			v.AddField("timezone", err.Error())
		}
	}

	c.validateCameras(v)
	c.Retention.validate(v)
	c.Storage.validate(v)
	c.Tick.validate(v)
	c.Archive.validate(v)
	c.Query.validate(v)
	c.Logging.validate(v)

	return v.Err()
}

func (c *Config) validateCameras(v *errors.ValidationErrors) {
	seen := make(map[string]bool, len(c.Cameras))

	for i, cam := range c.Cameras {
		field := fmt.Sprintf("cameras[%d].short_name", i)
		switch {
		case cam.Name == "":
			v.AddMissing(field)
		case seen[cam.Name]:
			v.AddField(field, fmt.Sprintf("duplicate camera %q", cam.Name))
		default:
			if err := validation.ValidateCameraName(cam.Name); err != nil {
				v.AddField(field, err.Error())
			}
		}
		seen[cam.Name] = true
	}
}

func (c *RetentionConfig) validate(v *errors.ValidationErrors) {
	if c.Days < 0 {
		v.AddField("retention.days", "must be non-negative")
	}
	if c.Hour < 0 || c.Hour > 23 {
		v.AddField("retention.hour", "must be between 0 and 23")
	}
}

func (c *StorageConfig) validate(v *errors.ValidationErrors) {
	switch c.ReplaceMode {
	case "", "atomic", "remove_first", "auto":
	default:
		v.AddField("storage.replace_mode", "must be one of: atomic, remove_first, auto")
	}
}

func (c *TickConfig) validate(v *errors.ValidationErrors) {
	if c.Workers < 0 {
		v.AddField("tick.workers", "must be non-negative")
	}
}

func (c *ArchiveConfig) validate(v *errors.ValidationErrors) {
	switch c.Compression {
	case "", "snappy", "zstd", "lz4", "gzip", "none":
	default:
		v.AddField("archive.compression", "must be one of: snappy, zstd, lz4, gzip, none")
	}
	if c.RetainDays < 0 {
		v.AddField("archive.retain_days", "must be non-negative")
	}
}

func (c *QueryConfig) validate(v *errors.ValidationErrors) {
	if c.Timeout < 0 {
		v.AddField("query.timeout", "must be non-negative")
	}
	if c.MemoryLimit != "" && parseMemoryLimit(c.MemoryLimit) <= 0 {
		v.AddField("query.memory_limit", fmt.Sprintf("cannot parse %q", c.MemoryLimit))
	}
}

func (c *LoggingConfig) validate(v *errors.ValidationErrors) {
	if _, err := logging.ParseLevel(c.Level); err != nil {
		v.AddField("logging.level", err.Error())
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.StatsDir}
	if c.Retention.Archive {
		dirs = append(dirs, c.ArchiveDir())
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
