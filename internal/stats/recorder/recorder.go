// Package recorder turns each processed image into six table updates: the
// camera and server tables of the image's creation minute, upload minute and
// processing minute.
package recorder

import (
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/imagedir"
	"github.com/xtxerr/camstats/internal/logging"
	"github.com/xtxerr/camstats/internal/stats/registry"
	"github.com/xtxerr/camstats/internal/stats/types"
)

// Recorder records image processing events. It is safe for concurrent use.
type Recorder struct {
	reg *registry.Registry
	clk clock.Clock
	loc *time.Location

	records    atomic.Int64
	clockSkews atomic.Int64
	failures   atomic.Int64

	logger *slog.Logger
}

// New creates a Recorder. Times are bucketed into days and minutes in loc; a
// nil loc means time.Local.
func New(reg *registry.Registry, clk clock.Clock, loc *time.Location) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Recorder{
		reg:    reg,
		clk:    clk,
		loc:    loc,
		logger: logging.Component("recorder"),
	}
}

// RecordFile records the image at path using its modification time as the
// upload time.
func (r *Recorder) RecordFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		r.failures.Add(1)
		return errors.Wrapf(err, "stat %s", path)
	}
	return r.RecordProcessed(path, info.ModTime())
}

// RecordProcessed records that the image at imagePath, uploaded at modTime,
// has just been processed.
//
// The upload latency (modTime minus the capture time encoded in the path) is
// counted in whole seconds, folded into the creation minute's average and
// clamped at zero. The
// processing latency (now minus modTime) is folded into the upload minute's
// average and is not clamped. The processing minute only gets a count.
func (r *Recorder) RecordProcessed(imagePath string, modTime time.Time) error {
	origin, err := imagedir.ParseImagePath(imagePath, r.loc)
	if err != nil {
		r.failures.Add(1)
		return err
	}

	uploadLatency := wholeMinutes(modTime.Sub(origin.Created))
	if uploadLatency < 0 {
		r.clockSkews.Add(1)
		r.logger.Warn("negative upload latency",
			"camera", origin.Camera,
			"path", imagePath,
			"minutes", uploadLatency,
			"error", errors.ErrClockSkew)
		uploadLatency = 0
	}

	now := r.clk.Now().In(r.loc)
	uploaded := modTime.In(r.loc)
	procLatency := now.Sub(uploaded).Minutes()
	if procLatency < 0 {
		r.logger.Debug("negative processing latency",
			"camera", origin.Camera,
			"path", imagePath,
			"minutes", procLatency)
	}

	createKey := types.CameraKey(origin.Date, origin.Camera)
	createMinute := origin.Minute()
	uploadKey := types.KeyFor(uploaded, origin.Camera)
	uploadMinute := types.MinuteOfDay(uploaded)
	procKey := types.KeyFor(now, origin.Camera)
	procMinute := types.MinuteOfDay(now)

	steps := []struct {
		key    types.Key
		update func(*types.Table)
	}{
		{createKey, func(t *types.Table) {
			t.AddSample(createMinute, types.NCreate, types.AvgUploadLatency, uploadLatency)
		}},
		{createKey.Server(), func(t *types.Table) {
			t.AddSample(createMinute, types.NCreate, types.AvgUploadLatency, uploadLatency)
		}},
		{uploadKey, func(t *types.Table) {
			t.AddSample(uploadMinute, types.NUpload, types.AvgProcLatency, procLatency)
		}},
		{uploadKey.Server(), func(t *types.Table) {
			t.AddSample(uploadMinute, types.NUpload, types.AvgProcLatency, procLatency)
		}},
		{procKey, func(t *types.Table) {
			t.Increment(procMinute, types.NProcessed)
		}},
		{procKey.Server(), func(t *types.Table) {
			t.Increment(procMinute, types.NProcessed)
		}},
	}

	for _, step := range steps {
		if err := r.update(step.key, step.update); err != nil {
			r.failures.Add(1)
			return errors.Wrapf(err, "record %s", imagePath)
		}
	}

	r.records.Add(1)
	return nil
}

func (r *Recorder) update(key types.Key, fn func(*types.Table)) error {
	t, release, err := r.reg.Acquire(key, true)
	if err != nil {
		return err
	}
	defer release()

	fn(t)
	return nil
}

// wholeMinutes converts d to fractional minutes at whole-second resolution.
func wholeMinutes(d time.Duration) float64 {
	return d.Truncate(time.Second).Seconds() / 60
}

// Stats contains recorder counters.
type Stats struct {
	Records    int64
	ClockSkews int64
	Errors     int64
}

// Stats returns current counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Records:    r.records.Load(),
		ClockSkews: r.clockSkews.Load(),
		Errors:     r.failures.Load(),
	}
}
