// Package tick runs the once-a-minute maintenance of the stats tables:
// sampling the backlog of unprocessed images per camera, recording a server
// restart, and flushing dirty tables to disk.
package tick

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/camstats/config"
	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/logging"
	"github.com/xtxerr/camstats/internal/stats/registry"
	"github.com/xtxerr/camstats/internal/stats/types"
)

// DefaultWorkers bounds concurrent directory scans when no option is given.
const DefaultWorkers = config.DefaultTickWorkers

// ImageSource lists day directories and the unprocessed images inside them.
type ImageSource interface {
	// DayDirs returns paths of directories named YYYY-MM-DD.
	DayDirs() ([]string, error)
	// ImagesInDir returns the images in dir; a missing dir has none.
	ImagesInDir(dir string) ([]string, error)
}

// Camera is a configured camera.
type Camera interface {
	ShortName() string
}

// CameraName is a Camera identified only by its short name.
type CameraName string

// ShortName implements Camera.
func (c CameraName) ShortName() string { return string(c) }

// Cameras converts short names to Cameras.
func Cameras(names ...string) []Camera {
	cams := make([]Camera, len(names))
	for i, n := range names {
		cams[i] = CameraName(n)
	}
	return cams
}

// Driver performs the minute tick.
type Driver struct {
	reg     *registry.Registry
	source  ImageSource
	clk     clock.Clock
	loc     *time.Location
	workers int

	restarted atomic.Bool

	mu    sync.Mutex
	stats Stats

	logger *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithWorkers sets how many cameras are scanned concurrently.
func WithWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.workers = n
		}
	}
}

// New creates a Driver. A nil loc means time.Local.
func New(reg *registry.Registry, source ImageSource, clk clock.Clock, loc *time.Location, opts ...Option) *Driver {
	if clk == nil {
		clk = clock.New()
	}
	if loc == nil {
		loc = time.Local
	}

	d := &Driver{
		reg:     reg,
		source:  source,
		clk:     clk,
		loc:     loc,
		workers: DefaultWorkers,
		logger:  logging.Component("tick"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MarkRestarted makes the next tick record a restart in the server table.
func (d *Driver) MarkRestarted() {
	d.restarted.Store(true)
}

// Restarted reports whether a restart is waiting to be recorded.
func (d *Driver) Restarted() bool {
	return d.restarted.Load()
}

type backlog struct {
	today int64
	prev  int64
}

// OnMinuteTick records the unprocessed image counts for the minute of ts,
// consumes the restart flag and flushes dirty tables. A failure to count
// images leaves the backlog columns untouched for this minute but the flush
// still happens.
func (d *Driver) OnMinuteTick(ts time.Time, cameras []Camera) error {
	start := time.Now()
	local := ts.In(d.loc)
	today := local.Format(types.DateLayout)
	minute := types.MinuteOfDay(local)

	var errs []error

	counts, err := d.count(today, cameras)
	if err != nil {
		d.logger.Error("failed to count unprocessed images", "date", today, "error", err)
		errs = append(errs, err)
	} else if err := d.writeBacklog(today, minute, cameras, counts); err != nil {
		errs = append(errs, err)
	}

	if err := d.writeRestart(today, minute); err != nil {
		errs = append(errs, err)
	}

	flushed, err := d.reg.FlushDirty()
	if err != nil {
		errs = append(errs, err)
	}

	d.mu.Lock()
	d.stats.Ticks++
	d.stats.LastTick = ts
	d.stats.LastFlushed = flushed
	d.stats.LastDuration = time.Since(start)
	if len(errs) > 0 {
		d.stats.Errors++
	}
	d.mu.Unlock()

	d.logger.Debug("minute tick",
		"date", today,
		"minute", minute,
		"flushed", flushed,
		"duration", time.Since(start))

	return errors.Join(errs...)
}

func (d *Driver) count(today string, cameras []Camera) ([]backlog, error) {
	dayDirs, err := d.source.DayDirs()
	if err != nil {
		return nil, err
	}

	counts := make([]backlog, len(cameras))

	var g errgroup.Group
	g.SetLimit(d.workers)

	for i, cam := range cameras {
		g.Go(func() error {
			for _, dp := range dayDirs {
				images, err := d.source.ImagesInDir(filepath.Join(dp, cam.ShortName()))
				if err != nil {
					return errors.Wrapf(err, "camera %s", cam.ShortName())
				}
				if filepath.Base(dp) == today {
					counts[i].today += int64(len(images))
				} else {
					counts[i].prev += int64(len(images))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (d *Driver) writeBacklog(today string, minute int, cameras []Camera, counts []backlog) error {
	var total backlog
	var errs []error

	for i, cam := range cameras {
		total.today += counts[i].today
		total.prev += counts[i].prev

		if err := d.setBacklog(types.CameraKey(today, cam.ShortName()), minute, counts[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if err := d.setBacklog(types.ServerKey(today), minute, total); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Driver) setBacklog(key types.Key, minute int, b backlog) error {
	t, release, err := d.reg.Acquire(key, true)
	if err != nil {
		d.logger.Error("failed to acquire table", "date", key.Date, "camera", key.Camera, "error", err)
		return err
	}
	defer release()

	t.Set(minute, types.NUnprocessed, types.Int(b.today))
	t.Zeroback(minute, types.NUnprocessed)
	t.Set(minute, types.NUnprocessedPrev, types.Int(b.prev))
	t.Zeroback(minute, types.NUnprocessedPrev)
	return nil
}

// writeRestart consumes the restart flag only once the server table is held,
// so a failed acquisition leaves it for the next tick.
func (d *Driver) writeRestart(today string, minute int) error {
	if !d.restarted.Load() {
		return nil
	}

	t, release, err := d.reg.Acquire(types.ServerKey(today), true)
	if err != nil {
		return err
	}
	defer release()

	if d.restarted.CompareAndSwap(true, false) {
		t.Set(minute, types.Restarted, types.Int(1))
		t.Zeroback(minute, types.Restarted)
		d.logger.Info("restart recorded", "date", today, "minute", minute)
	}
	return nil
}

// Run waits for the top of each minute on the clock and runs OnMinuteTick
// until ctx is cancelled. Cancellation is noticed while waiting and between
// ticks, never during one. Tick errors are logged and do not stop the loop.
func (d *Driver) Run(ctx context.Context, cameras []Camera) error {
	d.logger.Info("tick loop started", "cameras", len(cameras), "workers", d.workers)
	defer d.logger.Info("tick loop stopped")

	for {
		now := d.clk.Now()
		delay := UntilNextMinute(now)
		wait := d.clk.After(delay)

		d.mu.Lock()
		d.stats.NextTick = now.Add(delay)
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}

		if err := d.OnMinuteTick(d.clk.Now(), cameras); err != nil {
			d.logger.Error("minute tick failed", "error", err)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// UntilNextMinute returns the time from now to the next minute boundary. At
// an exact boundary it returns a full minute.
func UntilNextMinute(now time.Time) time.Duration {
	return time.Minute - time.Duration(now.UnixNano()%int64(time.Minute))
}

// Stats contains tick counters.
type Stats struct {
	Ticks        int64
	Errors       int64
	LastTick     time.Time
	LastFlushed  int
	LastDuration time.Duration

	// NextTick is set once Run is waiting for that minute.
	NextTick time.Time
}

// Stats returns current counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
