package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/imagedir"
	"github.com/xtxerr/camstats/internal/logging"
	"github.com/xtxerr/camstats/internal/stats/archive"
	"github.com/xtxerr/camstats/internal/stats/config"
	"github.com/xtxerr/camstats/internal/stats/query"
	"github.com/xtxerr/camstats/internal/stats/recorder"
	"github.com/xtxerr/camstats/internal/stats/registry"
	"github.com/xtxerr/camstats/internal/stats/retention"
	"github.com/xtxerr/camstats/internal/stats/summary"
	"github.com/xtxerr/camstats/internal/stats/tick"
	"github.com/xtxerr/camstats/internal/stats/types"
)

// Service is the main stats service that orchestrates all components.
type Service struct {
	mu sync.RWMutex

	config  *config.Config
	clock   clock.Clock
	loc     *time.Location
	cameras []tick.Camera
	logger  *slog.Logger

	// Components
	registry *registry.Registry
	recorder *recorder.Recorder
	driver   *tick.Driver
	sweeper  *retention.Sweeper
	archiver *archive.Archiver
	query    *query.Service

	// State
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	startTime time.Time
}

// New creates a new stats service. A nil source scans cfg.ImageRoot and a
// nil clock uses the system clock.
func New(cfg *config.Config, source tick.ImageSource, clk clock.Clock) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, errors.Wrap(err, "load timezone")
	}

	replacer, err := registry.ReplacerFor(cfg.Storage.ReplaceMode)
	if err != nil {
		return nil, err
	}

	if source == nil {
		source = imagedir.New(cfg.ImageRoot)
	}
	if clk == nil {
		clk = clock.New()
	}

	reg := registry.New(cfg.StatsDir, replacer, registry.WithResetCorrupt(cfg.Storage.ResetCorrupt))

	var sweeperOpts []retention.Option
	var arch *archive.Archiver
	if cfg.Retention.Archive {
		opts := archive.DefaultOptions()
		opts.Compression = archive.ParseCompressionType(cfg.Archive.Compression)
		arch = archive.NewArchiver(cfg.ArchiveDir(), opts)
		sweeperOpts = append(sweeperOpts, retention.WithArchiver(arch))
	}

	qry, err := query.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create query: %w", err)
	}

	cameras := make([]tick.Camera, len(cfg.Cameras))
	for i, c := range cfg.Cameras {
		cameras[i] = c
	}

	var tickOpts []tick.Option
	if cfg.Tick.Workers > 0 {
		tickOpts = append(tickOpts, tick.WithWorkers(cfg.Tick.Workers))
	}

	return &Service{
		config:   cfg,
		clock:    clk,
		loc:      loc,
		cameras:  cameras,
		logger:   logging.Component("stats"),
		registry: reg,
		recorder: recorder.New(reg, clk, loc),
		driver:   tick.New(reg, source, clk, loc, tickOpts...),
		sweeper:  retention.New(cfg.StatsDir, sweeperOpts...),
		archiver: arch,
		query:    qry,
	}, nil
}

// Start marks the process restart and starts the tick loop and the daily
// retention worker.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.ErrAlreadyRunning
	}

	// Ensure directories exist
	if err := s.config.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	s.driver.MarkRestarted()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.startTime = s.clock.Now()
	s.running.Store(true)

	// Start background workers
	s.wg.Add(1)
	go s.tickWorker(ctx)

	if s.config.Retention.Days > 0 {
		s.wg.Add(1)
		go s.retentionWorker(ctx)
	}

	s.logger.Info("stats service started",
		"stats_dir", s.config.StatsDir,
		"cameras", len(s.cameras),
		"retain_days", s.config.Retention.Days,
	)
	return nil
}

// Stop stops the workers and flushes every dirty table.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()

	// Wait for background workers
	s.wg.Wait()

	n, err := s.registry.FlushDirty()
	s.logger.Info("stats service stopped", "flushed", n)
	if err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

// Close stops the service and releases the query engine.
func (s *Service) Close() error {
	return errors.Join(s.Stop(), s.query.Close())
}

// tickWorker runs the minute tick loop.
func (s *Service) tickWorker(ctx context.Context) {
	defer s.wg.Done()

	if err := s.driver.Run(ctx, s.cameras); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("tick loop failed", "error", err)
	}
}

// retentionWorker runs the retention sweep daily at the configured hour.
func (s *Service) retentionWorker(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := s.clock.Now()
		next := NextRun(now.In(s.loc), s.config.Retention.Hour)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(now)):
			s.RunRetention()
		}
	}
}

// NextRun returns the first time after now at which the local hour begins.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, 0, 0, 0, now.Location())
	}
	return next
}

// RecordProcessed records one processed image. See recorder.RecordProcessed.
func (s *Service) RecordProcessed(imagePath string, modTime time.Time) error {
	if !s.running.Load() {
		return errors.ErrNotRunning
	}
	return s.recorder.RecordProcessed(imagePath, modTime)
}

// RecordFile records one processed image using its file modification time.
func (s *Service) RecordFile(imagePath string) error {
	if !s.running.Load() {
		return errors.ErrNotRunning
	}
	return s.recorder.RecordFile(imagePath)
}

// Summary summarizes the table of camera on date; an empty camera selects the
// server table. It reads the table without marking it dirty.
func (s *Service) Summary(date, camera string) (summary.DaySummary, error) {
	key := types.CameraKey(date, camera)

	t, release, err := s.registry.Acquire(key, false)
	if err != nil {
		return summary.DaySummary{}, err
	}
	snapshot := t.Clone()
	release()

	return summary.Summarize(key, snapshot)
}

// Flush writes every dirty table now.
func (s *Service) Flush() (int, error) {
	return s.registry.FlushDirty()
}

// RunRetention applies the retention policy to the tables and, when
// archiving, to the archives.
func (s *Service) RunRetention() []retention.Result {
	results := []retention.Result{s.sweeper.Expire(s.config.Retention.Days)}

	if s.archiver != nil && s.config.Archive.RetainDays > 0 {
		results = append(results, retention.ExpireArchives(s.archiver.Dir(), s.config.Archive.RetainDays))
	}

	for _, r := range results {
		if err := r.Err(); err != nil {
			s.logger.Warn("retention finished with errors", "error", err)
		}
	}
	return results
}

// DryRunRetention reports what RunRetention would delete.
func (s *Service) DryRunRetention() retention.Result {
	return s.sweeper.DryRun(s.config.Retention.Days)
}

// DiskUsage returns the usage of the stats directory.
func (s *Service) DiskUsage() (retention.DiskUsage, error) {
	return s.sweeper.DiskUsage()
}

// DailyTotals queries archived totals of camera for dates in [from, to].
func (s *Service) DailyTotals(ctx context.Context, camera, from, to string) ([]query.DailyTotal, error) {
	return s.query.DailyTotals(ctx, camera, from, to)
}

// QuerySQL executes a raw SQL query.
func (s *Service) QuerySQL(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	return s.query.ExecuteSQL(ctx, sql)
}

// Stats returns combined statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uptime time.Duration
	if s.running.Load() {
		uptime = s.clock.Now().Sub(s.startTime)
	}

	return ServiceStats{
		Running:   s.running.Load(),
		Uptime:    uptime,
		Registry:  s.registry.Stats(),
		Recorder:  s.recorder.Stats(),
		Tick:      s.driver.Stats(),
		Retention: s.sweeper.Stats(),
		Query:     s.query.Stats(),
	}
}

// ServiceStats holds combined statistics.
type ServiceStats struct {
	Running   bool
	Uptime    time.Duration
	Registry  registry.Stats
	Recorder  recorder.Stats
	Tick      tick.Stats
	Retention retention.Stats
	Query     query.Stats
}

// Config returns the current configuration.
func (s *Service) Config() *config.Config {
	return s.config
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Location returns the timezone used for dates and minutes.
func (s *Service) Location() *time.Location {
	return s.loc
}
