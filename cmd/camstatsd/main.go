// camstatsd is the image statistics daemon.
//
// It records every image path read from stdin (one per line) as processed,
// using the file's modification time as its upload time, and maintains the
// per-minute backlog and restart columns of the day tables.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/xtxerr/camstats/config"
	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/logging"
	"github.com/xtxerr/camstats/internal/stats"
	statsconfig "github.com/xtxerr/camstats/internal/stats/config"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "camstats.yaml", "config file path")
	statsDir := flag.String("stats-dir", "", "stats directory (overrides config)")
	imageRoot := flag.String("image-root", "", "image root directory (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("camstatsd", Version)
		return
	}

	// Load config
	usingDefaults := false
	cfg, err := statsconfig.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fatal("load config", err)
		}
		cfg = statsconfig.DefaultConfig()
		usingDefaults = true
	}

	// CLI overrides
	if *statsDir != "" {
		cfg.StatsDir = *statsDir
	}
	if *imageRoot != "" {
		cfg.ImageRoot = *imageRoot
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logJSON {
		cfg.Logging.JSON = true
	}

	if err := cfg.Validate(); err != nil {
		fatal("invalid config", err)
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.JSON)

	logger := logging.Component("main")
	logger.Info("camstatsd starting", "version", Version, "config", *cfgPath)
	if usingDefaults {
		logger.Info("no config file found, using defaults")
	}

	svc, err := stats.New(cfg, nil, nil)
	if err != nil {
		fatal("create stats service", err)
	}

	if err := svc.Start(); err != nil {
		fatal("start stats service", err)
	}

	// =========================================================================
	// Signal Handling
	// =========================================================================

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go readPaths(ctx, svc, os.Stdin)

	<-ctx.Done()
	logger.Info("shutting down")

	// =========================================================================
	// Graceful Shutdown
	// =========================================================================

	done := make(chan error, 1)
	go func() { done <- svc.Close() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	case <-time.After(config.DefaultShutdownTimeout):
		logger.Error("shutdown timed out", "timeout", config.DefaultShutdownTimeout)
		os.Exit(1)
	}

	st := svc.Stats()
	logger.Info("camstatsd stopped",
		"records", st.Recorder.Records,
		"ticks", st.Tick.Ticks,
		"tables_flushed", st.Registry.TablesFlushed,
	)
}

// readPaths records each non-empty line of r as a processed image until r
// is exhausted or ctx is done.
func readPaths(ctx context.Context, svc *stats.Service, r *os.File) {
	logger := logging.Component("stdin")

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		path := strings.TrimSpace(scanner.Text())
		if path == "" {
			continue
		}

		if err := svc.RecordFile(path); err != nil {
			logger.Warn("failed to record image", "path", path, "error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Error("read stdin", "error", err)
		return
	}
	logger.Info("stdin closed, no more images will be recorded")
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "camstatsd: %s: %v\n", msg, err)
	os.Exit(1)
}
