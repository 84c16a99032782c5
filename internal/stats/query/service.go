// Package query runs SQL over the Parquet archives with DuckDB.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/camstats/internal/stats/config"
	"github.com/xtxerr/camstats/internal/validation"
)

// Service provides query capabilities over archived day tables.
type Service struct {
	mu sync.RWMutex

	config *config.Config
	db     *sql.DB

	queries atomic.Int64
	rows    atomic.Int64
	errors  atomic.Int64
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// DailyTotal is one date of one table, aggregated over its minutes.
type DailyTotal struct {
	Date      string
	Created   int64
	Uploaded  int64
	Processed int64

	// Count-weighted average latencies in minutes; invalid when no image
	// contributed.
	UploadLatency     sql.NullFloat64
	ProcessingLatency sql.NullFloat64

	PeakUnprocessed int64
}

// New creates a new query service.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Open in-memory DuckDB database
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// Configure DuckDB
	if cfg.Query.MemoryLimit != "" {
		_, err = db.Exec(fmt.Sprintf("SET memory_limit='%s'", cfg.Query.MemoryLimit))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{
		config: cfg,
		db:     db,
	}, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withTimeout applies the configured query timeout.
func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Query.Timeout > 0 {
		return context.WithTimeout(ctx, s.config.Query.Timeout)
	}
	return context.WithCancel(ctx)
}

// archiveGlob returns the read_parquet argument for all archives, or "" when
// there are none.
func (s *Service) archiveGlob() (string, error) {
	pattern := filepath.Join(s.config.ArchiveDir(), "*.parquet")

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	return pattern, nil
}

// DailyTotals aggregates the archived table of camera for each date in
// [from, to]. An empty camera selects the server tables.
func (s *Service) DailyTotals(ctx context.Context, camera, from, to string) ([]DailyTotal, error) {
	if err := validation.ValidateDateRange(from, to); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	glob, err := s.archiveGlob()
	if err != nil {
		s.errors.Add(1)
		return nil, fmt.Errorf("list archives: %w", err)
	}
	if glob == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT
			date,
			CAST(COALESCE(SUM(n_create), 0) AS BIGINT),
			CAST(COALESCE(SUM(n_upload), 0) AS BIGINT),
			CAST(COALESCE(SUM(n_processed), 0) AS BIGINT),
			SUM(avg_upload_latency * n_create) /
				NULLIF(SUM(CASE WHEN avg_upload_latency IS NOT NULL THEN n_create END), 0),
			SUM(avg_proc_latency * n_upload) /
				NULLIF(SUM(CASE WHEN avg_proc_latency IS NOT NULL THEN n_upload END), 0),
			CAST(COALESCE(MAX(n_unprocessed), 0) AS BIGINT)
		FROM read_parquet(%s)
		WHERE camera = $1
		  AND date >= $2
		  AND date <= $3
		GROUP BY date
		ORDER BY date
	`, quoteLiteral(glob))

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, camera, from, to)
	if err != nil {
		s.errors.Add(1)
		return nil, fmt.Errorf("query archives: %w", err)
	}
	defer rows.Close()

	var results []DailyTotal
	for rows.Next() {
		var r DailyTotal
		err := rows.Scan(
			&r.Date,
			&r.Created, &r.Uploaded, &r.Processed,
			&r.UploadLatency, &r.ProcessingLatency,
			&r.PeakUnprocessed,
		)
		if err != nil {
			s.errors.Add(1)
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		s.errors.Add(1)
		return nil, err
	}

	s.queries.Add(1)
	s.rows.Add(int64(len(results)))

	return results, nil
}

// quoteLiteral renders s as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Stats returns query statistics.
func (s *Service) Stats() Stats {
	return Stats{
		QueriesExecuted: s.queries.Load(),
		RowsReturned:    s.rows.Load(),
		Errors:          s.errors.Load(),
	}
}

// ExecuteSQL executes a raw SQL query using DuckDB.
// This is useful for ad-hoc queries over read_parquet('<archive_dir>/*.parquet').
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.errors.Add(1)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.queries.Add(1)
	s.rows.Add(int64(len(results)))

	return results, rows.Err()
}
