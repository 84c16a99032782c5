// Package stats implements minute-granularity image statistics for a
// camera-image ingestion pipeline.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Recorder   │────▶│  Registry   │────▶│    Codec    │──▶ YYYY-MM-DD[_cam].csv
//	│ (per image) │     │ (day tables)│     │  (CSV I/O)  │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           ▲                   │
//	┌─────────────┐            │            ┌─────────────┐     ┌─────────────┐
//	│ Tick Driver │────────────┘            │  Retention  │────▶│   Archive   │──▶ DuckDB query
//	│ (per minute)│                         │   Sweeper   │     │  (Parquet)  │
//	└─────────────┘                         └─────────────┘     └─────────────┘
//
// Each day table has one row per minute of the day. Per-camera tables count
// images created, uploaded and processed in each minute together with running
// mean latencies; the server table aggregates every camera and also records
// restarts. The tick driver writes the unprocessed backlog every minute and
// flushes dirty tables; the retention sweeper deletes files of old dates.
package stats
