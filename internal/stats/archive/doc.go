// Package archive exports day tables to Parquet files.
//
// Each archive holds every table of one date, one row per minute with any
// field set. Count columns are stored as int64 and averages as float64;
// unset fields are null. Archives are written before the retention sweep
// deletes a date's CSV tables and are the input of the query service.
package archive
