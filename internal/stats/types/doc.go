// Package types defines the core data types used throughout the stats engine.
//
// Key types:
//   - Value: a tagged table field (unset, integer or float)
//   - Key: the (date, camera) identity of a day table; empty camera is the server table
//   - Table: 1440 per-minute rows for one key
package types
