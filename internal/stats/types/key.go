package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used in keys and file names.
const DateLayout = "2006-01-02"

// File name parts of persisted tables.
const (
	FileExt    = ".csv"
	TempSuffix = ".temp"
)

// Key identifies a day table: a calendar date and a camera short name.
// An empty Camera denotes the server-wide table for that date.
type Key struct {
	Date   string // YYYY-MM-DD
	Camera string
}

// CameraKey returns the key of a per-camera table.
func CameraKey(date, camera string) Key {
	return Key{Date: date, Camera: camera}
}

// ServerKey returns the key of the per-server table.
func ServerKey(date string) Key {
	return Key{Date: date}
}

// KeyFor returns the key of the table covering t for the given camera.
func KeyFor(t time.Time, camera string) Key {
	return Key{Date: t.Format(DateLayout), Camera: camera}
}

// IsServer returns true for the per-server aggregate table.
func (k Key) IsServer() bool {
	return k.Camera == ""
}

// Server returns the per-server key of the same date.
func (k Key) Server() Key {
	return Key{Date: k.Date}
}

// RowLen returns the number of value fields per row for this key.
func (k Key) RowLen() int {
	if k.IsServer() {
		return ServerRowLen
	}
	return CameraRowLen
}

// FileName returns the persisted file name:
// YYYY-MM-DD_<camera>.csv per camera, YYYY-MM-DD.csv per server.
func (k Key) FileName() string {
	if k.IsServer() {
		return k.Date + FileExt
	}
	return k.Date + "_" + k.Camera + FileExt
}

// String returns "date/camera" or just the date for the server table.
func (k Key) String() string {
	if k.IsServer() {
		return k.Date
	}
	return k.Date + "/" + k.Camera
}

// Validate checks the date format and that the camera name is usable in a
// file name.
func (k Key) Validate() error {
	if _, err := time.Parse(DateLayout, k.Date); err != nil {
		return fmt.Errorf("date %q: %w", k.Date, err)
	}
	if strings.ContainsAny(k.Camera, `/\`) {
		return fmt.Errorf("camera %q contains a path separator", k.Camera)
	}
	return nil
}

// ParseFileName is the inverse of FileName. It accepts only canonical table
// names (no .temp suffix).
func ParseFileName(name string) (Key, bool) {
	base, ok := strings.CutSuffix(name, FileExt)
	if !ok || len(base) < len(DateLayout) {
		return Key{}, false
	}

	date := base[:len(DateLayout)]
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Key{}, false
	}

	rest := base[len(DateLayout):]
	switch {
	case rest == "":
		return ServerKey(date), true
	case strings.HasPrefix(rest, "_") && len(rest) > 1:
		return CameraKey(date, rest[1:]), true
	default:
		return Key{}, false
	}
}
