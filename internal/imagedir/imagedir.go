// Package imagedir understands the on-disk layout of the image pipeline:
//
//	<root>/<YYYY-MM-DD>/<camera>/<HH-MM-SS>-<seq>.jpg
//
// The day directory gives the capture date and the file name gives the
// capture time of day. Images still present under the root are unprocessed.
package imagedir

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/xtxerr/camstats/internal/errors"
)

const (
	// DirLayout is the name format of a day directory.
	DirLayout = "2006-01-02"

	// FileTimeLayout is the time-of-day prefix of an image file name.
	FileTimeLayout = "15-04-05"
)

// DefaultExtensions are the image file extensions counted when a Layout
// does not list its own.
var DefaultExtensions = []string{".jpg", ".jpeg"}

// Layout lists day directories and images below Root.
type Layout struct {
	Root       string
	Extensions []string // lower case, with leading dot
}

// New returns a Layout for root using DefaultExtensions.
func New(root string) *Layout {
	return &Layout{Root: root, Extensions: DefaultExtensions}
}

// DayDirs returns the paths of the day directories below Root, oldest first.
// Entries that are not directories or not named YYYY-MM-DD are skipped. A
// missing root yields no directories.
func (l *Layout) DayDirs() ([]string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read image root %s", l.Root)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := ParseDirDate(e.Name(), time.UTC); err != nil {
			continue
		}
		dirs = append(dirs, filepath.Join(l.Root, e.Name()))
	}

	slices.Sort(dirs)
	return dirs, nil
}

// ImagesInDir returns the sorted paths of image files in dir. A missing
// directory yields no images.
func (l *Layout) ImagesInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read image dir %s", dir)
	}

	exts := l.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	var images []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !slices.Contains(exts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		images = append(images, filepath.Join(dir, e.Name()))
	}
	return images, nil
}

// ParseDirDate parses a day directory name as midnight in loc.
func ParseDirDate(name string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DirLayout, name, loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrInvalidImagePath, "directory %q is not a date", name)
	}
	return t, nil
}

// ParseFileTime returns the time of day encoded at the start of an image
// file name.
func ParseFileTime(name string) (time.Duration, error) {
	if len(name) < len(FileTimeLayout) {
		return 0, errors.Wrapf(errors.ErrInvalidImagePath, "file name %q has no time prefix", name)
	}

	t, err := time.Parse(FileTimeLayout, name[:len(FileTimeLayout)])
	if err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidImagePath, "file name %q has no time prefix", name)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// Origin is what an image path says about the image.
type Origin struct {
	Date    string    // capture date, YYYY-MM-DD
	Camera  string    // camera short name
	Created time.Time // capture time in the parse location

	// TimeOfDay is the capture time of day as written in the file name. It
	// differs from Created's wall clock for times skipped by a DST change.
	TimeOfDay time.Duration
}

// Minute returns the minute of the day the file name was captured in.
func (o Origin) Minute() int {
	return int(o.TimeOfDay / time.Minute)
}

// ParseImagePath extracts the capture date, camera and capture time from
// <root>/<YYYY-MM-DD>/<camera>/<HH-MM-SS...>.
func ParseImagePath(path string, loc *time.Location) (Origin, error) {
	dir, file := filepath.Split(filepath.Clean(path))
	dir = filepath.Clean(dir)
	camera := filepath.Base(dir)
	date := filepath.Base(filepath.Dir(dir))

	if file == "" || camera == "." || camera == string(filepath.Separator) {
		return Origin{}, errors.Wrapf(errors.ErrInvalidImagePath, "%s", path)
	}

	day, err := ParseDirDate(date, loc)
	if err != nil {
		return Origin{}, errors.Wrapf(err, "%s", path)
	}
	tod, err := ParseFileTime(file)
	if err != nil {
		return Origin{}, errors.Wrapf(err, "%s", path)
	}

	created := time.Date(day.Year(), day.Month(), day.Day(),
		int(tod/time.Hour), int(tod%time.Hour/time.Minute), int(tod%time.Minute/time.Second),
		0, loc)
	return Origin{Date: date, Camera: camera, Created: created, TimeOfDay: tod}, nil
}
