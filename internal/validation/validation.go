// Package validation provides centralized input validation for camstats.
package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names used in paths.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// CameraNameRules returns the rules for camera short names. A short name is
// a directory name in the image tree and part of a table file name.
func CameraNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    64,
		AllowDots:    false,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateCameraName validates a camera short name.
func ValidateCameraName(name string) error {
	return ValidateName(name, CameraNameRules())
}

// =============================================================================
// Date Validation
// =============================================================================

// DateLayout is the calendar date format of table keys and day directories.
const DateLayout = "2006-01-02"

// ValidateDate checks that date is a real calendar date in YYYY-MM-DD form.
func ValidateDate(date string) error {
	if date == "" {
		return fmt.Errorf("date cannot be empty")
	}
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}
	if t.Format(DateLayout) != date {
		return fmt.Errorf("invalid date %q: not in canonical form", date)
	}
	return nil
}

// ValidateDateRange checks both dates and that from is not after to.
func ValidateDateRange(from, to string) error {
	if err := ValidateDate(from); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if err := ValidateDate(to); err != nil {
		return fmt.Errorf("to: %w", err)
	}
	if from > to {
		return fmt.Errorf("date range reversed: %s is after %s", from, to)
	}
	return nil
}

// =============================================================================
// Table References
// =============================================================================

// TableRef is a parsed "date[/camera]" reference. An empty Camera refers to
// the server table.
type TableRef struct {
	Date   string
	Camera string
}

// ParseTableRef parses a "date" or "date/camera" reference.
func ParseTableRef(ref string) (*TableRef, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty table reference")
	}

	date, camera, hasCamera := strings.Cut(ref, "/")
	date = strings.TrimSpace(date)
	camera = strings.TrimSpace(camera)

	if err := ValidateDate(date); err != nil {
		return nil, fmt.Errorf("invalid table reference %q: %w", ref, err)
	}
	if hasCamera {
		if err := ValidateCameraName(camera); err != nil {
			return nil, fmt.Errorf("invalid camera in table reference %q: %w", ref, err)
		}
	}

	return &TableRef{Date: date, Camera: camera}, nil
}

// String returns the string representation of the table reference.
func (r *TableRef) String() string {
	if r.Camera == "" {
		return r.Date
	}
	return r.Date + "/" + r.Camera
}
