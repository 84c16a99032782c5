package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ImagePath returns <root>/<date>/<camera>/<HH-MM-SS>-<seq>.jpg for a capture
// time, formatted in the capture time's location.
func ImagePath(root, camera string, created time.Time, seq int) string {
	return filepath.Join(root,
		created.Format("2006-01-02"),
		camera,
		fmt.Sprintf("%s-%05d.jpg", created.Format("15-04-05"), seq))
}

// WriteImage creates an empty image file for a capture time and sets its
// modification time to uploaded. It returns the file path.
func WriteImage(t testing.TB, root, camera string, created, uploaded time.Time, seq int) string {
	t.Helper()

	path := ImagePath(root, camera, created, seq)
	WriteFile(t, path, nil)
	if err := os.Chtimes(path, uploaded, uploaded); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
	return path
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Touch creates empty files named names in dir.
func Touch(t testing.TB, dir string, names ...string) {
	t.Helper()

	for _, name := range names {
		WriteFile(t, filepath.Join(dir, name), nil)
	}
}

// ListDir returns the sorted file names in dir.
func ListDir(t testing.TB, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
