package registry

import (
	"os"
	"runtime"

	"github.com/xtxerr/camstats/internal/errors"
)

// Replace modes accepted by ReplacerFor.
const (
	ReplaceAtomic      = "atomic"
	ReplaceRemoveFirst = "remove_first"
	ReplaceAuto        = "auto"
)

// Replacer moves a fully written temporary file over the canonical file.
type Replacer interface {
	Replace(tmp, dst string) error
}

// ReplacerFunc adapts a function to the Replacer interface.
type ReplacerFunc func(tmp, dst string) error

// Replace calls f(tmp, dst).
func (f ReplacerFunc) Replace(tmp, dst string) error { return f(tmp, dst) }

// AtomicReplace renames tmp over dst in one step. Readers see either the old
// or the new file.
type AtomicReplace struct{}

// Replace implements Replacer.
func (AtomicReplace) Replace(tmp, dst string) error {
	return errors.Wrapf(os.Rename(tmp, dst), "rename %s", tmp)
}

// RemoveThenRename removes dst before renaming tmp into place, for
// filesystems where rename does not overwrite. dst is briefly absent.
type RemoveThenRename struct{}

// Replace implements Replacer.
func (RemoveThenRename) Replace(tmp, dst string) error {
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "remove %s", dst)
	}
	return errors.Wrapf(os.Rename(tmp, dst), "rename %s", tmp)
}

// ReplacerFor returns the Replacer for a configured mode. "auto" picks
// RemoveThenRename on Windows and AtomicReplace elsewhere.
func ReplacerFor(mode string) (Replacer, error) {
	switch mode {
	case ReplaceAtomic, "":
		return AtomicReplace{}, nil
	case ReplaceRemoveFirst:
		return RemoveThenRename{}, nil
	case ReplaceAuto:
		if runtime.GOOS == "windows" {
			return RemoveThenRename{}, nil
		}
		return AtomicReplace{}, nil
	default:
		return nil, errors.NewValidation("storage.replace_mode", "unknown mode "+mode)
	}
}
