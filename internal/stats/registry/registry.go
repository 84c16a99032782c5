// Package registry keeps the in-memory day tables and writes dirty ones to
// the stats directory.
//
// Locking: the registry mutex guards the key map and is held while an entry
// is created (including hydration from disk) and while the entry's own mutex
// is taken. It is never taken while an entry mutex is held, and it is not
// held while a table is flushed.
package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/logging"
	"github.com/xtxerr/camstats/internal/stats/codec"
	"github.com/xtxerr/camstats/internal/stats/types"
)

// CorruptSuffix is appended to a table file that failed to load when
// WithResetCorrupt is enabled.
const CorruptSuffix = ".corrupt"

type entry struct {
	mu    sync.Mutex
	key   types.Key
	table *types.Table
	dirty bool
}

// Registry maps table keys to tables. Entries live for the lifetime of the
// registry.
type Registry struct {
	dir          string
	replacer     Replacer
	resetCorrupt bool

	mu      sync.Mutex
	entries map[types.Key]*entry

	hydrations    atomic.Int64
	resets        atomic.Int64
	flushes       atomic.Int64
	flushErrors   atomic.Int64
	lastFlushSize atomic.Int64

	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithResetCorrupt makes Acquire rename a malformed table file to
// <name>.corrupt and start from an empty table instead of failing.
func WithResetCorrupt(enabled bool) Option {
	return func(r *Registry) {
		r.resetCorrupt = enabled
	}
}

// New creates a registry persisting into dir. A nil replacer means
// AtomicReplace.
func New(dir string, replacer Replacer, opts ...Option) *Registry {
	if replacer == nil {
		replacer = AtomicReplace{}
	}

	r := &Registry{
		dir:      dir,
		replacer: replacer,
		entries:  make(map[types.Key]*entry),
		logger:   logging.Component("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the persistence directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Path returns the canonical file path of key.
func (r *Registry) Path(key types.Key) string {
	return filepath.Join(r.dir, key.FileName())
}

// Acquire returns the table for key with its lock held. The caller must call
// release exactly once when done. If markDirty is set the table is written at
// the next FlushDirty.
//
// The first Acquire of a key loads the table from disk; a missing file gives
// an all-unset table. If the file is malformed the error is returned and no
// entry is created, unless WithResetCorrupt is set.
func (r *Registry) Acquire(key types.Key, markDirty bool) (table *types.Table, release func(), err error) {
	if err := key.Validate(); err != nil {
		return nil, nil, errors.Wrapf(errors.ErrInvalidKey, "%s: %v", key, err)
	}

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		t, err := r.hydrate(key)
		if err != nil {
			r.mu.Unlock()
			return nil, nil, err
		}
		e = &entry{key: key, table: t}
		r.entries[key] = e
	}

	e.mu.Lock()
	if markDirty {
		e.dirty = true
	}
	r.mu.Unlock()

	return e.table, e.mu.Unlock, nil
}

// hydrate must be called with r.mu held.
func (r *Registry) hydrate(key types.Key) (*types.Table, error) {
	path := r.Path(key)

	t, err := codec.ReadFile(path, key.RowLen())
	switch {
	case err == nil:
		r.hydrations.Add(1)
		r.logger.Debug("table loaded", "date", key.Date, "camera", key.Camera, "path", path)
		return t, nil

	case errors.Is(err, os.ErrNotExist):
		return types.NewTableFor(key), nil

	case errors.IsMalformedTable(err) && r.resetCorrupt:
		corrupt := path + CorruptSuffix
		if rerr := os.Rename(path, corrupt); rerr != nil {
			return nil, errors.Join(err, errors.Wrapf(rerr, "set aside %s", path))
		}
		r.resets.Add(1)
		r.logger.Warn("malformed table set aside",
			"path", path,
			"moved_to", corrupt,
			"error", err)
		return types.NewTableFor(key), nil

	default:
		r.logger.Error("failed to load table", "path", path, "error", err)
		return nil, err
	}
}

// FlushDirty writes every dirty table to <dir>/<name>.temp, syncs it and
// replaces the canonical file. It returns the number of tables written. A
// failed table stays dirty and its error is joined into the result; the
// remaining tables are still written.
func (r *Registry) FlushDirty() (int, error) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	slices.SortFunc(entries, func(a, b *entry) int {
		return compareKeys(a.key, b.key)
	})

	var errs []error
	written := 0

	for _, e := range entries {
		e.mu.Lock()
		if !e.dirty {
			e.mu.Unlock()
			continue
		}

		if err := r.write(e.key, e.table); err != nil {
			r.flushErrors.Add(1)
			r.logger.Error("failed to write table",
				"date", e.key.Date,
				"camera", e.key.Camera,
				"error", err)
			errs = append(errs, err)
		} else {
			e.dirty = false
			written++
		}
		e.mu.Unlock()
	}

	r.flushes.Add(int64(written))
	r.lastFlushSize.Store(int64(written))
	return written, errors.Join(errs...)
}

func (r *Registry) write(key types.Key, t *types.Table) error {
	dst := r.Path(key)
	tmp := dst + types.TempSuffix

	if err := codec.WriteFile(tmp, key, t); err != nil {
		return err
	}
	return r.replacer.Replace(tmp, dst)
}

// Keys returns the keys of all entries in sorted order.
func (r *Registry) Keys() []types.Key {
	r.mu.Lock()
	keys := make([]types.Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	slices.SortFunc(keys, compareKeys)
	return keys
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Dirty returns the number of entries waiting to be flushed.
func (r *Registry) Dirty() int {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.dirty {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Stats contains registry counters.
type Stats struct {
	Entries       int
	Hydrations    int64
	CorruptResets int64
	TablesFlushed int64
	FlushErrors   int64
	LastFlushSize int64
}

// Stats returns current counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Entries:       r.Len(),
		Hydrations:    r.hydrations.Load(),
		CorruptResets: r.resets.Load(),
		TablesFlushed: r.flushes.Load(),
		FlushErrors:   r.flushErrors.Load(),
		LastFlushSize: r.lastFlushSize.Load(),
	}
}

func compareKeys(a, b types.Key) int {
	if c := strings.Compare(a.Date, b.Date); c != 0 {
		return c
	}
	return strings.Compare(a.Camera, b.Camera)
}
