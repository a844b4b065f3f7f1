// Package blob stores artwork bytes by content hash for the lifetime of the
// history. Files are write-once and deduplicated; deciding when a blob is no
// longer needed is the caller's job.
package blob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wow-signal-dev/metadata-remote-sub000/internal/integrity"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/fsutil"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/logging"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/model"
)

const (
	blobExt       = ".blob"
	tempDirPrefix = "metadata_remote_history_"
)

var errClosed = errors.New("blob cache closed")

type entry struct {
	size     int64
	pins     int
	pinnedAt time.Time
}

// Entry describes one stored blob.
type Entry struct {
	Hash     model.HashValue
	Size     int64
	Pins     int
	PinnedAt time.Time
}

// Cache is a directory of <hash>.blob files.
//
// Put pins the blob it stores. A pin keeps Release from deleting the file
// between the moment an action's artwork is stored and the moment the
// action is recorded; the log drops it with Unpin once it holds its own
// reference.
type Cache struct {
	mu      sync.Mutex
	dir     string
	owned   bool
	closed  bool
	entries map[model.HashValue]*entry
	bytes   int64
	now     func() time.Time
	logger  *logging.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock overrides time.Now for pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open prepares a cache in dir. An empty dir creates a private temporary
// directory that Close removes. Blobs already present in dir are indexed
// unpinned so that garbage collection can reclaim them.
func Open(dir string, opts ...Option) (*Cache, error) {
	c := &Cache{
		entries: make(map[model.HashValue]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrGlobal(c.logger)

	if dir == "" {
		tmp, err := os.MkdirTemp("", tempDirPrefix)
		if err != nil {
			return nil, fmt.Errorf("create blob dir: %w", err)
		}
		c.dir = tmp
		c.owned = true
		c.logger.Info("created blob directory", map[string]any{"dir": tmp})
		return c, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	c.dir = dir
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) index() error {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read blob dir: %w", err)
	}
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, blobExt) {
			continue
		}
		h := model.HashValue(strings.TrimSuffix(name, blobExt))
		if !integrity.ValidHash(h) {
			continue
		}
		path := filepath.Join(c.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if integrity.HashBytes(data) != h {
			c.logger.Warn("removing corrupt blob", map[string]any{"hash": string(h)})
			if err := os.Remove(path); err != nil {
				c.logger.Warn("remove corrupt blob", map[string]any{"hash": string(h), "error": err.Error()})
			}
			continue
		}
		c.entries[h] = &entry{size: int64(len(data))}
		c.bytes += int64(len(data))
	}
	if n := len(c.entries); n > 0 {
		c.logger.Warn("found stale blobs", map[string]any{"dir": c.dir, "count": n})
	}
	return nil
}

// Dir returns the storage directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) path(h model.HashValue) string {
	return filepath.Join(c.dir, string(h)+blobExt)
}

// Put stores data and returns its hash. Storing bytes that are already
// present writes nothing. Every Put adds one pin to the blob.
func (c *Cache) Put(data []byte) (model.HashValue, error) {
	if len(data) == 0 {
		return "", errclass.ErrInvalidAction.WithMessage("artwork data must not be empty")
	}
	h := integrity.HashBytes(data)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", errClosed
	}

	e, ok := c.entries[h]
	if !ok {
		created, err := fsutil.WriteOnce(c.path(h), data, 0644)
		if err == nil && !created {
			// An unindexed file under this name was not written by us.
			if existing, rerr := os.ReadFile(c.path(h)); rerr != nil || integrity.HashBytes(existing) != h {
				err = fsutil.AtomicWrite(c.path(h), data, 0644)
			}
		}
		if err != nil {
			return "", fmt.Errorf("store blob %s: %w", h, err)
		}
		e = &entry{size: int64(len(data))}
		c.entries[h] = e
		c.bytes += e.size
		c.logger.Debug("stored blob", map[string]any{"hash": string(h), "size": len(data), "created": created})
	}
	if e.pins == 0 {
		e.pinnedAt = c.now()
	}
	e.pins++
	return h, nil
}

// Unpin drops one pin taken by Put.
func (c *Cache) Unpin(h model.HashValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[h]; ok && e.pins > 0 {
		e.pins--
	}
}

// Get returns the bytes stored under h. A file that is gone or no longer
// matches its hash is reported as ErrBlobMissing.
func (c *Cache) Get(h model.HashValue) ([]byte, error) {
	data, err := os.ReadFile(c.path(h))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errclass.ErrBlobMissing.WithMessagef("blob %s not found", h)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, err)
	}
	if integrity.HashBytes(data) != h {
		return nil, errclass.ErrBlobMissing.WithMessagef("blob %s is corrupt", h)
	}
	return data, nil
}

// Has reports whether h is stored.
func (c *Cache) Has(h model.HashValue) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[h]
	return ok
}

// Len returns the number of stored blobs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the total stored bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Entries returns every stored blob ordered by hash.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for h, e := range c.entries {
		out = append(out, Entry{Hash: h, Size: e.size, Pins: e.pins, PinnedAt: e.pinnedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// Release deletes h unless it is pinned. It reports whether the file was
// removed.
func (c *Cache) Release(h model.HashValue) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h]
	if !ok || e.pins > 0 {
		return false, nil
	}
	return true, c.removeLocked(h, e)
}

// Remove deletes h regardless of pins.
func (c *Cache) Remove(h model.HashValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h]
	if !ok {
		return nil
	}
	return c.removeLocked(h, e)
}

func (c *Cache) removeLocked(h model.HashValue, e *entry) error {
	delete(c.entries, h)
	c.bytes -= e.size
	if _, err := fsutil.RemoveIfExists(c.path(h)); err != nil {
		return fmt.Errorf("remove blob %s: %w", h, err)
	}
	return nil
}

// Wipe removes every blob, pinned or not.
func (c *Cache) Wipe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wipeLocked()
}

func (c *Cache) wipeLocked() error {
	var errs []error
	for h, e := range c.entries {
		if err := c.removeLocked(h, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close wipes the cache and removes the directory if Open created it.
// Further Puts fail.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.wipeLocked()
	if c.owned {
		if rmErr := os.RemoveAll(c.dir); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("remove blob dir: %w", rmErr))
		} else {
			c.logger.Info("removed blob directory", map[string]any{"dir": c.dir})
		}
	}
	return err
}
