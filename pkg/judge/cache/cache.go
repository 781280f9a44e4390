// Package cache implements the artifact cache (C2): a TTL-bound,
// handle-addressed content store used to pass files — sources, compiled
// binaries, inputs, reference outputs, checkers — between upload and
// evaluation tasks.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type namespaces an artifact; namespaces only partition on-disk
// layout, the handle alone is enough to locate content.
type Type string

const (
	TypeSource  Type = "source"
	TypeBinary  Type = "binary"
	TypeInput   Type = "input"
	TypeOutput  Type = "output"
	TypeChecker Type = "checker"
)

// ErrNotFound is returned by Get/Refresh when a handle is unknown,
// expired, or its backing file has vanished.
var ErrNotFound = errors.New("cache: artifact not found or expired")

// Metadata carries the information the cache keeps about an artifact
// beyond its bytes.
type Metadata struct {
	Filename string
	Size     int64
}

// Entry is a live view of a cached artifact returned by Get.
type Entry struct {
	ID        string
	Type      Type
	Path      string
	Metadata  Metadata
	CreatedAt time.Time
	ExpiresAt time.Time
}

type record struct {
	typ       Type
	path      string
	meta      Metadata
	createdAt time.Time
	expiresAt time.Time
}

// Stats summarizes the live contents of the cache.
type Stats struct {
	Count      int
	TotalBytes int64
}

// Config controls cache construction.
type Config struct {
	Root string
	TTL  time.Duration
	// SweepInterval defaults to TTL/5 when zero, matching spec.md's
	// "sweeper cadence must be <= TTL/5" requirement.
	SweepInterval time.Duration
	// Watch enables the fsnotify-based self-healing watch described in
	// SPEC_FULL.md §4.2a. Failure to start the watcher is non-fatal;
	// the cache still self-heals on Get and via the periodic sweep.
	Watch bool
}

// Cache is the artifact cache. The zero value is not usable; construct
// with New.
type Cache struct {
	root string
	ttl  time.Duration

	mu    sync.RWMutex
	index map[string]*record

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}

	watcher *watch
}

const defaultTTL = 5 * time.Minute

// New creates a cache rooted at cfg.Root, creating the directory if
// needed, and starts its background sweeper (and, if cfg.Watch is set,
// its fsnotify watch).
func New(cfg Config) (*Cache, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("cache: root directory required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.TTL / 5
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create root: %w", err)
	}

	c := &Cache{
		root:          cfg.Root,
		ttl:           cfg.TTL,
		index:         make(map[string]*record),
		sweepInterval: cfg.SweepInterval,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}

	go c.sweepLoop()

	if cfg.Watch {
		if w, err := newWatch(c); err == nil {
			c.watcher = w
		}
	}

	return c, nil
}

// Close stops the background sweeper and watcher. The on-disk cache
// root is left in place; it is treated as scratch space owned by the
// process, per spec.md's Non-goals.
func (c *Cache) Close() {
	close(c.stopSweep)
	<-c.sweepDone
	if c.watcher != nil {
		c.watcher.close()
	}
}

// Put writes bytes under a fresh handle of the given type and returns
// that handle. The file is written before the index entry becomes
// visible (write-then-publish).
func (c *Cache) Put(typ Type, data []byte, meta Metadata) (string, error) {
	id := uuid.NewString()
	dir := filepath.Join(c.root, string(typ))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cache: create namespace dir: %w", err)
	}
	path := filepath.Join(dir, id)

	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("cache: write artifact: %w", err)
	}

	meta.Size = int64(len(data))
	now := time.Now()

	c.mu.Lock()
	c.index[id] = &record{
		typ:       typ,
		path:      path,
		meta:      meta,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.mu.Unlock()

	if c.watcher != nil {
		c.watcher.track(dir)
	}

	return id, nil
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it into place, so a reader never observes a partial write.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp-" + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Get returns the live entry for id, or ErrNotFound if the handle is
// unknown, expired, or the backing file is missing. A missing file
// removes the index entry (self-healing).
func (c *Cache) Get(id string) (*Entry, error) {
	c.mu.RLock()
	rec, ok := c.index[id]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(rec.expiresAt) {
		c.Delete(id)
		return nil, ErrNotFound
	}
	if _, err := os.Stat(rec.path); err != nil {
		c.mu.Lock()
		delete(c.index, id)
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	return &Entry{
		ID:        id,
		Type:      rec.typ,
		Path:      rec.path,
		Metadata:  rec.meta,
		CreatedAt: rec.createdAt,
		ExpiresAt: rec.expiresAt,
	}, nil
}

// ReadAll is a convenience wrapper that resolves id and reads its
// entire contents.
func (c *Cache) ReadAll(id string) ([]byte, *Entry, error) {
	e, err := c.Get(id)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: read artifact: %w", err)
	}
	return data, e, nil
}

// Open resolves id and opens its backing file for streaming reads
// (used by the /cache/:id download route).
func (c *Cache) Open(id string) (*os.File, *Entry, error) {
	e, err := c.Get(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(e.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: open artifact: %w", err)
	}
	return f, e, nil
}

// Has reports liveness without touching the filesystem.
func (c *Cache) Has(id string) bool {
	c.mu.RLock()
	rec, ok := c.index[id]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return time.Now().Before(rec.expiresAt)
}

// Delete removes the file (best effort) and the index entry.
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	rec, ok := c.index[id]
	delete(c.index, id)
	c.mu.Unlock()
	if ok {
		os.Remove(rec.path)
	}
}

// Refresh extends a live handle's TTL to now+TTL and reports whether it
// was live. It leaves the bytes untouched.
func (c *Cache) Refresh(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.index[id]
	if !ok || time.Now().After(rec.expiresAt) {
		return false
	}
	rec.expiresAt = time.Now().Add(c.ttl)
	return true
}

// Stats counts only live entries.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	var s Stats
	for _, rec := range c.index {
		if now.After(rec.expiresAt) {
			continue
		}
		s.Count++
		s.TotalBytes += rec.meta.Size
	}
	return s
}

func (c *Cache) sweepLoop() {
	defer close(c.sweepDone)
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweepOnce()
		}
	}
}

// sweepOnce removes expired entries. The scan for expired ids holds the
// read lock for one full pass over the index, so Get proceeds during the
// scan but Put waits until it ends; each expired entry is then removed
// under its own short write lock via Delete.
func (c *Cache) sweepOnce() {
	now := time.Now()
	c.mu.RLock()
	expired := make([]string, 0)
	for id, rec := range c.index {
		if now.After(rec.expiresAt) {
			expired = append(expired, id)
		}
	}
	c.mu.RUnlock()

	for _, id := range expired {
		c.Delete(id)
	}
}
