package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// evictTarget is the fraction of the budget an eviction pass shrinks to.
const evictTarget = 0.9

// CacheStats holds data cache statistics.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int64
	SizeBytes int64
}

// FileCache keeps the data files under a cache directory within a byte
// budget. Least-used files are evicted first, least recently used among
// equals. Pinned files are never evicted.
type FileCache struct {
	dir      string
	maxBytes int64

	mu      sync.Mutex
	entries map[string]*cacheEntry
	stats   CacheStats
}

type cacheEntry struct {
	path        string
	sizeBytes   int64
	lastAccess  time.Time
	accessCount int64
	pins        int
}

// NewFileCache indexes the files already under dir.
func NewFileCache(dir string, maxBytes int64) (*FileCache, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("maxBytes must be positive, got %d", maxBytes)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	c := &FileCache{dir: dir, maxBytes: maxBytes, entries: make(map[string]*cacheEntry)}
	if err := c.scan(); err != nil {
		return nil, fmt.Errorf("failed to scan cache dir: %w", err)
	}
	return c, nil
}

// scan rebuilds the index from the files under dir, using their modification
// time as last access.
func (c *FileCache) scan() error {
	return filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}
		c.entries[filepath.ToSlash(rel)] = &cacheEntry{
			path:       path,
			sizeBytes:  info.Size(),
			lastAccess: info.ModTime(),
		}
		c.stats.SizeBytes += info.Size()
		c.stats.Entries++
		return nil
	})
}

// Get returns the cached path of key and records the access.
func (c *FileCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return "", false
	}
	c.stats.Hits++
	e.lastAccess = time.Now()
	e.accessCount++
	return e.path, true
}

// Add indexes a file written at path for key and evicts if the budget is
// exceeded. The new entry starts pinned once; the caller releases it with
// Unpin.
func (c *FileCache) Add(key, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		c.stats.SizeBytes -= old.sizeBytes
		c.stats.Entries--
	}
	c.entries[key] = &cacheEntry{
		path:        path,
		sizeBytes:   info.Size(),
		lastAccess:  time.Now(),
		accessCount: 1,
		pins:        1,
	}
	c.stats.SizeBytes += info.Size()
	c.stats.Entries++
	if c.stats.SizeBytes > c.maxBytes {
		c.evictLocked()
	}
	return nil
}

// Pin protects the given keys from eviction until Unpin.
func (c *FileCache) Pin(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if e, ok := c.entries[k]; ok {
			e.pins++
		}
	}
}

// Unpin releases a Pin.
func (c *FileCache) Unpin(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if e, ok := c.entries[k]; ok && e.pins > 0 {
			e.pins--
		}
	}
}

// evictLocked removes unpinned files until the cache is under evictTarget of
// its budget.
func (c *FileCache) evictLocked() {
	target := int64(float64(c.maxBytes) * evictTarget)

	type candidate struct {
		key   string
		entry *cacheEntry
	}
	var candidates []candidate
	for k, e := range c.entries {
		if e.pins == 0 {
			candidates = append(candidates, candidate{k, e})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].entry, candidates[j].entry
		if a.accessCount != b.accessCount {
			return a.accessCount < b.accessCount
		}
		return a.lastAccess.Before(b.lastAccess)
	})

	for _, cand := range candidates {
		if c.stats.SizeBytes <= target {
			break
		}
		if err := os.Remove(cand.entry.path); err != nil && !os.IsNotExist(err) {
			log.WithField("key", cand.key).Warnf("cache: eviction failed: %v", err)
			continue
		}
		delete(c.entries, cand.key)
		c.stats.SizeBytes -= cand.entry.sizeBytes
		c.stats.Entries--
		c.stats.Evictions++
		log.WithField("key", cand.key).WithField("bytes", cand.entry.sizeBytes).Debug("cache: evicted")
	}
}

// Stats returns a snapshot of the cache statistics.
func (c *FileCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Capacity returns the cache budget in bytes.
func (c *FileCache) Capacity() int64 {
	return c.maxBytes
}
