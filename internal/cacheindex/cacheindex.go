package cacheindex

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"chatmedia/internal/logging"
	"chatmedia/internal/mediakind"
	"chatmedia/internal/metrics"
)

// Entry maps a content identifier to its resolved output file.
type Entry struct {
	Key  string
	Kind mediakind.Kind
	Path string
}

// kindDirs maps output subdirectories back to attachment kinds for the
// index scan.
var kindDirs = map[string]mediakind.Kind{
	"images": mediakind.KindImage,
	"voices": mediakind.KindVoice,
	"emojis": mediakind.KindSticker,
}

// Index answers "has this attachment already been produced" from an
// in-memory map, lazily built by scanning the output cache root once.
// Concurrent first callers share a single in-flight scan.
type Index struct {
	root string

	mu      sync.RWMutex
	built   bool
	entries map[string]Entry

	scanGroup singleflight.Group
}

// New creates an index over the output cache root. No scan happens
// until the first Lookup.
func New(root string) *Index {
	return &Index{
		root:    root,
		entries: make(map[string]Entry),
	}
}

// Lookup returns the cache entry for key, building the index on first
// use.
func (i *Index) Lookup(key string) (Entry, bool, error) {
	if err := i.ensureBuilt(); err != nil {
		return Entry{}, false, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.entries[key]
	return e, ok, nil
}

// Record inserts an entry if absent. Recording an existing key is a
// no-op so concurrent resolutions of the same key stay idempotent.
func (i *Index) Record(e Entry) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.entries[e.Key]; !exists {
		i.entries[e.Key] = e
	}
}

// Invalidate removes a key after its backing file disappeared or
// failed re-validation.
func (i *Index) Invalidate(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.entries[key]; exists {
		delete(i.entries, key)
		metrics.CacheInvalidations.Inc()
	}
}

// Len returns the number of indexed entries (zero before first Lookup).
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// ensureBuilt performs the lazy one-time scan. The singleflight group
// collapses concurrent first callers onto one directory walk.
func (i *Index) ensureBuilt() error {
	i.mu.RLock()
	built := i.built
	i.mu.RUnlock()
	if built {
		return nil
	}

	_, err, _ := i.scanGroup.Do("scan", func() (interface{}, error) {
		i.mu.RLock()
		done := i.built
		i.mu.RUnlock()
		if done {
			return nil, nil
		}
		return nil, i.scan()
	})
	return err
}

func (i *Index) scan() error {
	start := time.Now()
	entries := make(map[string]Entry)

	for dir, kind := range kindDirs {
		root := filepath.Join(i.root, dir)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// A kind directory that does not exist yet is normal.
				return fs.SkipAll
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			name := d.Name()
			key := strings.TrimSuffix(name, filepath.Ext(name))
			if key == "" {
				return nil
			}
			if _, exists := entries[key]; !exists {
				entries[key] = Entry{Key: key, Kind: kind, Path: path}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("cache index scan of %s: %w", root, err)
		}
	}

	i.mu.Lock()
	i.entries = entries
	i.built = true
	i.mu.Unlock()

	elapsed := time.Since(start)
	metrics.CacheScanDuration.Set(elapsed.Seconds())
	logging.Info("Cache index built: %d entries in %v", len(entries), elapsed)
	return nil
}
