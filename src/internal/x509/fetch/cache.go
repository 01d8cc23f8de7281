// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509fetch

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// CRLCacheEntry represents a cached CRL with metadata
type CRLCacheEntry struct {
	Data       []byte    // Raw CRL data
	FetchedAt  time.Time // When this CRL was fetched
	NextUpdate time.Time // When this CRL expires (from CRL.NextUpdate)
	URL        string    // Source URL for debugging
}

// fresh reports whether the entry may still be served at now.
func (e *CRLCacheEntry) fresh(now time.Time, maxAge time.Duration) bool {
	return e.NextUpdate.After(now) && e.FetchedAt.After(now.Add(-maxAge))
}

// CRLCacheConfig holds configuration for the CRL cache
type CRLCacheConfig struct {
	MaxSize int           // Maximum number of CRLs to cache (0 = unlimited, but not recommended)
	MaxAge  time.Duration // Entries older than this are refetched even before NextUpdate (default: 24 hours)
}

// DefaultCRLCacheConfig is used for zero fields of a CRLCacheConfig.
var DefaultCRLCacheConfig = CRLCacheConfig{
	MaxSize: 100,
	MaxAge:  24 * time.Hour,
}

// CRLCacheStats tracks cache performance and usage
type CRLCacheStats struct {
	Size        int   // Current number of cached CRLs
	Hits        int64 // Number of cache hits
	Misses      int64 // Number of cache misses
	Evictions   int64 // Number of LRU evictions
	Cleanups    int64 // Number of expired CRL cleanups
	TotalMemory int64 // Approximate memory usage in bytes
}

// CRLCache is an LRU cache of downloaded CRLs keyed by distribution point URL.
// An entry is served until the CRL's NextUpdate passes or MaxAge elapses.
//
// Thread Safety: Safe for concurrent use.
type CRLCache struct {
	mu      sync.Mutex
	cfg     CRLCacheConfig
	entries map[string]*CRLCacheEntry
	order   []string // least recently used first
	stats   CRLCacheStats
	now     func() time.Time
}

// NewCRLCache creates an empty cache.
func NewCRLCache(cfg CRLCacheConfig) *CRLCache {
	if cfg.MaxSize < 0 {
		cfg.MaxSize = 0
	}
	if cfg.MaxSize == 0 && cfg.MaxAge == 0 {
		cfg.MaxSize = DefaultCRLCacheConfig.MaxSize
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultCRLCacheConfig.MaxAge
	}
	return &CRLCache{
		cfg:     cfg,
		entries: make(map[string]*CRLCacheEntry),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (c *CRLCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Config returns the effective configuration.
func (c *CRLCache) Config() CRLCacheConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Get returns a copy of a fresh CRL cached for url.
func (c *CRLCache) Get(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok || !entry.fresh(c.now(), c.cfg.MaxAge) {
		c.stats.Misses++
		recordCacheLookup(false)
		return nil, false
	}

	c.stats.Hits++
	recordCacheLookup(true)
	c.touch(url)
	return slices.Clone(entry.Data), true
}

// Set stores a copy of data for url, evicting the least recently used
// entries when the cache is full.
func (c *CRLCache) Set(url string, data []byte, nextUpdate time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[url]; !exists {
		for c.cfg.MaxSize > 0 && len(c.entries) >= c.cfg.MaxSize && len(c.order) > 0 {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
			c.stats.Evictions++
		}
	}

	c.entries[url] = &CRLCacheEntry{
		Data:       slices.Clone(data),
		FetchedAt:  c.now(),
		NextUpdate: nextUpdate,
		URL:        url,
	}
	c.touch(url)
}

// touch moves url to the most recently used position. Callers hold mu.
func (c *CRLCache) touch(url string) {
	if i := slices.Index(c.order, url); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	c.order = append(c.order, url)
}

// Cleanup removes entries whose NextUpdate passed more than an hour ago and
// returns how many were removed.
func (c *CRLCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-time.Hour)
	removed := 0
	for url, entry := range c.entries {
		if entry.NextUpdate.Before(cutoff) {
			delete(c.entries, url)
			if i := slices.Index(c.order, url); i >= 0 {
				c.order = slices.Delete(c.order, i, i+1)
			}
			removed++
		}
	}
	c.stats.Cleanups += int64(removed)
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (c *CRLCache) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// Clear drops every entry and resets the statistics.
func (c *CRLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CRLCacheEntry)
	c.order = nil
	c.stats = CRLCacheStats{}
}

// Stats returns a snapshot of the cache statistics.
func (c *CRLCache) Stats() CRLCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.entries)
	for _, entry := range c.entries {
		stats.TotalMemory += int64(len(entry.Data)) + int64(len(entry.URL)) + 24
	}
	return stats
}

// String returns a formatted summary of the cache statistics.
func (c *CRLCache) String() string {
	stats := c.Stats()
	cfg := c.Config()

	hitRate := float64(0)
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	return fmt.Sprintf("CRL Cache Statistics:\n"+
		"  Size: %d/%d entries\n"+
		"  Memory Usage: %.2f KB\n"+
		"  Hit Rate: %.1f%% (%d hits, %d misses)\n"+
		"  Evictions: %d\n"+
		"  Cleanups: %d\n"+
		"  Max Age: %v",
		stats.Size, cfg.MaxSize,
		float64(stats.TotalMemory)/1024,
		hitRate, stats.Hits, stats.Misses,
		stats.Evictions,
		stats.Cleanups,
		cfg.MaxAge)
}
