// Package cache provides the per-session result caches.
//
// Information Hiding:
// - Insertion ordering and oldest-first eviction hidden
// - Path normalization hidden
// - TTL expiry and signature hashing hidden
package cache

import (
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// DefaultMaxEntries bounds the number of cached files.
	DefaultMaxEntries = 50
	// DefaultMaxEntryBytes bounds the stored content of one file.
	DefaultMaxEntryBytes = 10000
)

// Entry is one cached file.
type Entry struct {
	Path    string
	Content string
}

// ContentCache maps normalized file paths to capped content.
// When full, the oldest inserted path is evicted first.
type ContentCache struct {
	mu            sync.RWMutex
	entries       *orderedmap.OrderedMap[string, string]
	maxEntries    int
	maxEntryBytes int
	evictions     int
}

// NewContentCache creates a cache. Non-positive limits use the defaults.
func NewContentCache(maxEntries, maxEntryBytes int) *ContentCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxEntryBytes <= 0 {
		maxEntryBytes = DefaultMaxEntryBytes
	}
	return &ContentCache{
		entries:       orderedmap.New[string, string](),
		maxEntries:    maxEntries,
		maxEntryBytes: maxEntryBytes,
	}
}

// NormalizePath returns the cache key for path: cleaned, slash-separated,
// and relative paths prefixed with "./" the way find and grep print them.
func NormalizePath(path string) string {
	p := filepath.ToSlash(filepath.Clean(strings.TrimSpace(path)))
	if p == "." || strings.HasPrefix(p, "/") || strings.HasPrefix(p, "../") {
		return p
	}
	return "./" + p
}

// Put stores content for path, truncated to the entry cap. Re-putting an
// existing path replaces its content without changing its age.
func (c *ContentCache) Put(path, content string) {
	key := NormalizePath(path)
	content = truncateUTF8(content, c.maxEntryBytes)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, present := c.entries.Get(key); present {
		c.entries.Set(key, content)
		return
	}
	for c.entries.Len() >= c.maxEntries {
		oldest := c.entries.Oldest()
		if oldest == nil {
			break
		}
		c.entries.Delete(oldest.Key)
		c.evictions++
	}
	c.entries.Set(key, content)
}

// Get returns the cached content for path.
func (c *ContentCache) Get(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Get(NormalizePath(path))
}

// Has reports whether path is cached.
func (c *ContentCache) Has(path string) bool {
	_, ok := c.Get(path)
	return ok
}

// Len returns the number of cached files.
func (c *ContentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Len()
}

// Evictions returns how many entries were evicted for capacity.
func (c *ContentCache) Evictions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.evictions
}

// Entries returns a snapshot of all entries, oldest first.
func (c *ContentCache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Entry{Path: pair.Key, Content: pair.Value})
	}
	return out
}

// Clear removes every entry.
func (c *ContentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.New[string, string]()
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
