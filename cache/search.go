package cache

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/richinex/docqa/model"
)

// DefaultSearchTTL is how long a cached strategy result stays fresh.
const DefaultSearchTTL = 300 * time.Second

// Signature returns the canonical key for a strategy kind and keyword set.
// Keyword order and duplicates do not matter. Each keyword is length
// prefixed, so keywords containing the separator cannot collide.
func Signature(kind model.Kind, keywords []string) string {
	set := slices.Clone(keywords)
	slices.Sort(set)
	set = slices.Compact(set)

	var b strings.Builder
	b.WriteString(kind.String())
	for _, kw := range set {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(kw)))
		b.WriteByte(':')
		b.WriteString(kw)
	}
	return b.String()
}

type searchEntry struct {
	signature string
	stored    time.Time
	events    []model.Event
}

// SearchCache holds the event output of keyword and feature strategies
// for a limited time.
type SearchCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uint64]searchEntry
}

// NewSearchCache creates a cache. A non-positive ttl uses the default.
func NewSearchCache(ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = DefaultSearchTTL
	}
	return &SearchCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uint64]searchEntry),
	}
}

// WithClock replaces the time source (for tests).
func (c *SearchCache) WithClock(now func() time.Time) *SearchCache {
	c.now = now
	return c
}

// Lookup returns a copy of the events stored under signature if they are
// still within the TTL. Stale entries are removed.
func (c *SearchCache) Lookup(signature string) ([]model.Event, bool) {
	key := xxhash.Sum64String(signature)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.signature != signature {
		return nil, false
	}
	if c.now().Sub(entry.stored) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return model.CloneEvents(entry.events), true
}

// Store records events under signature with the current time.
func (c *SearchCache) Store(signature string, events []model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[xxhash.Sum64String(signature)] = searchEntry{
		signature: signature,
		stored:    c.now(),
		events:    model.CloneEvents(events),
	}
}

// Len returns the number of stored entries, fresh or not.
func (c *SearchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes every entry.
func (c *SearchCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]searchEntry)
}
