package core

import (
	"sync"
	"time"
)

// DefaultNameCacheTTL is how long a resolved name stays valid when no TTL is
// configured.
const DefaultNameCacheTTL = 5 * time.Minute

type nameEntry struct {
	name    string
	expires time.Time
}

// NameCache maps record IDs to display names for a bounded time. It is safe
// for concurrent use and is owned by whoever constructs it; there is no
// process-wide instance.
type NameCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]nameEntry
	now     func() time.Time
}

// NewNameCache creates an empty cache. ttl <= 0 selects DefaultNameCacheTTL.
func NewNameCache(ttl time.Duration) *NameCache {
	if ttl <= 0 {
		ttl = DefaultNameCacheTTL
	}
	return &NameCache{ttl: ttl, entries: make(map[int64]nameEntry), now: time.Now}
}

// Get returns the cached name for id if present and not expired.
func (c *NameCache) Get(id int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, id)
		return "", false
	}
	return e.name, true
}

// Put stores name for id.
func (c *NameCache) Put(id int64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = nameEntry{name: name, expires: c.now().Add(c.ttl)}
}

// Missing returns the IDs from ids that have no valid entry, in input order
// and without duplicates.
func (c *NameCache) Missing(ids []int64) []int64 {
	var out []int64
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := c.Get(id); !ok {
			out = append(out, id)
		}
	}
	return out
}

// Invalidate drops every entry.
func (c *NameCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]nameEntry)
}

// Len returns the number of stored entries, expired ones included.
func (c *NameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
