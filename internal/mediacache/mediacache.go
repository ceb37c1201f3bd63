// Package mediacache is the process-wide store of preloaded media.
//
// Every rendering consumer reads from it; only preload pipelines write. An entry
// is written at most once per key (first writer wins) and lives until the
// process exits or Reset is called.
package mediacache

import (
	"net/url"
	"strings"
	"sync"

	"github.com/snapetech/tribute/internal/catalog"
)

// DefaultPrefix is the URL path under which ready locators are served.
const DefaultPrefix = "/media"

// Entry is one cached asset.
type Entry struct {
	Key         catalog.Key
	Locator     string // ready locator, e.g. /media/media1
	Kind        catalog.Kind
	ContentType string
	Data        []byte
	Placeholder []byte // JPEG, images only
	Validation  string
	Path        string // spill file, if any
}

// Cache maps key to Entry. Safe for concurrent use.
type Cache struct {
	cat    *catalog.Catalog
	prefix string

	mu      sync.RWMutex
	entries map[catalog.Key]Entry
}

// New returns an empty cache backed by cat for fallbacks and kinds.
// prefix "" means DefaultPrefix.
func New(cat *catalog.Catalog, prefix string) *Cache {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	} else {
		prefix = "/" + prefix
	}
	return &Cache{
		cat:     cat,
		prefix:  prefix,
		entries: make(map[catalog.Key]Entry),
	}
}

// Catalog returns the catalog the cache falls back to.
func (c *Cache) Catalog() *catalog.Catalog { return c.cat }

// Prefix is the URL path ready locators live under, without a trailing slash.
func (c *Cache) Prefix() string { return c.prefix }

// LocatorFor returns the ready locator a cached key is served under.
func (c *Cache) LocatorFor(key catalog.Key) string {
	return c.prefix + "/" + url.PathEscape(string(key))
}

// Get returns the ready locator if key is cached, else the catalog's original
// locator. Unknown keys return "".
func (c *Cache) Get(key catalog.Key) string {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e.Locator
	}
	loc, _ := c.cat.Locator(key)
	return loc
}

// KindFor returns the statically inferred kind, independent of cache state.
func (c *Cache) KindFor(key catalog.Key) catalog.Kind {
	return c.cat.Kind(key)
}

// Has reports whether key has been cached.
func (c *Cache) Has(key catalog.Key) bool {
	c.mu.RLock()
	_, ok := c.entries[key]
	c.mu.RUnlock()
	return ok
}

// Lookup returns the full cached entry.
func (c *Cache) Lookup(key catalog.Key) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	return e, ok
}

// Set stores e if its key has no entry yet and returns true. A second Set for
// the same key is a no-op returning false. Locator and Kind are filled in when empty.
func (c *Cache) Set(e Entry) bool {
	if e.Locator == "" {
		e.Locator = c.LocatorFor(e.Key)
	}
	if e.Kind == "" {
		e.Kind = c.cat.Kind(e.Key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[e.Key]; exists {
		return false
	}
	c.entries[e.Key] = e
	return true
}

// Keys returns the cached keys in catalog order.
func (c *Cache) Keys() []catalog.Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]catalog.Key, 0, len(c.entries))
	for _, e := range c.cat.Entries() {
		if _, ok := c.entries[e.Key]; ok {
			out = append(out, e.Key)
		}
	}
	return out
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[catalog.Key]Entry)
	c.mu.Unlock()
}
