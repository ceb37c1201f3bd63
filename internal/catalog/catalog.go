package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/snapetech/tribute/internal/safeurl"
)

// Key names one media asset. Stable for the lifetime of the page.
type Key string

// Kind is the media kind of an asset, inferred from its locator.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// imageExtensions is the allow-list used by KindOf. Anything else is video.
var imageExtensions = []string{".jpeg", ".jpg", ".png", ".webp", ".gif", ".avif"}

var (
	ErrDuplicateKey = errors.New("catalog: duplicate key")
	ErrEmptyEntry   = errors.New("catalog: empty key or locator")
	ErrUnknownKey   = errors.New("catalog: unknown key")
)

// KindOf classifies a locator by case-insensitive substring match against the
// image extension allow-list. Query strings and fragments count: bundlers emit
// locators like "1.jpeg?v=3" and those must still be images.
func KindOf(locator string) Kind {
	lower := strings.ToLower(locator)
	for _, ext := range imageExtensions {
		if strings.Contains(lower, ext) {
			return KindImage
		}
	}
	return KindVideo
}

// Entry is one catalog record: key plus the original source locator.
type Entry struct {
	Key     Key    `json:"key" toml:"key" yaml:"key"`
	Locator string `json:"locator" toml:"locator" yaml:"locator"`
}

// Kind returns the inferred kind of the entry's locator.
func (e Entry) Kind() Kind { return KindOf(e.Locator) }

// Ext returns the file extension of the entry's locator path (lowercase, with
// the dot), or "" if there is none.
func (e Entry) Ext() string {
	p := e.Locator
	if u, err := url.Parse(e.Locator); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// Catalog is the immutable set of media entries to preload.
// Iteration order is declaration order.
type Catalog struct {
	entries []Entry
	index   map[Key]int
}

// New builds a catalog. Keys must be unique and non-empty; locators non-empty.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[Key]int, len(entries)),
	}
	for _, e := range entries {
		e.Key = Key(strings.TrimSpace(string(e.Key)))
		e.Locator = strings.TrimSpace(e.Locator)
		if e.Key == "" || e.Locator == "" {
			return nil, fmt.Errorf("%w: %+v", ErrEmptyEntry, e)
		}
		if _, dup := c.index[e.Key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, e.Key)
		}
		c.index[e.Key] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Entries returns a copy of the entries in declaration order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Locator returns the original locator for key.
func (c *Catalog) Locator(key Key) (string, bool) {
	i, ok := c.index[key]
	if !ok {
		return "", false
	}
	return c.entries[i].Locator, true
}

// Kind returns the statically inferred kind for key. Unknown keys are video,
// the same answer KindOf gives for a locator with no image extension.
func (c *Catalog) Kind(key Key) Kind {
	loc, _ := c.Locator(key)
	return KindOf(loc)
}

// Entry returns the entry for key.
func (c *Catalog) Entry(key Key) (Entry, error) {
	i, ok := c.index[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return c.entries[i], nil
}

// Resolve returns a catalog whose relative locators are resolved against base
// (e.g. "assets/1.jpeg" against "https://host/site/"). Absolute http(s)
// locators are kept as-is. An empty base returns c unchanged.
func (c *Catalog) Resolve(base string) (*Catalog, error) {
	if strings.TrimSpace(base) == "" {
		return c, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("catalog resolve: parse base %q: %w", base, err)
	}
	if !safeurl.IsHTTPOrHTTPS(b.String()) {
		return nil, fmt.Errorf("catalog resolve: base %q is not http(s)", base)
	}
	if !strings.HasSuffix(b.Path, "/") {
		b.Path += "/"
	}
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if !safeurl.IsHTTPOrHTTPS(e.Locator) {
			ref, err := url.Parse(e.Locator)
			if err != nil {
				return nil, fmt.Errorf("catalog resolve: %s: %w", e.Key, err)
			}
			e.Locator = b.ResolveReference(ref).String()
		}
		out = append(out, e)
	}
	return New(out...)
}
