package mediafs

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/mediacache"
)

// listing is one cached asset as it appears in the mount.
type listing struct {
	Name string
	Key  catalog.Key
}

// listCached returns a file name for every cached key, in catalog order.
// Names are "<key><ext>" with path separators replaced; collisions get "-N".
func listCached(c *mediacache.Cache) []listing {
	keys := c.Keys()
	out := make([]listing, 0, len(keys))
	seen := make(map[string]int, len(keys))
	for _, k := range keys {
		ext := ".bin"
		if e, err := c.Catalog().Entry(k); err == nil && e.Ext() != "" {
			ext = e.Ext()
		}
		stem := sanitize(string(k))
		name := stem + ext
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		seen[stem+ext]++
		out = append(out, listing{Name: name, Key: k})
	}
	return out
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == 0 {
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Stable inode numbers so the same key keeps its inode across lookups.
func inoFromString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
