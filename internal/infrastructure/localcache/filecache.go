// Package localcache holds the best-effort mirrors of the public
// collections. The cache is never the source of truth; it seeds reads before
// the first snapshot arrives and serves as the offline fallback.
package localcache

import (
	"log/slog"

	gocache "github.com/patrickmn/go-cache"
)

// FileCache persists the mirror to a single file on every write. All backend
// failures degrade silently: a read that fails reports absent, a write that
// cannot be persisted still lands in memory.
type FileCache struct {
	cache *gocache.Cache
	path  string
}

func NewFileCache(path string) *FileCache {
	c := gocache.New(gocache.NoExpiration, 0)
	if err := c.LoadFile(path); err != nil {
		slog.Debug(
			"No usable cache file, starting empty",
			slog.String("path", path),
			slog.String("error", err.Error()),
			slog.String("module", "localcache"),
		)
	}
	return &FileCache{cache: c, path: path}
}

func (c *FileCache) Get(key string) (string, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (c *FileCache) Set(key, value string) {
	c.cache.Set(key, value, gocache.NoExpiration)
	if err := c.cache.SaveFile(c.path); err != nil {
		slog.Debug(
			"Failed to persist cache file",
			slog.String("path", c.path),
			slog.String("error", err.Error()),
			slog.String("module", "localcache"),
		)
	}
}
