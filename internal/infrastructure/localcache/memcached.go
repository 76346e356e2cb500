package localcache

import (
	"log/slog"

	"github.com/bradfitz/gomemcache/memcache"
)

// Memcached is the shared-cache variant for deployments running several
// portal instances behind one memcached.
type Memcached struct {
	client *memcache.Client
}

func NewMemcached(addr string) *Memcached {
	return &Memcached{client: memcache.New(addr)}
}

func (c *Memcached) Get(key string) (string, bool) {
	item, err := c.client.Get(key)
	if err != nil {
		if err != memcache.ErrCacheMiss {
			slog.Debug(
				"Memcached read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
				slog.String("module", "localcache"),
			)
		}
		return "", false
	}
	return string(item.Value), true
}

func (c *Memcached) Set(key, value string) {
	err := c.client.Set(&memcache.Item{Key: key, Value: []byte(value)})
	if err != nil {
		slog.Debug(
			"Memcached write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
			slog.String("module", "localcache"),
		)
	}
}
