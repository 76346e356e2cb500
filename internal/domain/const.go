package domain

// Request-scoped context keys set by the auth middleware.
const (
	AuthenticatedCtxKey = "cm-authenticated"
	SessionTokenCtxKey  = "cm-sessionToken"
)

// Cache key prefix of the public collection mirrors. The prefix predates
// this implementation; existing browsers still hold rc_* entries.
const CacheKeyPrefix = "rc_"

func CacheKey(name string) string {
	return CacheKeyPrefix + name
}
