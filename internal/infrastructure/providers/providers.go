package providers

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/conselhomais/portal"
	"github.com/conselhomais/portal/internal/config"
	"github.com/conselhomais/portal/internal/infrastructure/database"
	"github.com/conselhomais/portal/internal/infrastructure/localcache"
	"github.com/conselhomais/portal/internal/infrastructure/repository"
)

// NewDatabase opens a Postgres connection using the configured DSN.
func NewDatabase(conf config.Server) (*gorm.DB, error) {
	return database.NewPostgres(conf.PostgresDsn)
}

// MigrateDatabase applies migrations for the application models.
func MigrateDatabase(db *gorm.DB) error {
	return database.MigratePostgres(db)
}

// NewRedis creates the client backing change notifications and sessions.
func NewRedis(conf config.Server) *redis.Client {
	return database.NewRedis(conf.RedisAddr, "", conf.RedisDB)
}

// NewLocalCache picks the memcached backend when an address is configured,
// the file-backed cache otherwise.
func NewLocalCache(conf config.Server) portal.LocalCache {
	if conf.MemcachedAddr != "" {
		return localcache.NewMemcached(conf.MemcachedAddr)
	}
	return localcache.NewFileCache(conf.CacheFile)
}

// NewDocumentStore constructs the store the whole data layer runs on.
func NewDocumentStore(db *gorm.DB, rdb *redis.Client) *repository.DocumentStore {
	return repository.NewDocumentStore(db, rdb)
}
