// Package bootstrap opens the shared runtime dependencies for the command binaries.
package bootstrap

import (
	"fmt"

	"lenscape/internal/cache"
	"lenscape/internal/config"
	"lenscape/internal/database"
	"lenscape/internal/middleware"
	"lenscape/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// WithRedis connects the cache client. Batch tools that only read
	// authoritative state leave it off.
	WithRedis bool
}

// Runtime is what every binary needs before it can touch posts or files.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Store *storage.Store
}

// InitRuntime connects to the database, opens the content store and, when
// asked, connects Redis. A nil Redis client after init means caching is off.
func InitRuntime(cfg *config.Config, opts Options) (*Runtime, error) {
	store, err := storage.NewStore(cfg.ImageUploadDir, cfg.MediaURLPrefix, storage.WithLogger(middleware.Logger))
	if err != nil {
		return nil, fmt.Errorf("content store init failed: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	rt := &Runtime{DB: db, Store: store}
	if opts.WithRedis {
		cache.InitRedis(cfg.RedisURL)
		rt.Redis = cache.GetClient()
	}
	return rt, nil
}

// Close releases the database and Redis connections.
func (rt *Runtime) Close() error {
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	sqlDB, err := rt.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
