package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/event-network/internal/cache"
	"github.com/oggyb/event-network/internal/config"
	"github.com/oggyb/event-network/internal/events"
	"github.com/oggyb/event-network/internal/feed"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger

	// Publisher receives domain events; a noop publisher unless RabbitMQ is configured.
	Publisher events.Publisher
	// Feed delivers message changes to live conversation sessions.
	Feed *feed.Hub
	// FeedRelay forwards message changes to other instances; nil when running alone.
	FeedRelay feed.Publisher
}

// New creates a new AppContext with a local feed hub and a noop publisher.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Publisher:  events.NewNoopPublisher(logger),
		Feed:       feed.NewHub(cfg.Feed.Buffer, logger),
	}
}
