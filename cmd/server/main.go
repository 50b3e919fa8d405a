package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/event-network/internal/app"
	"github.com/oggyb/event-network/internal/cache"
	"github.com/oggyb/event-network/internal/config"
	"github.com/oggyb/event-network/internal/db"
	"github.com/oggyb/event-network/internal/events"
	"github.com/oggyb/event-network/internal/feed"
	"github.com/oggyb/event-network/internal/logger"
	"github.com/oggyb/event-network/internal/matching"
	"github.com/oggyb/event-network/internal/metrics"
	"github.com/oggyb/event-network/internal/repository"
	"github.com/oggyb/event-network/internal/server"
	"github.com/oggyb/event-network/internal/service/networking"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	if cfg.App.Env == "development" {
		if err := db.SeedDemoData(database, 40, logger.Named("seed")); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	appCtx := app.New(cfg, database, redisCache, log)

	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Warn("rabbitmq unavailable, domain events disabled", "err", err)
		} else {
			appCtx.Publisher = publisher
		}
	}
	defer appCtx.Publisher.Close()

	metrics.Register()

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		instance := uuid.NewString()
		producer, err := feed.NewKafkaProducer(cfg, instance, log)
		if err != nil {
			log.Error("failed to init kafka producer", "err", err)
			os.Exit(1)
		}
		defer producer.Close()
		appCtx.FeedRelay = producer

		relay := feed.NewRelay(cfg, instance, appCtx.Feed, log)
		g.Go(func() error { return relay.Run(gctx) })
	}

	profiles := repository.NewProfileRepository(database)
	threshold := cfg.Matching.Threshold
	job := matching.NewJob(
		profiles,
		repository.NewMatchRepository(database),
		redisCache,
		appCtx.Publisher,
		logger.Named("matching"),
		matching.Options{
			Threshold: &threshold,
			Workers:   cfg.Matching.Workers,
			LockTTL:   cfg.Matching.LockTTL,
		},
	)
	scheduler := matching.NewScheduler(job, profiles, cfg.Matching.Interval, log)

	registrars := []server.Registrar{
		networking.NewRegistrar(appCtx, job),
	}

	g.Go(func() error {
		scheduler.Start(gctx)
		return nil
	})
	g.Go(func() error { return server.StartMetricsServer(gctx, cfg.Metrics.Addr, log) })
	g.Go(func() error { return server.StartGRPCServer(gctx, cfg, log, registrars...) })

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
