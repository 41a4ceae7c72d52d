// Package main - точка входа воркера геймификации check-in.
//
// Worker отвечает за:
// - Приём триггеров (check-in, feedback, connection) из очереди Redis
// - Начисление очков, серий, бейджей и достижений
// - Периодический пересчёт лидербордов и перезагрузку каталога бейджей
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/config"
	"github.com/sabiut/qr-checkin-system-sub000/internal/application/command"
	"github.com/sabiut/qr-checkin-system-sub000/internal/application/eventhandler"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/bootstrap"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/messaging"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/persistence/postgres"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/persistence/redis"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/scheduler"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/scheduler/jobs"
	"github.com/sabiut/qr-checkin-system-sub000/internal/interface/queue"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// eventBus is what the worker needs from either bus implementation.
type eventBus interface {
	shared.EventBus
	Close() error
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.Logger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting check-in gamification worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.Engine.Timezone),
		logger.Any("features", cfg.Features.Enabled()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := bootstrap.Postgres(ctx, cfg.Database, cfg.Database.AutoMigrate, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database connection")
		conn.Close()
	}()

	store := postgres.NewStore(conn)
	accounts := postgres.NewAccountRepository(conn)
	events := postgres.NewEventRepository(conn)
	badges := postgres.NewBadgeRepository(conn)
	triggers := postgres.NewTriggerRepository(conn)
	boards := postgres.NewLeaderboardRepository(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if !cfg.Redis.Disabled {
		cache, err = bootstrap.Redis(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing redis connection")
			_ = cache.Close()
		}()
	} else {
		log.Warn("redis disabled: no leaderboard cache, no queue intake")
	}

	var boardCache leaderboard.Cache
	if cache != nil && cfg.Features.IsEnabled(config.FeatureLeaderboardCache) {
		boardCache = redis.NewLeaderboardCache(cache, cfg.Engine.LeaderboardCacheTTL)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	bus, err := newEventBus(cfg, cache, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	if err := eventhandler.NewOnTriggerProcessedHandler(boardCache, log).Register(bus); err != nil {
		return fmt.Errorf("register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ДИСПЕТЧЕР ТРИГГЕРОВ
	// ─────────────────────────────────────────────────────────────────────────
	rules := profile.DefaultScoringRules()
	rules.ConnectionPoints = cfg.Engine.ConnectionPoints
	rules.ConnectionDailyCap = cfg.Engine.ConnectionDailyCap

	dispatcher := command.NewProcessTriggerHandler(store, accounts, events, bus, nil, log, command.ProcessTriggerConfig{
		Rules:               rules,
		Location:            cfg.Engine.Location,
		BadgesEnabled:       cfg.Features.IsEnabled(config.FeatureBadges),
		AchievementsEnabled: cfg.Features.IsEnabled(config.FeatureAchievements),
	})

	catalogJob := jobs.NewReloadCatalogJob(badges, dispatcher, log)
	if err := catalogJob.Run(ctx); err != nil {
		return fmt.Errorf("load badge catalog: %w", err)
	}
	log.Info("badge catalog loaded", logger.Int("badges", dispatcher.Catalog().Len()))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = newScheduler(cfg, log, catalogJob, jobs.NewRebuildLeaderboardJob(
			leaderboard.NewService(boards, cfg.Engine.Location),
			boards, boardCache, bus, log,
			jobs.DefaultRebuildLeaderboardConfig(),
		))
		if err != nil {
			return err
		}
		sched.Start()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПРИЁМ ТРИГГЕРОВ
	// ─────────────────────────────────────────────────────────────────────────
	consumerDone := make(chan error, 1)
	if cache != nil && cfg.Features.IsEnabled(config.FeatureQueueConsumer) {
		consumer := queue.NewConsumer(
			redis.NewTriggerQueue(cache, cfg.Queue.Name),
			redis.NewTriggerQueue(cache, cfg.Queue.DeadLetter),
			triggers, dispatcher, log,
			queue.ConsumerConfig{Workers: cfg.Queue.Workers, PollTimeout: cfg.Queue.BlockTimeout},
		)
		go func() { consumerDone <- consumer.Run(ctx) }()
	} else {
		consumerDone <- nil
		log.Warn("queue consumer disabled")
	}

	log.Info("worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("shutdown signal received", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	var shutdownErr error
	select {
	case err := <-consumerDone:
		shutdownErr = err
	case <-time.After(cfg.App.ShutdownTimeout):
		shutdownErr = errors.New("queue consumer did not stop in time")
	}

	if sched != nil {
		if err := sched.Stop(); err != nil {
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}

	if shutdownErr != nil {
		log.Error("shutdown completed with errors", logger.Err(shutdownErr))
		return shutdownErr
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func newEventBus(cfg *config.Config, cache *redis.Cache, log *logger.Logger) (eventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = log

	if cache == nil || !cfg.Features.IsEnabled(config.FeatureDistributedBus) {
		return messaging.NewInMemoryEventBus(local), nil
	}

	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         redis.NewPubSub(cache),
		ChannelName:    redis.PubSubChannel("events"),
		LocalBusConfig: local,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis event bus: %w", err)
	}
	return bus, nil
}

func newScheduler(cfg *config.Config, log *logger.Logger, catalog, rebuild scheduler.Job) (*scheduler.Scheduler, error) {
	sched, err := scheduler.New(scheduler.Config{
		Location:   cfg.Engine.Location,
		JobTimeout: cfg.Scheduler.JobTimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	if err := sched.Register(rebuild, scheduler.Schedule{
		Every:      cfg.Scheduler.LeaderboardInterval,
		RunOnStart: true,
	}); err != nil {
		return nil, err
	}

	if cfg.Features.IsEnabled(config.FeatureCatalogReload) {
		if err := sched.Register(catalog, scheduler.Every(cfg.Scheduler.CatalogInterval)); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// Interface checks for the wiring above.
var (
	_ jobs.CatalogSink        = (*command.ProcessTriggerHandler)(nil)
	_ queue.Dispatcher        = (*command.ProcessTriggerHandler)(nil)
	_ badge.CatalogRepository = (*postgres.BadgeRepository)(nil)
	_ eventBus                = (*messaging.InMemoryEventBus)(nil)
	_ eventBus                = (*messaging.RedisEventBus)(nil)
)
