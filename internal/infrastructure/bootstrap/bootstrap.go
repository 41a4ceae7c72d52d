// Package bootstrap opens the worker's backing services from configuration,
// waiting with backoff while they come up.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/config"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/persistence/postgres"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/persistence/redis"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/retry"
)

// Logger builds the process logger from the log section.
func Logger(cfg *config.Config) *logger.Logger {
	format := logger.FormatJSON
	switch strings.ToLower(cfg.Log.Format) {
	case "console", "text":
		format = logger.FormatConsole
	}
	return logger.New(logger.Options{
		Level:     logger.ParseLevel(cfg.Log.Level),
		Format:    format,
		Service:   cfg.App.Name,
		AddCaller: true,
	})
}

// PostgresConfig maps the database section onto the pool settings.
func PostgresConfig(db config.DatabaseConfig) postgres.Config {
	pg := postgres.DefaultConfig()
	pg.URL = db.URL
	pg.MaxConns = int32(db.MaxConns)
	pg.MinConns = int32(db.MinConns)
	pg.MaxConnLifetime = db.ConnMaxLifetime
	pg.MaxConnIdleTime = db.ConnMaxIdleTime
	pg.ConnectTimeout = db.ConnectTimeout
	return pg
}

// RedisConfig maps the redis section onto the client settings.
func RedisConfig(r config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = r.Host
	rc.Port = r.Port
	rc.Password = r.Password
	rc.DB = r.DB
	rc.PoolSize = r.PoolSize
	rc.MinIdleConns = r.MinIdleConns
	rc.DialTimeout = r.DialTimeout
	rc.ReadTimeout = r.ReadTimeout
	rc.WriteTimeout = r.WriteTimeout
	return rc
}

func onRetry(log *logger.Logger, target string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("waiting for "+target,
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", delay),
			logger.Err(err),
		)
	}
}

// Postgres connects to PostgreSQL and, when migrate is set, applies pending
// migrations.
func Postgres(ctx context.Context, db config.DatabaseConfig, migrate bool, log *logger.Logger) (*postgres.Connection, error) {
	conn, err := retry.Value(ctx, retry.StartupRetrier(onRetry(log, "postgres")),
		func(ctx context.Context) (*postgres.Connection, error) {
			conn, err := postgres.NewConnection(ctx, PostgresConfig(db))
			if errors.Is(err, postgres.ErrMissingURL) {
				return nil, retry.Permanent(err)
			}
			return conn, err
		})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.Info("database connection established")

	if migrate {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database schema is up to date", logger.Int("applied", applied))
	}
	return conn, nil
}

// Redis connects to Redis.
func Redis(ctx context.Context, r config.RedisConfig, log *logger.Logger) (*redis.Cache, error) {
	rc := RedisConfig(r)
	cache, err := retry.Value(ctx, retry.StartupRetrier(onRetry(log, "redis")),
		func(ctx context.Context) (*redis.Cache, error) {
			return redis.NewCache(ctx, rc)
		})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("redis connection established", logger.String("addr", rc.Addr()))
	return cache, nil
}
