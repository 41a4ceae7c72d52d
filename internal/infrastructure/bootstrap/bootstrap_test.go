package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/sabiut/qr-checkin-system-sub000/config"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/persistence/postgres"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
)

func TestLogger_Level(t *testing.T) {
	cfg := &config.Config{
		App: config.AppConfig{Name: "checkin-worker"},
		Log: config.LogConfig{Level: "warn", Format: "console"},
	}

	core := Logger(cfg).Zap().Core()
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.WarnLevel))
}

func TestPostgresConfig(t *testing.T) {
	pg := PostgresConfig(config.DatabaseConfig{
		URL:             "postgres://app@db:5432/checkin",
		MaxConns:        20,
		MinConns:        4,
		ConnMaxLifetime: 2 * time.Hour,
		ConnMaxIdleTime: time.Minute,
		ConnectTimeout:  3 * time.Second,
	})

	assert.Equal(t, "postgres://app@db:5432/checkin", pg.URL)
	assert.EqualValues(t, 20, pg.MaxConns)
	assert.EqualValues(t, 4, pg.MinConns)
	assert.Equal(t, 2*time.Hour, pg.MaxConnLifetime)
	assert.Equal(t, time.Minute, pg.MaxConnIdleTime)
	assert.Equal(t, 3*time.Second, pg.ConnectTimeout)
	// Not part of the env surface, keeps the pool default.
	assert.Equal(t, time.Minute, pg.HealthCheckPeriod)
}

func TestRedisConfig(t *testing.T) {
	rc := RedisConfig(config.RedisConfig{
		Host:     "cache",
		Port:     6380,
		Password: "pw",
		DB:       2,
		PoolSize: 5,
	})

	assert.Equal(t, "cache:6380", rc.Addr())
	assert.Equal(t, "pw", rc.Password)
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, 5, rc.PoolSize)
	assert.Equal(t, 3, rc.MaxRetries)
}

func TestPostgres_MissingURLFailsFast(t *testing.T) {
	_, err := Postgres(context.Background(), config.DatabaseConfig{}, false, logger.Nop())
	assert.ErrorIs(t, err, postgres.ErrMissingURL)
}

func TestConnect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Postgres(ctx, config.DatabaseConfig{URL: "postgres://nobody@127.0.0.1:1/none"}, false, logger.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = Redis(ctx, config.RedisConfig{Host: "127.0.0.1", Port: 1}, logger.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
