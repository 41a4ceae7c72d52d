package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 5, cfg.Engine.ConnectionPoints)
	assert.Equal(t, 10, cfg.Engine.ConnectionDailyCap)
	assert.Equal(t, 50, cfg.Engine.LeaderboardLimit)
	assert.Equal(t, time.UTC, cfg.Engine.Location)
	assert.Equal(t, "triggers", cfg.Queue.Name)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.LeaderboardInterval)
	assert.True(t, cfg.Features.IsEnabled(FeatureBadges))
	assert.False(t, cfg.Features.IsEnabled(FeatureDistributedBus))
}

func TestLoad_ReadsEnvFileWithoutOverridingProcessEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"ENGINE_CONNECTION_POINTS=7\nQUEUE_WORKERS=9\nFEATURE_LEADERBOARD_CACHE=false\n",
	), 0o600))

	t.Setenv("QUEUE_WORKERS", "2")
	// Variables set by the file must not leak into other tests.
	t.Setenv("ENGINE_CONNECTION_POINTS", "")
	t.Setenv("FEATURE_LEADERBOARD_CACHE", "")
	os.Unsetenv("ENGINE_CONNECTION_POINTS")
	os.Unsetenv("FEATURE_LEADERBOARD_CACHE")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Engine.ConnectionPoints)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.False(t, cfg.Features.IsEnabled(FeatureLeaderboardCache))
}

func TestLoad_BuildsDatabaseURLFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:secret@db:5432/checkin?sslmode=disable", cfg.Database.URL)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("ENGINE_TIMEZONE", "Mars/Olympus")

	_, err := Load(filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("ENGINE_LEADERBOARD_LIMIT", "500")
	t.Setenv("QUEUE_WORKERS", "0")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load(filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)
	for _, want := range []string{"DATABASE_URL", "ENGINE_LEADERBOARD_LIMIT", "QUEUE_WORKERS", "LOG_FORMAT"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestFeatureFlags_Toggle(t *testing.T) {
	ff := LoadFeatureFlags()

	require.NoError(t, ff.Set(FeatureBadges, false))
	assert.False(t, ff.IsEnabled(FeatureBadges))
	require.NoError(t, ff.Set(FeatureBadges, true))
	assert.True(t, ff.IsEnabled(FeatureBadges))

	assert.ErrorIs(t, ff.Set("nope", true), ErrFeatureNotFound)
	assert.False(t, ff.IsEnabled("nope"))
}

func TestFeatureFlags_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"FEATURE_EVENTS_DISTRIBUTED":       "true",
		"FEATURE_ENGINE_ACHIEVEMENTS":      "0",
		"FEATURE_SCHEDULER_CATALOG_RELOAD": "maybe",
	}
	ff := loadFeatureFlags(func(k string) string { return env[k] })

	assert.Equal(t, []string{
		FeatureBadges,
		FeatureDistributedBus,
		FeatureQueueConsumer,
		FeatureLeaderboardCache,
		FeatureCatalogReload,
	}, ff.Enabled())
	assert.Equal(t, "FEATURE_INTAKE_QUEUE_CONSUMER", envKey(FeatureQueueConsumer))
}
