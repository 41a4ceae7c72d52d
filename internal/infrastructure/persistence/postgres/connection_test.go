package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
)

func TestPoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.PoolConfig()
	assert.ErrorIs(t, err, ErrMissingURL)

	cfg.URL = "postgres://u:p@db:5432/checkin?sslmode=disable"
	cfg.MaxConns = 7
	cfg.ConnectTimeout = 3 * time.Second
	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, 3*time.Second, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, "checkin-gamification", pc.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "db", pc.ConnConfig.Host)
}

func TestTxRetrierReplaysOnlySerializationFailures(t *testing.T) {
	r := txRetrier(3)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = r.Do(context.Background(), func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "23505"}
	})
	assert.True(t, IsUniqueViolation(err))
	assert.Equal(t, 1, calls)
}

func TestErrorHelpers(t *testing.T) {
	unique := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsSerializationFailure(unique))
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsNoRows(fmt.Errorf("x: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("other")))
}

func TestSourceTable(t *testing.T) {
	table, err := sourceTable(trigger.KindFeedback)
	require.NoError(t, err)
	assert.Equal(t, "feedback_submissions", table)

	_, err = sourceTable("rsvp")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestMigrationsAreOrderedAndReversible(t *testing.T) {
	migrations := GetMigrations()
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
	}

	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.UpSQL)
	}
	for _, table := range []string{
		"accounts", "events", "badge_definitions", "check_ins", "feedback_submissions",
		"connections", "gamification_profiles", "earned_badges", "achievements", "leaderboard_entries",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	assert.Contains(t, all.String(), "UNIQUE (user_id, badge_id)")
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	assert.Equal(t, "a", deref(nullString("a")))
	assert.Equal(t, "", deref(nil))
	assert.Equal(t, []string{}, freeText(nil))
}
