package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and tracks them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns applied versions with their timestamps.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}

	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
// It returns the number of migrations applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return 0, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name,
			)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		count++
	}

	return count, nil
}

// Rollback reverts the most recently applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
			break
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_catalogs", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_trigger_sources", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_gamification", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_leaderboard_entries", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ACCOUNTS, EVENTS, BADGE CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    email TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email ON accounts (lower(email)) WHERE email IS NOT NULL;

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    event_date DATE NOT NULL,
    start_at TIMESTAMP WITH TIME ZONE,
    tags TEXT[] NOT NULL DEFAULT '{}',
    is_vip BOOLEAN NOT NULL DEFAULT FALSE,
    connection_points INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_connection_points CHECK (connection_points >= 0)
);

CREATE TABLE IF NOT EXISTS badge_definitions (
    id TEXT PRIMARY KEY,
    seq BIGSERIAL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT '',
    badge_type TEXT NOT NULL,
    criteria JSONB NOT NULL DEFAULT '{}'::jsonb,
    points_reward INTEGER NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_points_reward CHECK (points_reward >= 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS badge_definitions;
DROP TABLE IF EXISTS events;
DROP TABLE IF EXISTS accounts;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: TRIGGER SOURCE RECORDS
// Every source carries gamification_processed, points_awarded and the
// credited user. Those three columns are the idempotency marker.
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS check_ins (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    email TEXT,
    event_id TEXT NOT NULL,
    event_date DATE NOT NULL,
    event_start_at TIMESTAMP WITH TIME ZONE,
    check_in_at TIMESTAMP WITH TIME ZONE NOT NULL,
    gamification_processed BOOLEAN NOT NULL DEFAULT FALSE,
    points_awarded INTEGER NOT NULL DEFAULT 0,
    processed_user_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_check_ins_attendance
    ON check_ins (processed_user_id, event_date) WHERE gamification_processed;

CREATE TABLE IF NOT EXISTS feedback_submissions (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    email TEXT,
    event_id TEXT NOT NULL,
    overall_rating SMALLINT NOT NULL,
    nps_score SMALLINT,
    would_recommend BOOLEAN,
    free_text TEXT[] NOT NULL DEFAULT '{}',
    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
    gamification_processed BOOLEAN NOT NULL DEFAULT FALSE,
    points_awarded INTEGER NOT NULL DEFAULT 0,
    processed_user_id TEXT,

    CONSTRAINT valid_overall_rating CHECK (overall_rating BETWEEN 1 AND 5),
    CONSTRAINT valid_nps_score CHECK (nps_score IS NULL OR nps_score BETWEEN 0 AND 10)
);

CREATE TABLE IF NOT EXISTS connections (
    id TEXT PRIMARY KEY,
    from_user_id TEXT,
    from_email TEXT,
    to_user_id TEXT NOT NULL,
    event_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    gamification_processed BOOLEAN NOT NULL DEFAULT FALSE,
    points_awarded INTEGER NOT NULL DEFAULT 0,
    processed_user_id TEXT
);
`

const migration002Down = `
DROP TABLE IF EXISTS connections;
DROP TABLE IF EXISTS feedback_submissions;
DROP TABLE IF EXISTS check_ins;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PROFILES, EARNED BADGES, ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS gamification_profiles (
    user_id TEXT PRIMARY KEY,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_qualifying_date DATE,
    total_events_attended INTEGER NOT NULL DEFAULT 0,
    total_points INTEGER NOT NULL DEFAULT 0,
    level TEXT NOT NULL DEFAULT 'Bronze',
    total_connections INTEGER NOT NULL DEFAULT 0,
    total_feedback_submissions INTEGER NOT NULL DEFAULT 0,
    connection_reward_date DATE,
    connection_rewards_today INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_counters CHECK (
        current_streak >= 0 AND total_events_attended >= 0 AND total_points >= 0
        AND total_connections >= 0 AND total_feedback_submissions >= 0
    ),
    CONSTRAINT valid_longest_streak CHECK (longest_streak >= current_streak)
);

CREATE INDEX IF NOT EXISTS idx_profiles_points ON gamification_profiles (total_points DESC);

CREATE TABLE IF NOT EXISTS earned_badges (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    badge_id TEXT NOT NULL REFERENCES badge_definitions(id),
    event_id TEXT,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL,

    UNIQUE (user_id, badge_id)
);

CREATE INDEX IF NOT EXISTS idx_earned_badges_earned_at ON earned_badges (earned_at);

CREATE TABLE IF NOT EXISTS achievements (
    id TEXT PRIMARY KEY,
    seq BIGSERIAL,
    user_id TEXT NOT NULL,
    event_id TEXT,
    kind TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT '',
    data JSONB,
    achieved_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_achievements_user ON achievements (user_id, achieved_at DESC, seq DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS achievements;
DROP TABLE IF EXISTS earned_badges;
DROP TABLE IF EXISTS gamification_profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: LEADERBOARD SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS leaderboard_entries (
    period TEXT NOT NULL,
    period_key DATE NOT NULL,
    user_id TEXT NOT NULL,
    events_attended INTEGER NOT NULL DEFAULT 0,
    points_earned INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    badges_earned INTEGER NOT NULL DEFAULT 0,
    rank INTEGER NOT NULL,
    computed_at TIMESTAMP WITH TIME ZONE NOT NULL,

    PRIMARY KEY (period, period_key, user_id),
    CONSTRAINT valid_period CHECK (period IN ('daily', 'weekly', 'monthly', 'yearly', 'all_time')),
    CONSTRAINT valid_rank CHECK (rank >= 1)
);

CREATE INDEX IF NOT EXISTS idx_leaderboard_rank ON leaderboard_entries (period, period_key, rank);
`

const migration004Down = `
DROP TABLE IF EXISTS leaderboard_entries;
`
