package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOARD
// ══════════════════════════════════════════════════════════════════════════════

// Board is a fully ranked leaderboard for one period window. Entries are
// ordered by rank; a user's rank is always their position in Entries.
type Board struct {
	Period     shared.Period `json:"period"`
	PeriodKey  time.Time     `json:"period_key"`
	Entries    []Entry       `json:"entries"`
	ComputedAt time.Time     `json:"computed_at"`
}

// NewBoard ranks standings into a board.
func NewBoard(period shared.Period, key time.Time, standings []Standing, computedAt time.Time) *Board {
	return &Board{
		Period:     period,
		PeriodKey:  key,
		Entries:    Order(period, key, standings),
		ComputedAt: computedAt,
	}
}

// TotalParticipants returns the number of ranked users.
func (b *Board) TotalParticipants() int {
	return len(b.Entries)
}

// Top returns the first n entries. n <= 0 returns every entry.
func (b *Board) Top(n int) []Entry {
	if n <= 0 || n > len(b.Entries) {
		n = len(b.Entries)
	}
	out := make([]Entry, n)
	copy(out, b.Entries[:n])
	return out
}

// EntryFor returns the entry of a user.
func (b *Board) EntryFor(userID string) (Entry, bool) {
	for _, e := range b.Entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return Entry{}, false
}

// RankOf returns the rank of a user, or false when the user is not ranked.
func (b *Board) RankOf(userID string) (shared.Rank, bool) {
	e, ok := b.EntryFor(userID)
	if !ok {
		return 0, false
	}
	return e.Rank, true
}

// String returns a short description for logging.
func (b *Board) String() string {
	return fmt.Sprintf("Board{Period: %s, Key: %s, Participants: %d}",
		b.Period, b.PeriodKey.Format(time.DateOnly), len(b.Entries))
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// StandingsReader loads the per-user data a ranking is computed from.
// since is nil for all_time. Otherwise it is midnight of the window's first
// day in the engine time zone: check-ins count by event date on or after that
// day, badges by earned_at at or after that instant.
type StandingsReader interface {
	ListStandings(ctx context.Context, since *time.Time) ([]Standing, error)
}

// Repository persists recomputed boards as leaderboard entry rows.
type Repository interface {
	StandingsReader

	// SaveBoard replaces every row of (period, period_key) in one transaction.
	SaveBoard(ctx context.Context, b *Board) error

	// GetBoard returns a stored board or ErrSnapshotNotFound.
	GetBoard(ctx context.Context, period shared.Period, key time.Time) (*Board, error)
}

// Cache keeps recently computed boards.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, period shared.Period, key time.Time) (*Board, error)
	Set(ctx context.Context, b *Board) error
	Invalidate(ctx context.Context, periods ...shared.Period) error
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Service computes boards from current standings. It never takes the
// per-profile lock; boards may lag concurrent triggers slightly.
type Service struct {
	reader StandingsReader
	loc    *time.Location
}

// NewService creates a ranking service. loc defines calendar days; nil means UTC.
func NewService(reader StandingsReader, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{reader: reader, loc: loc}
}

// Location returns the calendar time zone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Compute ranks every user for the window of period containing now.
func (s *Service) Compute(ctx context.Context, period shared.Period, now time.Time) (*Board, error) {
	var since *time.Time
	if start, ok := period.Start(now, s.loc); ok {
		at := timeutil.MidnightIn(start, s.loc)
		since = &at
	}

	standings, err := s.reader.ListStandings(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: list standings for %s: %w", period, err)
	}

	return NewBoard(period, period.Key(now, s.loc), standings, now.UTC()), nil
}
