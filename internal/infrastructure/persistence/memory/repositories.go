package memory

import (
	"context"
	"sort"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/achievement"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

var (
	_ profile.Repository      = (*Store)(nil)
	_ badge.Repository        = (*Store)(nil)
	_ badge.CatalogRepository = (*Store)(nil)
	_ achievement.Repository  = (*Store)(nil)
	_ leaderboard.Repository  = (*Store)(nil)
	_ trigger.Repository      = (*Store)(nil)
	_ trigger.AccountResolver = (*Store)(nil)
	_ trigger.EventCatalog    = (*Store)(nil)
	_ badge.AttendanceCounter = (*Store)(nil)
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILES
// ══════════════════════════════════════════════════════════════════════════════

// GetByUserID implements profile.Repository.
func (s *Store) GetByUserID(_ context.Context, userID string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	c := p.Clone()
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// ListEarned implements badge.Repository. Oldest first.
func (s *Store) ListEarned(_ context.Context, userID string) ([]badge.EarnedBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]badge.EarnedBadge, 0, len(s.earned[userID]))
	for _, eb := range s.earned[userID] {
		out = append(out, eb)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].BadgeID < out[j].BadgeID
		}
		return out[i].EarnedAt.Before(out[j].EarnedAt)
	})
	return out, nil
}

// ListRecords implements badge.CatalogRepository in insertion order.
func (s *Store) ListRecords(_ context.Context) ([]badge.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]badge.Record, 0, len(s.badgeOrder))
	for _, id := range s.badgeOrder {
		out = append(out, s.badgeRecords[id])
	}
	return out, nil
}

// UpsertRecords implements badge.CatalogRepository.
func (s *Store) UpsertRecords(_ context.Context, records []badge.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if _, ok := s.badgeRecords[r.ID]; !ok {
			s.badgeOrder = append(s.badgeOrder, r.ID)
		}
		s.badgeRecords[r.ID] = r
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// ListByUser implements achievement.Repository. Newest first; limit <= 0
// returns everything.
func (s *Store) ListByUser(_ context.Context, userID string, limit int) ([]achievement.Achievement, error) {
	s.mu.RLock()
	src := s.achievements[userID]
	out := make([]achievement.Achievement, len(src))
	copy(out, src)
	s.mu.RUnlock()

	// Insertion order breaks ties so records of one trigger stay grouped.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AchievedAt.After(out[j].AchievedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// ListStandings implements leaderboard.StandingsReader in user id order.
func (s *Store) ListStandings(_ context.Context, since *time.Time) ([]leaderboard.Standing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]leaderboard.Standing, 0, len(s.profiles))
	for _, id := range sortedKeys(s.profiles) {
		p := s.profiles[id]
		st := leaderboard.Standing{
			UserID:              id,
			TotalPoints:         p.TotalPoints,
			CurrentStreak:       p.CurrentStreak,
			TotalEventsAttended: p.TotalEventsAttended,
			EventsInWindow:      p.TotalEventsAttended,
			BadgesInWindow:      len(s.earned[id]),
		}
		if since != nil {
			day := timeutil.DateOf(*since, since.Location())
			st.EventsInWindow = s.countAttendanceLocked(id, &day)
			st.BadgesInWindow = 0
			for _, eb := range s.earned[id] {
				if !eb.EarnedAt.Before(*since) {
					st.BadgesInWindow++
				}
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// SaveBoard implements leaderboard.Repository.
func (s *Store) SaveBoard(_ context.Context, b *leaderboard.Board) error {
	c := *b
	c.Entries = append([]leaderboard.Entry(nil), b.Entries...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[boardKey{period: b.Period, key: timeutil.FormatDate(b.PeriodKey)}] = &c
	return nil
}

// GetBoard implements leaderboard.Repository.
func (s *Store) GetBoard(_ context.Context, period shared.Period, key time.Time) (*leaderboard.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.boards[boardKey{period: period, key: timeutil.FormatDate(key)}]
	if !ok {
		return nil, shared.ErrSnapshotNotFound
	}
	c := *b
	c.Entries = append([]leaderboard.Entry(nil), b.Entries...)
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGER SOURCES
// ══════════════════════════════════════════════════════════════════════════════

// SaveCheckIn implements trigger.Repository.
func (s *Store) SaveCheckIn(_ context.Context, c *trigger.CheckIn) (*trigger.CheckIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.checkIns[c.ID]
	if !ok {
		stored = *c
		s.checkIns[c.ID] = stored
	}
	return &stored, nil
}

// SaveFeedback implements trigger.Repository.
func (s *Store) SaveFeedback(_ context.Context, f *trigger.Feedback) (*trigger.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.feedback[f.ID]
	if !ok {
		stored = *f
		stored.FreeText = append([]string(nil), f.FreeText...)
		s.feedback[f.ID] = stored
	}
	out := stored
	out.FreeText = append([]string(nil), stored.FreeText...)
	return &out, nil
}

// SaveConnection implements trigger.Repository.
func (s *Store) SaveConnection(_ context.Context, c *trigger.Connection) (*trigger.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.connections[c.ID]
	if !ok {
		stored = *c
		s.connections[c.ID] = stored
	}
	return &stored, nil
}

// Marker returns the stored idempotency marker of a source record.
func (s *Store) Marker(kind trigger.Kind, sourceID string) (trigger.Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch kind {
	case trigger.KindCheckIn:
		r, ok := s.checkIns[sourceID]
		return r.Marker, ok
	case trigger.KindFeedback:
		r, ok := s.feedback[sourceID]
		return r.Marker, ok
	case trigger.KindConnection:
		r, ok := s.connections[sourceID]
		return r.Marker, ok
	}
	return trigger.Marker{}, false
}

// CountAttendanceSince implements badge.AttendanceCounter outside a trigger
// transaction.
func (s *Store) CountAttendanceSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countAttendanceLocked(userID, &since), nil
}
