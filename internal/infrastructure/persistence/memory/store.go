// Package memory implements the engine's storage ports in process memory.
// It backs tests and single-process deployments without PostgreSQL and keeps
// the same contract: per-user exclusive locks and all-or-nothing commits.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/achievement"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/gamification"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

type boardKey struct {
	period shared.Period
	key    string
}

// Store holds all engine state. The zero value is not usable; use NewStore.
type Store struct {
	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex

	mu           sync.RWMutex
	profiles     map[string]profile.Profile
	checkIns     map[string]trigger.CheckIn
	feedback     map[string]trigger.Feedback
	connections  map[string]trigger.Connection
	earned       map[string]map[string]badge.EarnedBadge
	achievements map[string][]achievement.Achievement
	boards       map[boardKey]*leaderboard.Board
	users        map[string]struct{}
	emails       map[shared.Email]string
	events       map[string]trigger.Event
	badgeRecords map[string]badge.Record
	badgeOrder   []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		userLocks:    make(map[string]*sync.Mutex),
		profiles:     make(map[string]profile.Profile),
		checkIns:     make(map[string]trigger.CheckIn),
		feedback:     make(map[string]trigger.Feedback),
		connections:  make(map[string]trigger.Connection),
		earned:       make(map[string]map[string]badge.EarnedBadge),
		achievements: make(map[string][]achievement.Achievement),
		boards:       make(map[boardKey]*leaderboard.Board),
		users:        make(map[string]struct{}),
		emails:       make(map[shared.Email]string),
		events:       make(map[string]trigger.Event),
		badgeRecords: make(map[string]badge.Record),
	}
}

var _ gamification.Store = (*Store)(nil)

func (s *Store) userLock(userID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	m, ok := s.userLocks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.userLocks[userID] = m
	}
	return m
}

// WithUserLock implements gamification.Store.
func (s *Store) WithUserLock(ctx context.Context, userID string, fn func(tx gamification.Tx) error) error {
	if userID == "" {
		return shared.ErrEmptyUserID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	t := &tx{store: s, userID: userID}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory: commit: %w", err)
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.profile != nil {
		s.profiles[t.userID] = t.profile.Clone()
	}
	for _, src := range t.marks {
		s.storeSourceLocked(src)
	}
	for _, eb := range t.badges {
		byBadge, ok := s.earned[eb.UserID]
		if !ok {
			byBadge = make(map[string]badge.EarnedBadge)
			s.earned[eb.UserID] = byBadge
		}
		if _, exists := byBadge[eb.BadgeID]; !exists {
			byBadge[eb.BadgeID] = eb
		}
	}
	for _, a := range t.achievements {
		s.achievements[a.UserID] = append(s.achievements[a.UserID], a)
	}
}

// storeSourceLocked overwrites a source record. s.mu must be held.
func (s *Store) storeSourceLocked(src trigger.Source) {
	switch r := src.(type) {
	case *trigger.CheckIn:
		s.checkIns[r.ID] = *r
	case *trigger.Feedback:
		s.feedback[r.ID] = *r
	case *trigger.Connection:
		s.connections[r.ID] = *r
	}
}

func (s *Store) isProcessedLocked(kind trigger.Kind, sourceID string) bool {
	switch kind {
	case trigger.KindCheckIn:
		r, ok := s.checkIns[sourceID]
		return ok && r.IsProcessed()
	case trigger.KindFeedback:
		r, ok := s.feedback[sourceID]
		return ok && r.IsProcessed()
	case trigger.KindConnection:
		r, ok := s.connections[sourceID]
		return ok && r.IsProcessed()
	}
	return false
}

func (s *Store) countAttendanceLocked(userID string, since *time.Time) int {
	n := 0
	for _, c := range s.checkIns {
		if !c.IsProcessed() || c.ProcessedUserID != userID {
			continue
		}
		if since != nil && c.EventDate.Before(*since) {
			continue
		}
		n++
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// TX
// ══════════════════════════════════════════════════════════════════════════════

// tx stages writes until WithUserLock commits them.
type tx struct {
	store  *Store
	userID string

	profile      *profile.Profile
	marks        []trigger.Source
	badges       []badge.EarnedBadge
	achievements []achievement.Achievement
}

func (t *tx) checkUser(op, userID string) error {
	if userID != t.userID {
		return shared.NewDomainError("memory", op, shared.ErrInvalidInput,
			fmt.Sprintf("user %s is not locked by this transaction", userID))
	}
	return nil
}

func (t *tx) LoadProfile(_ context.Context, userID string, now time.Time) (profile.Profile, error) {
	if err := t.checkUser("LoadProfile", userID); err != nil {
		return profile.Profile{}, err
	}
	if t.profile != nil {
		return t.profile.Clone(), nil
	}

	t.store.mu.RLock()
	p, ok := t.store.profiles[userID]
	t.store.mu.RUnlock()
	if ok {
		return p.Clone(), nil
	}

	created, err := profile.NewProfile(userID, now)
	if err != nil {
		return profile.Profile{}, err
	}
	return *created, nil
}

func (t *tx) SaveProfile(_ context.Context, p profile.Profile) error {
	if err := t.checkUser("SaveProfile", p.UserID); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	c := p.Clone()
	t.profile = &c
	return nil
}

func (t *tx) IsProcessed(_ context.Context, kind trigger.Kind, sourceID string) (bool, error) {
	for _, m := range t.marks {
		if m.Kind() == kind && m.SourceID() == sourceID {
			return true, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.isProcessedLocked(kind, sourceID), nil
}

func (t *tx) MarkProcessed(_ context.Context, src trigger.Source, userID string, points int) error {
	if err := t.checkUser("MarkProcessed", userID); err != nil {
		return err
	}

	var staged trigger.Source
	switch r := src.(type) {
	case *trigger.CheckIn:
		c := *r
		staged = &c
	case *trigger.Feedback:
		c := *r
		c.FreeText = append([]string(nil), r.FreeText...)
		staged = &c
	case *trigger.Connection:
		c := *r
		staged = &c
	default:
		return shared.ErrUnknownTriggerKind
	}
	staged.MarkProcessed(userID, points)
	t.marks = append(t.marks, staged)
	return nil
}

func (t *tx) EarnedBadgeIDs(_ context.Context, userID string) (map[string]bool, error) {
	out := make(map[string]bool)

	t.store.mu.RLock()
	for id := range t.store.earned[userID] {
		out[id] = true
	}
	t.store.mu.RUnlock()

	for _, eb := range t.badges {
		if eb.UserID == userID {
			out[eb.BadgeID] = true
		}
	}
	return out, nil
}

func (t *tx) CreateEarnedBadge(ctx context.Context, eb badge.EarnedBadge) (bool, error) {
	if err := t.checkUser("CreateEarnedBadge", eb.UserID); err != nil {
		return false, err
	}
	earned, err := t.EarnedBadgeIDs(ctx, eb.UserID)
	if err != nil {
		return false, err
	}
	if earned[eb.BadgeID] {
		return false, nil
	}
	t.badges = append(t.badges, eb)
	return true, nil
}

func (t *tx) InsertAchievements(_ context.Context, list []achievement.Achievement) error {
	for _, a := range list {
		if err := t.checkUser("InsertAchievements", a.UserID); err != nil {
			return err
		}
	}
	t.achievements = append(t.achievements, list...)
	return nil
}

func (t *tx) CountAttendanceSince(_ context.Context, userID string, since time.Time) (int, error) {
	t.store.mu.RLock()
	n := t.store.countAttendanceLocked(userID, &since)
	t.store.mu.RUnlock()

	for _, m := range t.marks {
		c, ok := m.(*trigger.CheckIn)
		if !ok || c.ProcessedUserID != userID || c.EventDate.Before(since) {
			continue
		}
		// Already counted when a stored copy was processed before.
		if t.store.hasProcessedCheckIn(c.ID) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *Store) hasProcessedCheckIn(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.checkIns[id]
	return ok && r.IsProcessed()
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS AND EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// RegisterAccount links an email to a user id. An empty email registers the
// user id alone.
func (s *Store) RegisterAccount(userID, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = struct{}{}
	if e, err := shared.NewEmail(email); err == nil {
		s.emails[e] = userID
	}
}

// ResolveUser implements trigger.AccountResolver.
func (s *Store) ResolveUser(_ context.Context, owner trigger.Owner) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if owner.UserID != "" {
		if _, ok := s.users[owner.UserID]; ok {
			return owner.UserID, nil
		}
	}
	if e, err := shared.NewEmail(owner.Email); err == nil {
		if id, ok := s.emails[e]; ok {
			return id, nil
		}
	}
	return "", shared.ErrAccountNotLinked
}

// PutEvent adds or replaces a catalog event.
func (s *Store) PutEvent(e trigger.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Tags = append([]string(nil), e.Tags...)
	s.events[e.ID] = e
}

// GetEvent implements trigger.EventCatalog.
func (s *Store) GetEvent(_ context.Context, eventID string) (*trigger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[eventID]
	if !ok {
		return nil, shared.WrapError("event", "GetEvent", shared.ErrNotFound, "event "+eventID+" not found", nil)
	}
	e.Tags = append([]string(nil), e.Tags...)
	return &e, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
