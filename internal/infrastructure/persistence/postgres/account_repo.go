package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS & EVENTS
// ══════════════════════════════════════════════════════════════════════════════

var (
	_ trigger.AccountResolver = (*AccountRepository)(nil)
	_ trigger.EventCatalog    = (*EventRepository)(nil)
)

// AccountRepository links trigger owners to user accounts.
type AccountRepository struct {
	conn *Connection
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(conn *Connection) *AccountRepository {
	return &AccountRepository{conn: conn}
}

// ResolveUser implements trigger.AccountResolver. The user id wins when it
// names a known account; otherwise the email is matched case-insensitively.
func (r *AccountRepository) ResolveUser(ctx context.Context, owner trigger.Owner) (string, error) {
	var id string
	if owner.UserID != "" {
		err := r.conn.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1`, owner.UserID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !IsNoRows(err) {
			return "", fmt.Errorf("resolve account %s: %w", owner.UserID, err)
		}
	}

	if email, err := shared.NewEmail(owner.Email); err == nil {
		err := r.conn.QueryRow(ctx, `SELECT id FROM accounts WHERE lower(email) = $1`, email.String()).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !IsNoRows(err) {
			return "", fmt.Errorf("resolve account by email: %w", err)
		}
	}

	return "", shared.ErrAccountNotLinked
}

// RegisterAccount creates or updates an account.
func (r *AccountRepository) RegisterAccount(ctx context.Context, userID, email string) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO accounts (id, email) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
	`, userID, nullString(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("register account %s: %w", userID, err)
	}
	return nil
}

// EventRepository reads the event catalog.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

// GetEvent implements trigger.EventCatalog.
func (r *EventRepository) GetEvent(ctx context.Context, eventID string) (*trigger.Event, error) {
	var e trigger.Event
	err := r.conn.QueryRow(ctx, `
		SELECT id, name, event_date, start_at, tags, is_vip, connection_points
		FROM events WHERE id = $1
	`, eventID).Scan(&e.ID, &e.Name, &e.Date, &e.StartAt, &e.Tags, &e.IsVIP, &e.ConnectionPoints)
	if IsNoRows(err) {
		return nil, shared.WrapError("event", "GetEvent", shared.ErrNotFound, "event "+eventID+" not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &e, nil
}

// UpsertEvent creates or replaces a catalog event.
func (r *EventRepository) UpsertEvent(ctx context.Context, e trigger.Event) error {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO events (id, name, event_date, start_at, tags, is_vip, connection_points)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			event_date = EXCLUDED.event_date,
			start_at = EXCLUDED.start_at,
			tags = EXCLUDED.tags,
			is_vip = EXCLUDED.is_vip,
			connection_points = EXCLUDED.connection_points
	`, e.ID, e.Name, e.Date, e.StartAt, tags, e.IsVIP, e.ConnectionPoints)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", e.ID, err)
	}
	return nil
}
