package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Event struct {
	ID          string
	CreatorID   int64
	Title       string
	Description string
	MessageID   int64
	ChannelID   int64
	CreatedAt   time.Time
}

// Registration is one sign-up for an event or a raid. Notes is only used by raids.
type Registration struct {
	ActivityID   string
	UserID       int64
	DisplayName  string
	Role         string
	Notes        string
	RegisteredAt time.Time
}

func (s *Store) CreateEvent(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (event_id, creator_id, title, description, message_id, channel_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.CreatorID, event.Title, event.Description, event.MessageID, event.ChannelID, event.CreatedAt.Unix())
	return err
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (Event, bool, error) {
	return s.scanEvent(s.db.QueryRowContext(ctx, `
		SELECT event_id, creator_id, title, description, message_id, channel_id, created_at
		FROM events WHERE event_id = ?
	`, eventID))
}

// FindEventByMessage resolves the event anchored to a posted message.
func (s *Store) FindEventByMessage(ctx context.Context, messageID int64) (Event, bool, error) {
	return s.scanEvent(s.db.QueryRowContext(ctx, `
		SELECT event_id, creator_id, title, description, message_id, channel_id, created_at
		FROM events WHERE message_id = ?
	`, messageID))
}

func (s *Store) scanEvent(row *sql.Row) (Event, bool, error) {
	var event Event
	var created int64
	err := row.Scan(&event.ID, &event.CreatorID, &event.Title, &event.Description, &event.MessageID, &event.ChannelID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, false, nil
		}
		return Event{}, false, err
	}
	event.CreatedAt = time.Unix(created, 0)
	return event, true, nil
}

// RegisterEventRole inserts a sign-up and returns false when the user is already registered for the event.
func (s *Store) RegisterEventRole(ctx context.Context, eventID string, userID int64, displayName, role string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO event_registrations (event_id, user_id, display_name, role, registered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id, user_id) DO NOTHING
	`, eventID, userID, displayName, role, at.Unix())
	return affectedOne(res, err)
}

func (s *Store) GetEventRegistration(ctx context.Context, eventID string, userID int64) (Registration, bool, error) {
	reg := Registration{ActivityID: eventID, UserID: userID}
	var at int64
	err := s.db.QueryRowContext(ctx, `
		SELECT display_name, role, registered_at FROM event_registrations WHERE event_id = ? AND user_id = ?
	`, eventID, userID).Scan(&reg.DisplayName, &reg.Role, &at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Registration{}, false, nil
		}
		return Registration{}, false, err
	}
	reg.RegisteredAt = time.Unix(at, 0)
	return reg, true, nil
}

// ListEventRegistrations returns sign-ups first come, first served.
func (s *Store) ListEventRegistrations(ctx context.Context, eventID string) ([]Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, user_id, display_name, role, '', registered_at
		FROM event_registrations WHERE event_id = ?
		ORDER BY registered_at ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, err
	}
	return scanRegistrations(rows)
}

// RegisterRaidRole inserts a sign-up and returns false when the user is already registered for the raid.
func (s *Store) RegisterRaidRole(ctx context.Context, raidID string, userID int64, displayName, role, notes string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO raid_registrations (raid_id, user_id, display_name, role, notes, registered_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(raid_id, user_id) DO NOTHING
	`, raidID, userID, displayName, role, notes, at.Unix())
	return affectedOne(res, err)
}

func (s *Store) ListRaidRegistrations(ctx context.Context, raidID string) ([]Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT raid_id, user_id, display_name, role, notes, registered_at
		FROM raid_registrations WHERE raid_id = ?
		ORDER BY registered_at ASC, id ASC
	`, raidID)
	if err != nil {
		return nil, err
	}
	return scanRegistrations(rows)
}

func scanRegistrations(rows *sql.Rows) ([]Registration, error) {
	defer rows.Close()

	var regs []Registration
	for rows.Next() {
		var reg Registration
		var at int64
		if err := rows.Scan(&reg.ActivityID, &reg.UserID, &reg.DisplayName, &reg.Role, &reg.Notes, &at); err != nil {
			return nil, err
		}
		reg.RegisteredAt = time.Unix(at, 0)
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
