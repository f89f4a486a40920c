package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	ModmailOpen   = "open"
	ModmailClosed = "closed"
)

type TempChannel struct {
	ChannelID int64
	OwnerID   int64
	CreatedAt time.Time
}

type ModmailThread struct {
	ID        int64
	UserID    int64
	ChannelID int64
	Status    string
	CreatedAt time.Time
	ClosedAt  *time.Time
}

func (s *Store) ClaimTempChannel(ctx context.Context, channelID, ownerID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO temp_voice_channels (channel_id, owner_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET owner_id = excluded.owner_id, created_at = excluded.created_at
	`, channelID, ownerID, at.Unix())
	return err
}

// ReleaseTempChannel forgets the channel and reports whether it was tracked.
func (s *Store) ReleaseTempChannel(ctx context.Context, channelID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM temp_voice_channels WHERE channel_id = ?`, channelID)
	return affectedOne(res, err)
}

func (s *Store) GetTempChannelOwner(ctx context.Context, channelID int64) (int64, bool, error) {
	var owner int64
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM temp_voice_channels WHERE channel_id = ?`, channelID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return owner, true, nil
}

func (s *Store) ListTempChannels(ctx context.Context) ([]TempChannel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id, owner_id, created_at FROM temp_voice_channels ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []TempChannel
	for rows.Next() {
		var channel TempChannel
		var created int64
		if err := rows.Scan(&channel.ChannelID, &channel.OwnerID, &created); err != nil {
			return nil, err
		}
		channel.CreatedAt = time.Unix(created, 0)
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

// OpenModmail records a thread unless the user already has an open one, in which case it returns false.
func (s *Store) OpenModmail(ctx context.Context, userID, channelID int64, at time.Time) (bool, error) {
	opened := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM modmail_threads WHERE user_id = ? AND status = ? LIMIT 1
		`, userID, ModmailOpen).Scan(&existing)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO modmail_threads (user_id, channel_id, status, created_at) VALUES (?, ?, ?, ?)
		`, userID, channelID, ModmailOpen, at.Unix()); err != nil {
			return err
		}
		opened = true
		return nil
	})
	return opened, err
}

// CloseModmail closes the open thread bound to channelID and returns its user.
func (s *Store) CloseModmail(ctx context.Context, channelID int64, at time.Time) (int64, bool, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE modmail_threads SET status = ?, closed_at = ?
		WHERE channel_id = ? AND status = ?
		RETURNING user_id
	`, ModmailClosed, at.Unix(), channelID, ModmailOpen).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return userID, true, nil
}

func (s *Store) GetOpenModmailChannel(ctx context.Context, userID int64) (int64, bool, error) {
	var channelID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT channel_id FROM modmail_threads WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, userID, ModmailOpen).Scan(&channelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return channelID, true, nil
}

func (s *Store) GetOpenModmailUser(ctx context.Context, channelID int64) (int64, bool, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM modmail_threads WHERE channel_id = ? AND status = ? LIMIT 1
	`, channelID, ModmailOpen).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return userID, true, nil
}

func (s *Store) ListModmailThreads(ctx context.Context, userID int64) ([]ModmailThread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, channel_id, status, created_at, closed_at
		FROM modmail_threads WHERE user_id = ? ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []ModmailThread
	for rows.Next() {
		var thread ModmailThread
		var created int64
		var closed sql.NullInt64
		if err := rows.Scan(&thread.ID, &thread.UserID, &thread.ChannelID, &thread.Status, &created, &closed); err != nil {
			return nil, err
		}
		thread.CreatedAt = time.Unix(created, 0)
		thread.ClosedAt = nullableUnix(closed)
		threads = append(threads, thread)
	}
	return threads, rows.Err()
}
