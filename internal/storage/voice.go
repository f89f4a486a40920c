package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type VoiceActivity struct {
	UserID       int64
	TotalMinutes int64
	SessionStart *time.Time
	LastUpdate   *time.Time
}

// InVoice reports whether a session is currently open.
func (v VoiceActivity) InVoice() bool {
	return v.SessionStart != nil
}

func (s *Store) GetVoiceActivity(ctx context.Context, userID int64) (VoiceActivity, error) {
	return getVoiceActivity(ctx, s.db, userID)
}

func getVoiceActivity(ctx context.Context, q queryRower, userID int64) (VoiceActivity, error) {
	activity := VoiceActivity{UserID: userID}
	var start, updated sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT total_minutes, session_start, last_update FROM voice_activity WHERE user_id = ?
	`, userID).Scan(&activity.TotalMinutes, &start, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return activity, nil
		}
		return VoiceActivity{}, err
	}
	activity.SessionStart = nullableUnix(start)
	activity.LastUpdate = nullableUnix(updated)
	return activity, nil
}

// SetVoiceSessionStart opens (non-nil) or clears (nil) the session without touching total minutes.
func (s *Store) SetVoiceSessionStart(ctx context.Context, userID int64, start *time.Time, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO voice_activity (user_id, total_minutes, session_start, last_update) VALUES (?, 0, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_start = excluded.session_start,
			last_update = excluded.last_update
	`, userID, unixOrNil(start), now.Unix())
	return err
}

// AddVoiceMinutes increments total minutes and clears the open session as a side effect.
func (s *Store) AddVoiceMinutes(ctx context.Context, userID, minutes int64, now time.Time) error {
	if minutes < 0 {
		minutes = 0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO voice_activity (user_id, total_minutes, session_start, last_update) VALUES (?, ?, NULL, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_minutes = total_minutes + excluded.total_minutes,
			session_start = NULL,
			last_update = excluded.last_update
	`, userID, minutes, now.Unix())
	return err
}

// CloseVoiceSegment credits the whole minutes elapsed since the open session started.
// With reopen set the session restarts at now (channel switch); otherwise it is cleared.
// Without an open session nothing is credited. Elapsed time before the session start counts as zero.
func (s *Store) CloseVoiceSegment(ctx context.Context, userID int64, now time.Time, reopen bool) (int64, error) {
	var minutes int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		activity, err := getVoiceActivity(ctx, tx, userID)
		if err != nil {
			return err
		}
		if activity.SessionStart != nil {
			minutes = ElapsedMinutes(*activity.SessionStart, now)
		}

		var next any
		if reopen {
			next = now.Unix()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO voice_activity (user_id, total_minutes, session_start, last_update) VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				total_minutes = total_minutes + excluded.total_minutes,
				session_start = excluded.session_start,
				last_update = excluded.last_update
		`, userID, minutes, next, now.Unix())
		return err
	})
	if err != nil {
		return 0, err
	}
	return minutes, nil
}

// ElapsedMinutes floors the span between start and end to whole minutes.
func ElapsedMinutes(start, end time.Time) int64 {
	seconds := end.Unix() - start.Unix()
	if seconds <= 0 {
		return 0
	}
	return seconds / 60
}
