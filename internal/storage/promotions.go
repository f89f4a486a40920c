package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ApplyPromotion records the promotion marker and pays bonus in one transaction.
// It returns false without paying when the user was already promoted.
func (s *Store) ApplyPromotion(ctx context.Context, userID, bonus int64, at time.Time) (bool, error) {
	paid := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO promotions (user_id, bonus, promoted_at) VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO NOTHING
		`, userID, bonus, at.Unix())
		inserted, err := affectedOne(res, err)
		if err != nil || !inserted {
			return err
		}
		if bonus > 0 {
			if _, err := adjustBalance(ctx, tx, userID, bonus); err != nil {
				return err
			}
		}
		paid = true
		return nil
	})
	return paid, err
}

func (s *Store) IsPromoted(ctx context.Context, userID int64) (bool, error) {
	var at int64
	err := s.db.QueryRowContext(ctx, `SELECT promoted_at FROM promotions WHERE user_id = ?`, userID).Scan(&at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
