package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Account struct {
	UserID      int64
	Balance     int64
	TotalEarned int64
	LastDaily   *time.Time
}

type DailyClaim struct {
	Claimed   bool
	Balance   int64
	NextClaim time.Time
}

func (s *Store) GetBalance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// GetAccount returns a zero account for unknown users.
func (s *Store) GetAccount(ctx context.Context, userID int64) (Account, error) {
	return getAccount(ctx, s.db, userID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAccount(ctx context.Context, q queryRower, userID int64) (Account, error) {
	account := Account{UserID: userID}
	var lastDaily sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT balance, total_earned, last_daily FROM economy WHERE user_id = ?
	`, userID).Scan(&account.Balance, &account.TotalEarned, &lastDaily)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account, nil
		}
		return Account{}, err
	}
	account.LastDaily = nullableUnix(lastDaily)
	return account, nil
}

// AdjustBalance applies delta unconditionally; positive deltas also count toward total earned.
// Nothing here stops the balance from going negative, see Spend for the checked path.
func (s *Store) AdjustBalance(ctx context.Context, userID, delta int64) (int64, error) {
	return adjustBalance(ctx, s.db, userID, delta)
}

func adjustBalance(ctx context.Context, q queryRower, userID, delta int64) (int64, error) {
	earned := delta
	if earned < 0 {
		earned = 0
	}
	var balance int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO economy (user_id, balance, total_earned) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance = balance + excluded.balance,
			total_earned = total_earned + excluded.total_earned
		RETURNING balance
	`, userID, delta, earned).Scan(&balance)
	return balance, err
}

// Spend debits amount only if the balance covers it. ok is false when funds are insufficient,
// in which case balance is the unchanged current balance.
func (s *Store) Spend(ctx context.Context, userID, amount int64) (balance int64, ok bool, err error) {
	if amount <= 0 {
		return 0, false, fmt.Errorf("spend amount must be positive, got %d", amount)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE economy SET balance = balance - ?
			WHERE user_id = ? AND balance >= ?
			RETURNING balance
		`, amount, userID, amount)
		switch scanErr := row.Scan(&balance); {
		case scanErr == nil:
			ok = true
			return nil
		case errors.Is(scanErr, sql.ErrNoRows):
			account, err := getAccount(ctx, tx, userID)
			if err != nil {
				return err
			}
			balance = account.Balance
			return nil
		default:
			return scanErr
		}
	})
	if err != nil {
		return 0, false, err
	}
	return balance, ok, nil
}

// ClaimDaily pays amount once per calendar day in loc.
func (s *Store) ClaimDaily(ctx context.Context, userID, amount int64, now time.Time, loc *time.Location) (DailyClaim, error) {
	if loc == nil {
		loc = time.Local
	}
	var result DailyClaim
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		account, err := getAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		local := now.In(loc)
		tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
		if account.LastDaily != nil && sameDate(account.LastDaily.In(loc), local) {
			result = DailyClaim{Balance: account.Balance, NextClaim: tomorrow}
			return nil
		}

		var balance int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO economy (user_id, balance, total_earned, last_daily) VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				balance = balance + excluded.balance,
				total_earned = total_earned + excluded.total_earned,
				last_daily = excluded.last_daily
			RETURNING balance
		`, userID, amount, amount, now.Unix()).Scan(&balance)
		if err != nil {
			return err
		}
		result = DailyClaim{Claimed: true, Balance: balance, NextClaim: tomorrow}
		return nil
	})
	return result, err
}

// Leaderboard lists accounts by balance, highest first. Zero and negative balances are
// skipped unless includeZero is set.
func (s *Store) Leaderboard(ctx context.Context, limit int, includeZero bool) ([]Account, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, balance, total_earned, last_daily
		FROM economy
		WHERE ? = 1 OR balance > 0
		ORDER BY balance DESC, user_id ASC
		LIMIT ?
	`, boolToInt(includeZero), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var account Account
		var lastDaily sql.NullInt64
		if err := rows.Scan(&account.UserID, &account.Balance, &account.TotalEarned, &lastDaily); err != nil {
			return nil, err
		}
		account.LastDaily = nullableUnix(lastDaily)
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
