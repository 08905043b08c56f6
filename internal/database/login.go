package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveLoginInfo records a freshly minted login parameter and makes it the
// account's current one. Pending login requests for the account are marked
// fulfilled.
func (db *DB) SaveLoginInfo(accountID int64, loginParam, source string) error {
	now := time.Now()
	return db.ExecTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE accounts SET login_param = ?, updated_at = ? WHERE id = ?`, loginParam, now, accountID)
		if err != nil {
			return fmt.Errorf("failed to update login param: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO login_info (account_id, login_param, source, logged_in_at) VALUES (?, ?, ?, ?)
		`, accountID, loginParam, source, now); err != nil {
			return fmt.Errorf("failed to insert login info: %w", err)
		}
		_, err = tx.Exec(`
			UPDATE login_requests SET fulfilled_at = ? WHERE account_id = ? AND fulfilled_at IS NULL
		`, now, accountID)
		return err
	})
}

// LatestLoginInfo returns the newest login parameter minted for an account
func (db *DB) LatestLoginInfo(accountID int64) (*LoginInfo, error) {
	li := &LoginInfo{}
	err := db.conn.QueryRow(`
		SELECT id, account_id, login_param, source, logged_in_at
		FROM login_info WHERE account_id = ?
		ORDER BY logged_in_at DESC, id DESC LIMIT 1
	`, accountID).Scan(&li.ID, &li.AccountID, &li.LoginParam, &li.Source, &li.LoggedInAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return li, nil
}

// CreateLoginRequest records that a fresh login is needed for an account
func (db *DB) CreateLoginRequest(id string, accountID int64, attempt int) error {
	_, err := db.conn.Exec(`
		INSERT INTO login_requests (id, account_id, attempt, requested_at) VALUES (?, ?, ?, ?)
	`, id, accountID, attempt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert login request: %w", err)
	}
	return nil
}

// CloseLoginRequest marks a request fulfilled without a new login, e.g. on timeout
func (db *DB) CloseLoginRequest(id string) error {
	_, err := db.conn.Exec(`UPDATE login_requests SET fulfilled_at = ? WHERE id = ? AND fulfilled_at IS NULL`, time.Now(), id)
	return err
}

// ListPendingLoginRequests returns unfulfilled requests, oldest first
func (db *DB) ListPendingLoginRequests() ([]*LoginRequest, error) {
	rows, err := db.conn.Query(`
		SELECT r.id, r.account_id, a.phone, r.attempt, r.requested_at, r.fulfilled_at
		FROM login_requests r JOIN accounts a ON a.id = r.account_id
		WHERE r.fulfilled_at IS NULL
		ORDER BY r.requested_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LoginRequest
	for rows.Next() {
		r := &LoginRequest{}
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Phone, &r.Attempt, &r.RequestedAt, &r.FulfilledAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
