package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const accountColumns = `
	id, phone, area_code, login_param,
	access_token, invite_link, friends_count,
	balance, profit_per_hour, league,
	created_at, updated_at, last_authorized_at,
	is_active, is_banned, notes`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*Account, error) {
	a := &Account{}
	err := row.Scan(
		&a.ID, &a.Phone, &a.AreaCode, &a.LoginParam,
		&a.AccessToken, &a.InviteLink, &a.FriendsCount,
		&a.Balance, &a.ProfitPerHour, &a.League,
		&a.CreatedAt, &a.UpdatedAt, &a.LastAuthorizedAt,
		&a.IsActive, &a.IsBanned, &a.Notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAccount inserts a new active account
func (db *DB) CreateAccount(phone, areaCode, loginParam string) (*Account, error) {
	var accountID int64
	err := db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO accounts (phone, area_code, login_param, created_at, is_active, is_banned)
			VALUES (?, ?, ?, ?, 1, 0)
		`, phone, areaCode, loginParam, time.Now())
		if err != nil {
			return fmt.Errorf("failed to insert account: %w", err)
		}
		accountID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return db.GetAccountByID(accountID)
}

// UpsertAccount creates the account or refreshes its area code and, when
// given, its login parameter. It reports whether a row was created.
func (db *DB) UpsertAccount(phone, areaCode, loginParam string) (*Account, bool, error) {
	existing, err := db.GetAccountByPhone(phone)
	if errors.Is(err, ErrNotFound) {
		created, err := db.CreateAccount(phone, areaCode, loginParam)
		return created, err == nil, err
	}
	if err != nil {
		return nil, false, err
	}

	_, err = db.conn.Exec(`
		UPDATE accounts
		SET area_code = ?,
			login_param = CASE WHEN ? = '' THEN login_param ELSE ? END,
			updated_at = ?
		WHERE id = ?
	`, areaCode, loginParam, loginParam, time.Now(), existing.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update account: %w", err)
	}
	updated, err := db.GetAccountByID(existing.ID)
	return updated, false, err
}

// GetAccountByID retrieves an account by its ID
func (db *DB) GetAccountByID(id int64) (*Account, error) {
	return scanAccount(db.conn.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

// GetAccountByPhone retrieves an account by its phone number
func (db *DB) GetAccountByPhone(phone string) (*Account, error) {
	return scanAccount(db.conn.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE phone = ?`, phone))
}

// ListActiveAccounts returns accounts that are active and not banned
func (db *DB) ListActiveAccounts() ([]*Account, error) {
	return db.queryAccounts(`SELECT ` + accountColumns + ` FROM accounts WHERE is_active = 1 AND is_banned = 0 ORDER BY id`)
}

// ListAccounts returns every account
func (db *DB) ListAccounts() ([]*Account, error) {
	return db.queryAccounts(`SELECT ` + accountColumns + ` FROM accounts ORDER BY id`)
}

func (db *DB) queryAccounts(query string, args ...interface{}) ([]*Account, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccountMetadata stores the credential, referral and profile
// snapshot taken after an authorization
func (db *DB) UpdateAccountMetadata(m AccountMetadata) error {
	now := time.Now()
	res, err := db.conn.Exec(`
		UPDATE accounts
		SET access_token = ?, invite_link = ?, friends_count = ?,
			balance = ?, profit_per_hour = ?, league = ?,
			updated_at = ?, last_authorized_at = ?
		WHERE id = ?
	`, m.AccessToken, m.InviteLink, m.FriendsCount,
		m.Balance, m.ProfitPerHour, m.League,
		now, now, m.AccountID)
	if err != nil {
		return fmt.Errorf("failed to update account metadata: %w", err)
	}
	return requireRow(res)
}

// SetAccountActive sets the active status of an account
func (db *DB) SetAccountActive(id int64, active bool) error {
	res, err := db.conn.Exec(`UPDATE accounts SET is_active = ?, updated_at = ? WHERE id = ?`, active, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkAccountBanned marks an account as banned and inactive
func (db *DB) MarkAccountBanned(id int64, note string) error {
	res, err := db.conn.Exec(`
		UPDATE accounts SET is_banned = 1, is_active = 0, notes = ?, updated_at = ? WHERE id = ?
	`, note, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// IsAccountBanned reports the stored ban flag
func (db *DB) IsAccountBanned(id int64) (bool, error) {
	var banned bool
	err := db.conn.QueryRow(`SELECT is_banned FROM accounts WHERE id = ?`, id).Scan(&banned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return banned, err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
