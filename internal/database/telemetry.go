package database

import (
	"fmt"
	"time"
)

// RecordMining stores the telemetry of one mine call
func (db *DB) RecordMining(r MiningRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO mining_info (account_id, cycle_id, earn_per_tap, count, mined, remaining_energy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.AccountID, r.CycleID, r.EarnPerTap, r.Count, r.Mined, r.RemainingEnergy, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert mining info: %w", err)
	}
	return nil
}

// ListMining returns an account's newest mining records
func (db *DB) ListMining(accountID int64, limit int) ([]*MiningRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, account_id, cycle_id, earn_per_tap, count, mined, remaining_energy, created_at
		FROM mining_info WHERE account_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MiningRecord
	for rows.Next() {
		r := &MiningRecord{}
		if err := rows.Scan(&r.ID, &r.AccountID, &r.CycleID, &r.EarnPerTap, &r.Count, &r.Mined, &r.RemainingEnergy, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordUpgrade stores one purchased upgrade
func (db *DB) RecordUpgrade(r UpgradeRecord) error {
	if r.PurchasedAt.IsZero() {
		r.PurchasedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO upgrade_log (account_id, card_id, card_name, cost, ratio, balance_after, purchased_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.AccountID, r.CardID, r.CardName, r.Cost, r.Ratio, r.BalanceAfter, r.PurchasedAt)
	if err != nil {
		return fmt.Errorf("failed to insert upgrade log: %w", err)
	}
	return nil
}

// ListUpgrades returns an account's newest purchases
func (db *DB) ListUpgrades(accountID int64, limit int) ([]*UpgradeRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, account_id, card_id, card_name, cost, ratio, balance_after, purchased_at
		FROM upgrade_log WHERE account_id = ?
		ORDER BY purchased_at DESC, id DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UpgradeRecord
	for rows.Next() {
		r := &UpgradeRecord{}
		if err := rows.Scan(&r.ID, &r.AccountID, &r.CardID, &r.CardName, &r.Cost, &r.Ratio, &r.BalanceAfter, &r.PurchasedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
