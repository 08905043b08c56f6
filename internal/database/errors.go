package database

import (
	"fmt"
	"time"
)

// LogError creates a new error log entry. accountID may be nil for
// process-level errors.
func (db *DB) LogError(accountID *int64, errorType, errorSeverity, errorMessage string) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO error_log (account_id, error_type, error_severity, error_message, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, accountID, errorType, errorSeverity, errorMessage, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert error log: %w", err)
	}
	return result.LastInsertId()
}

// GetRecentErrors returns the newest error log entries
func (db *DB) GetRecentErrors(limit int) ([]*ErrorLog, error) {
	rows, err := db.conn.Query(`
		SELECT id, account_id, error_type, error_severity, error_message, occurred_at
		FROM error_log
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ErrorLog
	for rows.Next() {
		e := &ErrorLog{}
		if err := rows.Scan(&e.ID, &e.AccountID, &e.ErrorType, &e.ErrorSeverity, &e.ErrorMessage, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
