package database

import (
	"time"
)

// Account is a stored game account
type Account struct {
	ID         int64  `db:"id"`
	Phone      string `db:"phone"`
	AreaCode   string `db:"area_code"`
	LoginParam string `db:"login_param"`

	AccessToken  string `db:"access_token"`
	InviteLink   string `db:"invite_link"`
	FriendsCount int64  `db:"friends_count"`

	Balance       int64  `db:"balance"`
	ProfitPerHour int64  `db:"profit_per_hour"`
	League        string `db:"league"`

	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at"`
	LastAuthorizedAt *time.Time `db:"last_authorized_at"`

	IsActive bool    `db:"is_active"`
	IsBanned bool    `db:"is_banned"`
	Notes    *string `db:"notes"`
}

// AccountMetadata is written after every successful authorization
type AccountMetadata struct {
	AccountID     int64
	AccessToken   string
	InviteLink    string
	FriendsCount  int64
	Balance       int64
	ProfitPerHour int64
	League        string
}

// LoginInfo is one login parameter minted for an account
type LoginInfo struct {
	ID         int64     `db:"id"`
	AccountID  int64     `db:"account_id"`
	LoginParam string    `db:"login_param"`
	Source     string    `db:"source"`
	LoggedInAt time.Time `db:"logged_in_at"`
}

// LoginRequest asks the external login tool for a fresh login parameter
type LoginRequest struct {
	ID          string     `db:"id"`
	AccountID   int64      `db:"account_id"`
	Phone       string     `db:"phone"`
	Attempt     int        `db:"attempt"`
	RequestedAt time.Time  `db:"requested_at"`
	FulfilledAt *time.Time `db:"fulfilled_at"`
}

// MiningRecord is the telemetry of one mine call
type MiningRecord struct {
	ID              int64     `db:"id"`
	AccountID       int64     `db:"account_id"`
	CycleID         string    `db:"cycle_id"`
	EarnPerTap      int64     `db:"earn_per_tap"`
	Count           int64     `db:"count"`
	Mined           int64     `db:"mined"`
	RemainingEnergy int64     `db:"remaining_energy"`
	CreatedAt       time.Time `db:"created_at"`
}

// UpgradeRecord is one purchased upgrade
type UpgradeRecord struct {
	ID           int64     `db:"id"`
	AccountID    int64     `db:"account_id"`
	CardID       int64     `db:"card_id"`
	CardName     string    `db:"card_name"`
	Cost         string    `db:"cost"`
	Ratio        string    `db:"ratio"`
	BalanceAfter int64     `db:"balance_after"`
	PurchasedAt  time.Time `db:"purchased_at"`
}

// ErrorLog represents a persisted error
type ErrorLog struct {
	ID            int64     `db:"id"`
	AccountID     *int64    `db:"account_id"`
	ErrorType     string    `db:"error_type"`
	ErrorSeverity string    `db:"error_severity"`
	ErrorMessage  string    `db:"error_message"`
	OccurredAt    time.Time `db:"occurred_at"`
}
