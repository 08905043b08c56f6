// Package account holds the in-memory runtime state of one game account.
package account

import (
	"sync"
	"sync/atomic"
)

// Profile is the last known snapshot of an account's game state.
type Profile struct {
	Balance       int64
	ProfitPerHour int64
	League        string
	Energy        int64
	MaxEnergy     int64
	EarnPerTap    int64
}

// Account is shared by every job of one game account. Credential fields are
// guarded by mu; the validity and canceled flags are lock-free.
type Account struct {
	ID       int64
	Phone    string
	AreaCode string

	mu          sync.RWMutex
	loginParam  string
	token       string
	profile     Profile
	inviteLink  string
	friendCount int64

	valid      atomic.Bool
	canceled   atomic.Bool
	escalating atomic.Bool
	started    atomic.Bool
}

// New creates an account. A non-empty login parameter makes the credential
// optimistically valid until a call proves otherwise.
func New(id int64, phone, areaCode, loginParam string) *Account {
	a := &Account{ID: id, Phone: phone, AreaCode: areaCode, loginParam: loginParam}
	a.valid.Store(loginParam != "")
	return a
}

func (a *Account) LoginParam() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loginParam
}

func (a *Account) SetLoginParam(p string) {
	a.mu.Lock()
	a.loginParam = p
	a.mu.Unlock()
}

func (a *Account) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// SetToken stores a freshly exchanged token and marks the credential valid.
func (a *Account) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
	a.valid.Store(true)
}

// Valid reports whether the credential is believed usable.
func (a *Account) Valid() bool { return a.valid.Load() }

// Invalidate marks the credential invalid if used is still the current
// token. It returns false when a newer token has already replaced the used
// one.
func (a *Account) Invalidate(used string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != used {
		return false
	}
	a.valid.Store(false)
	return true
}

// MarkInvalid unconditionally marks the credential invalid.
func (a *Account) MarkInvalid() { a.valid.Store(false) }

func (a *Account) Profile() Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.profile
}

func (a *Account) SetProfile(p Profile) {
	a.mu.Lock()
	a.profile = p
	a.mu.Unlock()
}

// UpdateProfile applies fn to the profile under the lock.
func (a *Account) UpdateProfile(fn func(*Profile)) {
	a.mu.Lock()
	fn(&a.profile)
	a.mu.Unlock()
}

// Referral returns the invite link and friend count from the last friends summary.
func (a *Account) Referral() (string, int64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.inviteLink, a.friendCount
}

func (a *Account) SetReferral(link string, count int64) {
	a.mu.Lock()
	a.inviteLink = link
	a.friendCount = count
	a.mu.Unlock()
}

// Cancel marks the account's jobs as canceled. Only the first call returns true.
func (a *Account) Cancel() bool { return a.canceled.CompareAndSwap(false, true) }

// Canceled reports whether the account's jobs have been torn down.
func (a *Account) Canceled() bool { return a.canceled.Load() }

// BeginEscalation claims the single login escalation slot for this account.
func (a *Account) BeginEscalation() bool { return a.escalating.CompareAndSwap(false, true) }

func (a *Account) EndEscalation() { a.escalating.Store(false) }

func (a *Account) Escalating() bool { return a.escalating.Load() }

// MarkStarted records that the recurring jobs were started. Only the first
// call returns true.
func (a *Account) MarkStarted() bool { return a.started.CompareAndSwap(false, true) }

func (a *Account) Started() bool { return a.started.Load() }

// Status is a point-in-time view for status reporting.
type Status struct {
	ID          int64   `json:"id"`
	Phone       string  `json:"phone"`
	Valid       bool    `json:"valid"`
	Canceled    bool    `json:"canceled"`
	Started     bool    `json:"started"`
	Escalating  bool    `json:"escalating"`
	InviteLink  string  `json:"invite_link,omitempty"`
	FriendCount int64   `json:"friend_count"`
	Profile     Profile `json:"profile"`
}

func (a *Account) Status() Status {
	link, friends := a.Referral()
	return Status{
		ID:          a.ID,
		Phone:       a.Phone,
		Valid:       a.Valid(),
		Canceled:    a.Canceled(),
		Started:     a.Started(),
		Escalating:  a.Escalating(),
		InviteLink:  link,
		FriendCount: friends,
		Profile:     a.Profile(),
	}
}
