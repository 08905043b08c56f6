// Package login hands rejected accounts to the external login tool and waits
// for it to deliver a fresh login parameter.
//
// A request row is written to login_requests. The tool (or an operator via
// the admin API) answers by saving a new login_info row, which Reacquire
// picks up by polling.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/credential"
	"jordanella.com/paws-farm-go/internal/database"
	"jordanella.com/paws-farm-go/internal/logging"
	"jordanella.com/paws-farm-go/internal/poller"
)

// Store is the slice of the database the reacquirer needs.
type Store interface {
	CreateLoginRequest(id string, accountID int64, attempt int) error
	CloseLoginRequest(id string) error
	LatestLoginInfo(accountID int64) (*database.LoginInfo, error)
	IsAccountBanned(id int64) (bool, error)
}

// StoreReacquirer implements credential.Reacquirer on top of Store.
type StoreReacquirer struct {
	store    Store
	wait     time.Duration
	interval time.Duration
	now      poller.Clock
	sleep    poller.Sleeper
	logger   *logging.Logger
}

var _ credential.Reacquirer = (*StoreReacquirer)(nil)

// NewStoreReacquirer waits up to wait for each request, checking every interval.
func NewStoreReacquirer(store Store, wait, interval time.Duration) *StoreReacquirer {
	return &StoreReacquirer{
		store:    store,
		wait:     wait,
		interval: interval,
		now:      time.Now,
		sleep:    poller.SleepContext,
		logger:   logging.NewLogger("Login"),
	}
}

// WithClock swaps the poll clock, for tests.
func (r *StoreReacquirer) WithClock(now poller.Clock, sleep poller.Sleeper) *StoreReacquirer {
	r.now = now
	r.sleep = sleep
	return r
}

// Reacquire files a login request and blocks until a newer login parameter
// shows up, the wait runs out, or the account turns out to be banned.
func (r *StoreReacquirer) Reacquire(ctx context.Context, acct *account.Account, attempt int) (bool, error) {
	if err := r.checkBanned(acct.ID); err != nil {
		return false, err
	}

	baseline, err := r.latestID(acct.ID)
	if err != nil {
		return false, err
	}

	reqID := uuid.NewString()
	if err := r.store.CreateLoginRequest(reqID, acct.ID, attempt); err != nil {
		return false, err
	}
	log := r.logger.WithContext(map[string]interface{}{
		"account_id": acct.ID,
		"phone":      acct.Phone,
		"request_id": reqID,
		"attempt":    attempt,
	})
	log.Info("login requested")

	res, err := poller.New("login-"+reqID, func(ctx context.Context) (*database.LoginInfo, error) {
		if err := r.checkBanned(acct.ID); err != nil {
			return nil, err
		}
		info, err := r.store.LatestLoginInfo(acct.ID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return info, err
	}).
		Timing(r.wait, r.interval).
		Until(func(info *database.LoginInfo) bool { return info != nil && info.ID > baseline }).
		OnTimeout(func() error { return r.store.CloseLoginRequest(reqID) }).
		WithClock(r.now, r.sleep).
		WithLogger(r.logger).
		Poll(ctx)
	if err != nil {
		if errors.Is(err, credential.ErrBanned) {
			log.Warn("account reported banned while waiting for login")
		}
		return false, err
	}
	if !res.OK {
		log.WarnWith("login request timed out", map[string]interface{}{"checks": res.Attempts})
		return false, nil
	}

	acct.SetLoginParam(res.Value.LoginParam)
	log.InfoWith("login parameter received", map[string]interface{}{"source": res.Value.Source})
	return true, nil
}

func (r *StoreReacquirer) checkBanned(id int64) error {
	banned, err := r.store.IsAccountBanned(id)
	if err != nil {
		return fmt.Errorf("ban check: %w", err)
	}
	if banned {
		return credential.ErrBanned
	}
	return nil
}

func (r *StoreReacquirer) latestID(id int64) (int64, error) {
	info, err := r.store.LatestLoginInfo(id)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.ID, nil
}
