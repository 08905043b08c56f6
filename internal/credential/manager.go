// Package credential keeps each account's access token valid.
//
// The token is refreshed by exchanging the account's long-lived login
// parameter. Concurrent callers that observe an invalid token serialize on a
// per-account lock and re-check validity before exchanging, so one refresh
// serves all of them. A rejected login parameter escalates to an external
// login collaborator a bounded number of times before the account is
// declared dead.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/game"
	"jordanella.com/paws-farm-go/internal/logging"
	"jordanella.com/paws-farm-go/internal/poller"
)

// ErrBanned is returned by a Reacquirer when the account has been banned.
var ErrBanned = errors.New("account banned")

// Exchanger trades a login parameter for a profile carrying an access token.
type Exchanger interface {
	Authorize(ctx context.Context, loginParam string) *game.Response
}

// Reacquirer mints a fresh login parameter for acct and stores it on the
// account. It reports false when this attempt did not produce one.
type Reacquirer interface {
	Reacquire(ctx context.Context, acct *account.Account, attempt int) (bool, error)
}

// Result is the outcome of one exchange.
type Result int

const (
	ResultAuthorized Result = iota
	ResultRejected
	ResultUnavailable
	ResultMalformed
	ResultSkipped
)

func (r Result) String() string {
	return [...]string{"authorized", "rejected", "unavailable", "malformed", "skipped"}[r]
}

// Hooks are invoked outside the account lock.
type Hooks struct {
	// Authorized runs after every successful exchange with its profile payload.
	Authorized func(ctx context.Context, acct *account.Account, profile game.Payload)
	// Escalated runs when a login escalation starts.
	Escalated func(acct *account.Account)
	// Dead runs once when the account can no longer be logged in.
	Dead func(acct *account.Account, reason error, banned bool)
	// Malformed runs when authorize succeeded with an unusable body.
	Malformed func(acct *account.Account, err error)
}

type hookKey struct{}

// inHook marks ctx as running an Authorized hook for acct. Calls made from
// the hook must not start another exchange for the same account.
func inHook(ctx context.Context, acct *account.Account) context.Context {
	return context.WithValue(ctx, hookKey{}, acct.ID)
}

func runningHook(ctx context.Context, acct *account.Account) bool {
	id, ok := ctx.Value(hookKey{}).(int64)
	return ok && id == acct.ID
}

// Recorder receives exchange outcomes, for metrics.
type Recorder interface {
	ObserveExchange(result string)
}

// Options bound the login escalation.
type Options struct {
	MaxLoginAttempts int
	RetryPause       time.Duration
}

// DefaultOptions are three login attempts three seconds apart.
func DefaultOptions() Options {
	return Options{MaxLoginAttempts: 3, RetryPause: 3 * time.Second}
}

// Manager owns the per-account locks and the escalation goroutines.
type Manager struct {
	exchanger  Exchanger
	reacquirer Reacquirer
	locks      *LockTable
	opts       Options
	hooks      Hooks
	recorder   Recorder
	logger     *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager. locks may be nil to get a private table.
func NewManager(exchanger Exchanger, reacquirer Reacquirer, locks *LockTable, opts Options) *Manager {
	if locks == nil {
		locks = NewLockTable()
	}
	if opts.MaxLoginAttempts < 1 {
		opts.MaxLoginAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		exchanger:  exchanger,
		reacquirer: reacquirer,
		locks:      locks,
		opts:       opts,
		logger:     logging.NewLogger("Credential"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetHooks installs the lifecycle callbacks. Call before use.
func (m *Manager) SetHooks(h Hooks) { m.hooks = h }

// SetRecorder installs the metrics recorder. Call before use.
func (m *Manager) SetRecorder(r Recorder) { m.recorder = r }

// Reauthorize implements game.Reauthorizer with the double-checked pattern.
func (m *Manager) Reauthorize(ctx context.Context, acct *account.Account) bool {
	if acct.Canceled() {
		return false
	}
	if runningHook(ctx, acct) {
		m.logger.WarnWithContext("token rejected right after authorization, not exchanging again", map[string]interface{}{
			"account": acct.ID,
			"phone":   acct.Phone,
		})
		return false
	}

	lock := m.locks.For(acct.ID)
	lock.Lock()
	if acct.Valid() {
		lock.Unlock()
		return true
	}
	res, profile, err := m.exchange(ctx, acct)
	lock.Unlock()

	m.after(ctx, acct, res, profile, err)
	return res == ResultAuthorized
}

// Refresh exchanges unconditionally, keeping the account active upstream.
func (m *Manager) Refresh(ctx context.Context, acct *account.Account) Result {
	lock := m.locks.For(acct.ID)
	lock.Lock()
	res, profile, err := m.exchange(ctx, acct)
	lock.Unlock()

	m.after(ctx, acct, res, profile, err)
	return res
}

// exchange must be called with the account lock held. The error is set only
// for ResultMalformed.
func (m *Manager) exchange(ctx context.Context, acct *account.Account) (Result, game.Payload, error) {
	log := m.logger.WithContext(map[string]interface{}{"account": acct.ID, "phone": acct.Phone})

	if acct.Canceled() {
		return m.record(ResultSkipped), nil, nil
	}
	param := acct.LoginParam()
	if param == "" {
		log.Warn("no login parameter stored")
		acct.MarkInvalid()
		return m.record(ResultRejected), nil, nil
	}

	resp := m.exchanger.Authorize(ctx, param)
	switch resp.Outcome {
	case game.OutcomeSuccess:
		profile, err := resp.Decode()
		if err != nil {
			log.Error("authorize returned an undecodable profile", err)
			return m.record(ResultMalformed), nil, fmt.Errorf("authorize: %w", err)
		}
		token := profile.String("access_token")
		if token == "" {
			err := fmt.Errorf("authorize: %w: missing access_token", game.ErrMalformedResponse)
			log.Error("authorize returned no access token", err)
			return m.record(ResultMalformed), nil, err
		}
		acct.SetToken(token)
		acct.SetProfile(game.ProfileFrom(profile, acct.Profile()))
		log.InfoWith("authorized", map[string]interface{}{"body": logging.Truncate(string(resp.Body), 200)})
		return m.record(ResultAuthorized), profile, nil

	case game.OutcomeRejected:
		acct.MarkInvalid()
		log.WarnWith("login parameter rejected", map[string]interface{}{"body": logging.Truncate(string(resp.Body), 500)})
		return m.record(ResultRejected), nil, nil

	default:
		extra := map[string]interface{}{"status": resp.Status, "body": logging.Truncate(string(resp.Body), 500)}
		if resp.Err != nil {
			extra["cause"] = resp.Err.Error()
		}
		log.WarnWith("authorize unavailable", extra)
		return m.record(ResultUnavailable), nil, nil
	}
}

func (m *Manager) record(r Result) Result {
	if m.recorder != nil {
		m.recorder.ObserveExchange(r.String())
	}
	return r
}

func (m *Manager) after(ctx context.Context, acct *account.Account, res Result, profile game.Payload, err error) {
	switch res {
	case ResultAuthorized:
		m.authorized(ctx, acct, profile)
	case ResultRejected:
		m.Escalate(acct)
	case ResultMalformed:
		if m.hooks.Malformed != nil && err != nil {
			m.hooks.Malformed(acct, err)
		}
	}
}

func (m *Manager) authorized(ctx context.Context, acct *account.Account, profile game.Payload) {
	if m.hooks.Authorized != nil {
		m.hooks.Authorized(inHook(ctx, acct), acct, profile)
	}
}

// Escalate starts the login escalation for acct unless one is already
// running or the account is canceled. It does not block.
func (m *Manager) Escalate(acct *account.Account) {
	if acct.Canceled() || m.reacquirer == nil || !acct.BeginEscalation() {
		return
	}
	if m.hooks.Escalated != nil {
		m.hooks.Escalated(acct)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer acct.EndEscalation()
		m.escalate(m.ctx, acct)
	}()
}

func (m *Manager) escalate(ctx context.Context, acct *account.Account) {
	log := m.logger.WithContext(map[string]interface{}{"account": acct.ID, "phone": acct.Phone})

	for attempt := 1; attempt <= m.opts.MaxLoginAttempts; attempt++ {
		if acct.Canceled() || ctx.Err() != nil {
			return
		}

		ok, err := m.reacquirer.Reacquire(ctx, acct, attempt)
		switch {
		case errors.Is(err, ErrBanned):
			m.dead(acct, err, true)
			return
		case err != nil:
			log.ErrorWith("login attempt failed", err, map[string]interface{}{"attempt": attempt})
		case ok:
			lock := m.locks.For(acct.ID)
			lock.Lock()
			res, profile, err := m.exchange(ctx, acct)
			lock.Unlock()

			switch res {
			case ResultAuthorized:
				log.InfoWith("login reacquired", map[string]interface{}{"attempt": attempt})
				m.authorized(ctx, acct, profile)
				return
			case ResultUnavailable, ResultSkipped:
				return
			case ResultMalformed:
				m.after(ctx, acct, res, nil, err)
			}
			log.WarnWith("fresh login parameter was rejected", map[string]interface{}{"attempt": attempt})
		default:
			log.WarnWith("login attempt produced nothing", map[string]interface{}{"attempt": attempt})
		}

		if attempt < m.opts.MaxLoginAttempts {
			if err := poller.SleepContext(ctx, m.opts.RetryPause); err != nil {
				return
			}
		}
	}

	m.dead(acct, fmt.Errorf("login failed after %d attempts", m.opts.MaxLoginAttempts), false)
}

func (m *Manager) dead(acct *account.Account, reason error, banned bool) {
	m.logger.ErrorWithContext("account is dead", reason, map[string]interface{}{
		"account": acct.ID,
		"phone":   acct.Phone,
		"banned":  banned,
	})
	if m.hooks.Dead != nil {
		m.hooks.Dead(acct, reason, banned)
	}
}

// Forget releases the account's lock entry.
func (m *Manager) Forget(id int64) { m.locks.Forget(id) }

// Close stops running escalations and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// Wait blocks until running escalations finish without stopping them.
func (m *Manager) Wait() { m.wg.Wait() }
