// Package engine runs the per-account automation: it bootstraps accounts,
// turns credential lifecycle changes into job scheduling, and implements the
// job bodies (authorize refresh, daily bonus, promo, mining, upgrades,
// channel tasks).
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/config"
	"jordanella.com/paws-farm-go/internal/credential"
	"jordanella.com/paws-farm-go/internal/database"
	"jordanella.com/paws-farm-go/internal/events"
	"jordanella.com/paws-farm-go/internal/game"
	"jordanella.com/paws-farm-go/internal/logging"
	"jordanella.com/paws-farm-go/internal/scheduler"
)

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrAccountBanned  = errors.New("account is banned")
)

// GameAPI is the set of backend operations the jobs use. *game.API
// implements it.
type GameAPI interface {
	GetMe(ctx context.Context, acct *account.Account) (game.Payload, error)
	Mine(ctx context.Context, acct *account.Account, count int64) (game.Payload, error)
	ListCards(ctx context.Context, acct *account.Account) ([]game.Payload, error)
	UpgradeCard(ctx context.Context, acct *account.Account, cardID int64, inviteLink string) (game.Payload, error)
	ListChannels(ctx context.Context, acct *account.Account) (game.Payload, error)
	ResolveChannel(ctx context.Context, acct *account.Account, channelID int64, inviteLink string) (game.Payload, error)
	PickChannel(ctx context.Context, acct *account.Account, channelID int64) (game.Payload, error)
	GetDailyBonuses(ctx context.Context, acct *account.Account) (game.Payload, error)
	PickDailyBonus(ctx context.Context, acct *account.Account) (game.Payload, error)
	GetPromo(ctx context.Context, acct *account.Account) (game.Payload, error)
	PickPromo(ctx context.Context, acct *account.Account) (game.Payload, error)
	ListFriends(ctx context.Context, acct *account.Account) (game.Payload, error)
	GetBoosts(ctx context.Context, acct *account.Account) (game.Payload, error)
	UseBoost(ctx context.Context, acct *account.Account, boost string) (game.Payload, error)
}

// Credentials is the credential manager as seen by the engine.
type Credentials interface {
	Refresh(ctx context.Context, acct *account.Account) credential.Result
	Escalate(acct *account.Account)
}

// Store is the persistence the engine writes through. Write failures are
// logged and never stop a job.
type Store interface {
	GetAccountByID(id int64) (*database.Account, error)
	ListActiveAccounts() ([]*database.Account, error)
	UpdateAccountMetadata(m database.AccountMetadata) error
	SetAccountActive(id int64, active bool) error
	MarkAccountBanned(id int64, note string) error
	RecordMining(r database.MiningRecord) error
	RecordUpgrade(r database.UpgradeRecord) error
	LogError(accountID *int64, errorType, errorSeverity, errorMessage string) (int64, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	API         GameAPI
	Credentials Credentials
	Scheduler   *scheduler.Scheduler
	Store       Store
	Bus         events.EventBus
	Registry    *account.Registry
	Tunables    *config.Tunables
	Settings    *config.Settings
}

// Engine owns the running accounts.
type Engine struct {
	api      GameAPI
	creds    Credentials
	sched    *scheduler.Scheduler
	store    Store
	bus      events.EventBus
	registry *account.Registry
	tunables *config.Tunables
	settings *config.Settings
	logger   *logging.Logger

	randN func(n int64) int64
}

// New creates an engine. Registry and Tunables are created when nil.
func New(d Deps) *Engine {
	if d.Registry == nil {
		d.Registry = account.NewRegistry()
	}
	if d.Settings == nil {
		d.Settings = config.NewDefaultSettings()
	}
	if d.Tunables == nil {
		d.Tunables = config.NewTunables(d.Settings)
	}
	return &Engine{
		api:      d.API,
		creds:    d.Credentials,
		sched:    d.Scheduler,
		store:    d.Store,
		bus:      d.Bus,
		registry: d.Registry,
		tunables: d.Tunables,
		settings: d.Settings,
		logger:   logging.NewLogger("Engine"),
		randN:    rand.Int64N,
	}
}

// Registry returns the live accounts.
func (e *Engine) Registry() *account.Registry { return e.registry }

// Tunables returns the runtime knobs.
func (e *Engine) Tunables() *config.Tunables { return e.tunables }

// Hooks returns the credential callbacks that drive job scheduling. Install
// them on the credential manager before bootstrapping.
func (e *Engine) Hooks() credential.Hooks {
	return credential.Hooks{
		Authorized: e.onAuthorized,
		Escalated:  e.onEscalated,
		Dead:       e.onDead,
		Malformed: func(acct *account.Account, err error) {
			e.reportError(acct, "authorize", err)
		},
	}
}

// BootstrapAll starts every active account from the store in parallel and
// reports how many were started.
func (e *Engine) BootstrapAll(ctx context.Context) (int, error) {
	rows, err := e.store.ListActiveAccounts()
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for _, row := range rows {
		wg.Add(1)
		go func(row *database.Account) {
			defer wg.Done()
			if _, err := e.bootstrap(ctx, row); err != nil {
				e.logger.ErrorWithContext("bootstrap failed", err, map[string]interface{}{"account": row.ID, "phone": row.Phone})
				return
			}
			mu.Lock()
			started++
			mu.Unlock()
		}(row)
	}
	wg.Wait()

	e.logger.InfoWithContext("accounts bootstrapped", map[string]interface{}{"total": len(rows), "started": started})
	return started, nil
}

// Bootstrap (re)starts one account from its stored row. An account whose
// jobs were canceled gets a fresh runtime state.
func (e *Engine) Bootstrap(ctx context.Context, id int64) (*account.Account, error) {
	row, err := e.store.GetAccountByID(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAccount, id)
	}
	if err != nil {
		return nil, err
	}
	if !row.IsActive && !row.IsBanned {
		if err := e.store.SetAccountActive(id, true); err != nil {
			return nil, err
		}
	}
	return e.bootstrap(ctx, row)
}

func (e *Engine) bootstrap(_ context.Context, row *database.Account) (*account.Account, error) {
	if row.IsBanned {
		return nil, fmt.Errorf("%w: %s", ErrAccountBanned, row.Phone)
	}

	acct, ok := e.registry.Get(row.ID)
	if !ok || acct.Canceled() {
		acct = account.New(row.ID, row.Phone, row.AreaCode, row.LoginParam)
		acct.SetReferral(row.InviteLink, row.FriendsCount)
		acct.SetProfile(account.Profile{
			Balance:       row.Balance,
			ProfitPerHour: row.ProfitPerHour,
			League:        row.League,
		})
		e.registry.Put(acct)
	}

	if acct.LoginParam() == "" {
		e.logger.InfoWithContext("no login parameter, requesting login", map[string]interface{}{"account": acct.ID, "phone": acct.Phone})
		e.creds.Escalate(acct)
		return acct, nil
	}

	if err := e.sched.Schedule(acct, e.authorizeJob()); err != nil {
		return nil, err
	}
	return acct, nil
}

// Account returns a live account.
func (e *Engine) Account(id int64) (*account.Account, error) {
	acct, ok := e.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAccount, id)
	}
	return acct, nil
}

// Cancel stops an account's jobs and deactivates it without declaring it
// dead. It reports false if the account was already canceled.
func (e *Engine) Cancel(id int64) (bool, error) {
	acct, err := e.Account(id)
	if err != nil {
		return false, err
	}
	wasStarted := acct.Started()
	if !e.sched.CancelAll(acct) {
		return false, nil
	}
	if err := e.store.SetAccountActive(id, false); err != nil {
		e.logger.ErrorWithContext("failed to deactivate account", err, map[string]interface{}{"account": id})
	}
	e.bus.Publish(events.NewAccountEvent(events.EventTypeJobsCanceled, "engine", id, map[string]interface{}{
		"phone":       acct.Phone,
		"reason":      "canceled by operator",
		"was_started": wasStarted,
	}))
	return true, nil
}

// Ban marks an account banned and tears it down through the dead path.
func (e *Engine) Ban(id int64, note string) error {
	acct, err := e.Account(id)
	if err != nil {
		if errors.Is(err, ErrUnknownAccount) {
			return e.store.MarkAccountBanned(id, note)
		}
		return err
	}
	if acct.Canceled() {
		return e.store.MarkAccountBanned(id, note)
	}
	e.onDead(acct, fmt.Errorf("%w: %s", credential.ErrBanned, note), true)
	return nil
}

func (e *Engine) reportError(acct *account.Account, source string, err error) {
	e.logger.ErrorWithContext(source+" failed", err, map[string]interface{}{"account": acct.ID, "phone": acct.Phone})
	id := acct.ID
	if _, lerr := e.store.LogError(&id, source, "error", err.Error()); lerr != nil {
		e.logger.Error("failed to persist error", lerr)
	}
	e.bus.Publish(events.NewErrorEvent(source, acct.ID, err))
}
