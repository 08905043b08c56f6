package engine

import (
	"context"
	"errors"
	"time"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/credential"
	"jordanella.com/paws-farm-go/internal/database"
	"jordanella.com/paws-farm-go/internal/events"
	"jordanella.com/paws-farm-go/internal/game"
	"jordanella.com/paws-farm-go/internal/scheduler"
)

// jobs lists every recurring job of a started account.
func (e *Engine) jobs() []scheduler.Job {
	s := e.settings.Schedule
	return []scheduler.Job{
		e.authorizeJob(),
		{Kind: scheduler.KindDailyBonus, Run: scheduler.Every(s.DailyBonusEvery, e.claimDailyBonus)},
		{Kind: scheduler.KindPromo, Run: scheduler.Every(s.PromoEvery, e.claimPromo)},
		{Kind: scheduler.KindMine, Run: e.mine},
		{Kind: scheduler.KindUpgrade, Run: scheduler.Every(s.UpgradeEvery, e.upgrade)},
		{Kind: scheduler.KindChannels, Run: scheduler.Every(s.ChannelsEvery, e.resolveChannels)},
	}
}

func (e *Engine) authorizeJob() scheduler.Job {
	return scheduler.Job{Kind: scheduler.KindAuthorize, Run: e.authorize}
}

// authorize keeps the account active upstream. Until the first success it
// retries on the short interval.
func (e *Engine) authorize(ctx context.Context, acct *account.Account) time.Duration {
	s := e.settings.Schedule
	if acct.Escalating() {
		return s.AuthorizeRetry
	}
	res := e.creds.Refresh(ctx, acct)
	if res != credential.ResultAuthorized && !acct.Started() {
		return s.AuthorizeRetry
	}
	return s.AuthorizeEvery
}

// onAuthorized runs after every successful exchange.
func (e *Engine) onAuthorized(ctx context.Context, acct *account.Account, profile game.Payload) {
	if acct.Canceled() {
		return
	}

	friends, err := e.api.ListFriends(ctx, acct)
	if err != nil {
		e.reportError(acct, "friends", err)
	} else if !friends.Empty() {
		link, count := acct.Referral()
		if l := friends.String("copy_link"); l != "" {
			link = l
		}
		acct.SetReferral(link, friends.IntOr("friends_count", count))
	}

	snap := acct.Profile()
	link, count := acct.Referral()
	if err := e.store.UpdateAccountMetadata(database.AccountMetadata{
		AccountID:     acct.ID,
		AccessToken:   acct.Token(),
		InviteLink:    link,
		FriendsCount:  count,
		Balance:       snap.Balance,
		ProfitPerHour: snap.ProfitPerHour,
		League:        snap.League,
	}); err != nil {
		e.logger.ErrorWithContext("failed to persist account metadata", err, map[string]interface{}{"account": acct.ID})
	}

	e.bus.Publish(events.NewAccountEvent(events.EventTypeAccountAuthorized, "credential", acct.ID, map[string]interface{}{
		"phone":   acct.Phone,
		"balance": snap.Balance,
		"league":  snap.League,
	}))

	e.startJobs(acct)
}

// startJobs schedules whatever jobs are missing for acct.
func (e *Engine) startJobs(acct *account.Account) {
	n, err := e.sched.ScheduleMissing(acct, e.jobs())
	if err != nil {
		if !errors.Is(err, scheduler.ErrAccountCanceled) && !errors.Is(err, scheduler.ErrStopped) {
			e.logger.ErrorWithContext("failed to schedule jobs", err, map[string]interface{}{"account": acct.ID})
		}
		return
	}
	if acct.MarkStarted() {
		e.logger.InfoWithContext("jobs started", map[string]interface{}{"account": acct.ID, "phone": acct.Phone, "jobs": n})
		e.bus.Publish(events.NewAccountEvent(events.EventTypeJobsStarted, "scheduler", acct.ID, map[string]interface{}{
			"phone": acct.Phone,
			"jobs":  n,
		}))
	}
}

func (e *Engine) onEscalated(acct *account.Account) {
	e.bus.Publish(events.NewAccountEvent(events.EventTypeLoginEscalated, "credential", acct.ID, map[string]interface{}{
		"phone": acct.Phone,
	}))
}

// onDead cancels every job of acct, deactivates it and tells subscribers.
func (e *Engine) onDead(acct *account.Account, reason error, banned bool) {
	wasStarted := acct.Started()
	if !e.sched.CancelAll(acct) {
		return
	}

	if banned {
		if err := e.store.MarkAccountBanned(acct.ID, reason.Error()); err != nil {
			e.logger.ErrorWithContext("failed to mark account banned", err, map[string]interface{}{"account": acct.ID})
		}
	} else if err := e.store.SetAccountActive(acct.ID, false); err != nil {
		e.logger.ErrorWithContext("failed to deactivate account", err, map[string]interface{}{"account": acct.ID})
	}
	id := acct.ID
	if _, err := e.store.LogError(&id, "account_dead", "critical", reason.Error()); err != nil {
		e.logger.Error("failed to persist error", err)
	}

	e.bus.Publish(events.NewAccountDeadEvent(acct.ID, acct.Phone, reason.Error()))
	if banned {
		e.bus.Publish(events.NewAccountEvent(events.EventTypeAccountBanned, "credential", acct.ID, map[string]interface{}{
			"phone": acct.Phone,
		}))
	}
	e.bus.Publish(events.NewAccountEvent(events.EventTypeJobsCanceled, "scheduler", acct.ID, map[string]interface{}{
		"phone":       acct.Phone,
		"reason":      reason.Error(),
		"was_started": wasStarted,
	}))
}
