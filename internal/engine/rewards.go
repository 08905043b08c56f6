package engine

import (
	"context"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/events"
	"jordanella.com/paws-farm-go/internal/game"
)

// Reward kinds reported with EventTypeRewardClaimed.
const (
	RewardDailyBonus = "daily_bonus"
	RewardPromo      = "promo"
	RewardChannel    = "channel"
)

// claimDailyBonus claims the daily bonus when the backend says one is
// available.
func (e *Engine) claimDailyBonus(ctx context.Context, acct *account.Account) {
	info, err := e.api.GetDailyBonuses(ctx, acct)
	if err != nil {
		e.reportError(acct, "daily_bonus", err)
		return
	}
	if available, _ := info.Bool("has_available"); !available {
		return
	}
	e.claimed(acct, RewardDailyBonus, 0, func() (game.Payload, error) { return e.api.PickDailyBonus(ctx, acct) })
}

// claimPromo claims the promo reward unless it is already taken. A missing
// flag counts as taken.
func (e *Engine) claimPromo(ctx context.Context, acct *account.Account) {
	info, err := e.api.GetPromo(ctx, acct)
	if err != nil {
		e.reportError(acct, "promo", err)
		return
	}
	taken, ok := info.Bool("is_reward_taken")
	if !ok || taken {
		return
	}
	e.claimed(acct, RewardPromo, 0, func() (game.Payload, error) { return e.api.PickPromo(ctx, acct) })
}

// Channel is one rewarded one-time task.
type Channel struct {
	ID          int64
	Reward      int64
	InviteLink  string
	Resolved    bool
	RewardTaken bool
	Premium     bool
}

func channelsFrom(p game.Payload) ([]Channel, error) {
	list, ok := p.Objects("channels")
	if !ok {
		if p.Empty() {
			return nil, nil
		}
		return nil, malformed("channels", "channels")
	}
	out := make([]Channel, 0, len(list))
	for _, c := range list {
		id, ok := c.Int("id")
		if !ok {
			return nil, malformed("channels", "id")
		}
		ch := Channel{ID: id, Reward: c.IntOr("reward", 0), InviteLink: c.String("invite_link")}
		ch.Resolved, _ = c.Bool("is_resolved")
		ch.RewardTaken, _ = c.Bool("is_reward_taken")
		ch.Premium, _ = c.Bool("is_premium")
		out = append(out, ch)
	}
	return out, nil
}

// resolveChannels resolves every open non-premium task, then claims every
// resolved task whose reward is still waiting.
func (e *Engine) resolveChannels(ctx context.Context, acct *account.Account) {
	p, err := e.api.ListChannels(ctx, acct)
	if err != nil {
		e.reportError(acct, "channels", err)
		return
	}
	channels, err := channelsFrom(p)
	if err != nil {
		e.reportError(acct, "channels", err)
		return
	}

	for i := range channels {
		ch := &channels[i]
		if ch.Resolved || ch.Premium || acct.Canceled() {
			continue
		}
		res, err := e.api.ResolveChannel(ctx, acct, ch.ID, ch.InviteLink)
		if err != nil {
			e.reportError(acct, "channels", err)
			return
		}
		ch.Resolved = !res.Empty()
	}

	for _, ch := range channels {
		if !ch.Resolved || ch.RewardTaken || acct.Canceled() {
			continue
		}
		id := ch.ID
		e.claimed(acct, RewardChannel, ch.Reward, func() (game.Payload, error) { return e.api.PickChannel(ctx, acct, id) })
	}
}

// claimed runs claim and publishes a reward event when it succeeds.
func (e *Engine) claimed(acct *account.Account, kind string, reward int64, claim func() (game.Payload, error)) {
	res, err := claim()
	if err != nil {
		e.reportError(acct, kind, err)
		return
	}
	if res.Empty() {
		return
	}
	if _, ok := res.Int("balance"); ok {
		acct.UpdateProfile(func(p *account.Profile) { *p = game.ProfileFrom(res, *p) })
	}
	e.bus.Publish(events.NewAccountEvent(events.EventTypeRewardClaimed, "rewards", acct.ID, map[string]interface{}{
		"kind":   kind,
		"reward": reward,
	}))
}
