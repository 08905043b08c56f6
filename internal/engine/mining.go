package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/database"
	"jordanella.com/paws-farm-go/internal/events"
	"jordanella.com/paws-farm-go/internal/game"
)

// maxCyclesPerRun bounds boost-chained cycles within one run.
const maxCyclesPerRun = 8

// cycle is the state of one mining cycle.
type cycle struct {
	id     string
	calls  int
	mined  int64
	failed bool
}

// mine spends the account's energy, refills it with a full-energy boost when
// one is available, and returns the time until energy has regenerated.
func (e *Engine) mine(ctx context.Context, acct *account.Account) time.Duration {
	fallback := e.settings.Mining.FallbackDelay

	me, err := e.api.GetMe(ctx, acct)
	if err != nil {
		e.reportError(acct, "mine", err)
		return fallback
	}
	if me.Empty() {
		return fallback
	}
	acct.UpdateProfile(func(p *account.Profile) { *p = game.ProfileFrom(me, *p) })

	for n := 1; ; n++ {
		c := e.runCycle(ctx, acct)
		if c.failed && c.calls == 0 {
			return fallback
		}
		snap := acct.Profile()
		if c.failed || n == maxCyclesPerRun || ctx.Err() != nil || acct.Canceled() || !e.useFullEnergy(ctx, acct) {
			next := e.regenDelay(snap.MaxEnergy)
			e.finishCycle(acct, c, next)
			return next
		}
		e.finishCycle(acct, c, 0)
	}
}

// runCycle taps until energy runs out or a call fails.
func (e *Engine) runCycle(ctx context.Context, acct *account.Account) cycle {
	c := cycle{id: uuid.NewString()}
	for {
		snap := acct.Profile()
		if snap.Energy <= 0 || snap.EarnPerTap <= 0 || ctx.Err() != nil || acct.Canceled() {
			return c
		}

		count := e.mineCount(snap.Energy, snap.EarnPerTap)
		res, err := e.api.Mine(ctx, acct, count)
		if err != nil {
			e.reportError(acct, "mine", err)
			c.failed = true
			return c
		}
		if res.Empty() {
			c.failed = true
			return c
		}

		next := game.ProfileFrom(res, snap)
		if !res.Has("energy") {
			next.Energy = max(snap.Energy-count*snap.EarnPerTap, 0)
		}
		acct.UpdateProfile(func(p *account.Profile) { *p = next })

		mined := count * snap.EarnPerTap
		c.calls++
		c.mined += mined
		if err := e.store.RecordMining(database.MiningRecord{
			AccountID:       acct.ID,
			CycleID:         c.id,
			EarnPerTap:      snap.EarnPerTap,
			Count:           count,
			Mined:           mined,
			RemainingEnergy: next.Energy,
		}); err != nil {
			e.logger.ErrorWithContext("failed to record mining", err, map[string]interface{}{"account": acct.ID})
		}

		// a backend that stops draining energy would otherwise spin forever
		if next.Energy >= snap.Energy {
			return c
		}
	}
}

// useFullEnergy consumes the full-energy boost if the backend offers one and
// reports whether energy was refilled.
func (e *Engine) useFullEnergy(ctx context.Context, acct *account.Account) bool {
	boosts, err := e.api.GetBoosts(ctx, acct)
	if err != nil {
		e.reportError(acct, "boosts", err)
		return false
	}
	if !fullEnergyAvailable(boosts) {
		return false
	}

	before := acct.Profile()
	res, err := e.api.UseBoost(ctx, acct, game.BoostFullEnergy)
	if err != nil {
		e.reportError(acct, "boosts", err)
		return false
	}
	if res.Empty() {
		return false
	}
	after := game.ProfileFrom(res, before)
	if !res.Has("energy") {
		after.Energy = after.MaxEnergy
	}
	acct.UpdateProfile(func(p *account.Profile) { *p = after })
	return after.Energy > before.Energy
}

// fullEnergyAvailable reads the boost list. The backend reports boosts
// either as a "boosts" list of {"type", "available"} objects or as a
// "full_energy" object.
func fullEnergyAvailable(p game.Payload) bool {
	if obj, ok := p.Object(game.BoostFullEnergy); ok {
		return boostLeft(obj)
	}
	list, _ := p.Objects("boosts")
	for _, b := range list {
		if b.String("type") == game.BoostFullEnergy || b.String("name") == game.BoostFullEnergy {
			return boostLeft(b)
		}
	}
	return false
}

func boostLeft(b game.Payload) bool {
	if n, ok := b.Int("available"); ok {
		return n > 0
	}
	avail, _ := b.Bool("available")
	return avail
}

// mineCount draws the tap count for one call from the tunable range, capped
// at the taps the remaining energy pays for.
func (e *Engine) mineCount(energy, earnPerTap int64) int64 {
	lo, hi := e.tunables.MineCountRange()
	n := lo
	if hi > lo {
		n = lo + e.randN(hi-lo)
	}
	if limit := ceilDiv(energy, earnPerTap); n > limit {
		n = limit
	}
	return max(n, 1)
}

// regenDelay is the time to regenerate maxEnergy, or the fallback when the
// maximum is unknown.
func (e *Engine) regenDelay(maxEnergy int64) time.Duration {
	regen := e.settings.Mining.RegenPerSec
	if maxEnergy <= 0 || regen <= 0 {
		return e.settings.Mining.FallbackDelay
	}
	return time.Duration(ceilDiv(maxEnergy, regen)) * time.Second
}

func (e *Engine) finishCycle(acct *account.Account, c cycle, next time.Duration) {
	if c.calls == 0 {
		return
	}
	e.logger.InfoWithContext("mining cycle finished", map[string]interface{}{
		"account": acct.ID,
		"cycle":   c.id,
		"calls":   c.calls,
		"mined":   c.mined,
		"next":    next.String(),
	})
	e.bus.Publish(events.NewMiningCycleEvent(acct.ID, c.id, c.calls, c.mined, next))
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
