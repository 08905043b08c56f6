package game

import "jordanella.com/paws-farm-go/internal/account"

// ProfileFrom overlays the profile fields present in p onto prev.
func ProfileFrom(p Payload, prev account.Profile) account.Profile {
	out := prev
	out.Balance = p.IntOr("balance", out.Balance)
	out.ProfitPerHour = p.IntOr("profit_per_hour", out.ProfitPerHour)
	out.Energy = p.IntOr("energy", out.Energy)
	out.MaxEnergy = p.IntOr("max_energy", out.MaxEnergy)
	out.EarnPerTap = p.IntOr("earn_per_tap", out.EarnPerTap)
	if league := p.String("current_league"); league != "" {
		out.League = league
	}
	return out
}
