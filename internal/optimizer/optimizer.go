// Package optimizer picks which upgrade to buy next.
//
// Every available catalog entry gets a payback ratio, cost divided by the
// profit-per-hour it adds, rounded half-to-even to two decimals. The entry
// with the lowest ratio wins, ties going to the lower cost and then the lower
// ID. It is bought only when the balance covers its cost and its ratio does
// not exceed the configured ceiling.
package optimizer

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultCeiling is the ratio above which upgrades are never bought.
var DefaultCeiling = decimal.RequireFromString("1517.26")

// Entry is one purchasable upgrade.
type Entry struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Cost      decimal.Decimal `json:"upgrade_cost"`
	Profit    decimal.Decimal `json:"farming_upgrade"`
	Available bool            `json:"is_available"`
}

// Ranked is an entry together with its payback ratio.
type Ranked struct {
	Entry
	Ratio decimal.Decimal `json:"ratio"`
}

// Reason says why Decide declined to buy.
type Reason string

const (
	ReasonBuy          Reason = "buy"
	ReasonNoCandidate  Reason = "no available upgrade"
	ReasonInsufficient Reason = "balance below cost"
	ReasonOverCeiling  Reason = "ratio above ceiling"
)

// Decision is the outcome of one optimizer pass.
type Decision struct {
	Buy    bool
	Reason Reason
	Choice Ranked
}

// Ratio returns cost/profit rounded half-to-even to two places. The second
// return value is false when profit is not positive.
func Ratio(e Entry) (decimal.Decimal, bool) {
	if !e.Profit.IsPositive() {
		return decimal.Zero, false
	}
	return e.Cost.Div(e.Profit).RoundBank(2), true
}

// Rank returns the available entries ordered best first. Entries without a
// positive profit are left out.
func Rank(entries []Entry) []Ranked {
	ranked := make([]Ranked, 0, len(entries))
	for _, e := range entries {
		if !e.Available {
			continue
		}
		r, ok := Ratio(e)
		if !ok {
			continue
		}
		ranked = append(ranked, Ranked{Entry: e, Ratio: r})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })
	return ranked
}

func less(a, b Ranked) bool {
	if c := a.Ratio.Cmp(b.Ratio); c != 0 {
		return c < 0
	}
	if c := a.Cost.Cmp(b.Cost); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// Best returns the single best candidate, if any.
func Best(entries []Entry) (Ranked, bool) {
	var best Ranked
	found := false
	for _, e := range entries {
		if !e.Available {
			continue
		}
		r, ok := Ratio(e)
		if !ok {
			continue
		}
		cand := Ranked{Entry: e, Ratio: r}
		if !found || less(cand, best) {
			best, found = cand, true
		}
	}
	return best, found
}

// Decide applies the purchase rule to the current balance and catalog.
func Decide(balance decimal.Decimal, entries []Entry, ceiling decimal.Decimal) Decision {
	best, ok := Best(entries)
	if !ok {
		return Decision{Reason: ReasonNoCandidate}
	}
	if balance.LessThan(best.Cost) {
		return Decision{Reason: ReasonInsufficient, Choice: best}
	}
	if best.Ratio.GreaterThan(ceiling) {
		return Decision{Reason: ReasonOverCeiling, Choice: best}
	}
	return Decision{Buy: true, Reason: ReasonBuy, Choice: best}
}
