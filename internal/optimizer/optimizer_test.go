package optimizer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func entry(id, cost, profit int64) Entry {
	return Entry{ID: id, Name: "card", Cost: d(cost), Profit: d(profit), Available: true}
}

func TestDecidePicksLowestRatioUnderCeiling(t *testing.T) {
	a := entry(1, 500_000, 1_000)
	b := entry(2, 100_000, 500)

	dec := Decide(d(1_000_000), []Entry{a, b}, d(300))

	require.True(t, dec.Buy)
	assert.Equal(t, int64(2), dec.Choice.ID)
	assert.True(t, dec.Choice.Ratio.Equal(d(200)))
}

func TestDecideRejectsOverCeiling(t *testing.T) {
	dec := Decide(d(1_000_000), []Entry{entry(1, 500_000, 1_000)}, d(300))

	assert.False(t, dec.Buy)
	assert.Equal(t, ReasonOverCeiling, dec.Reason)
}

func TestDecideRatioEqualToCeilingBuys(t *testing.T) {
	dec := Decide(d(1_000_000), []Entry{entry(1, 300_000, 1_000)}, d(300))
	assert.True(t, dec.Buy)
}

func TestDecideInsufficientBalance(t *testing.T) {
	dec := Decide(d(99_999), []Entry{entry(1, 100_000, 500)}, d(300))

	assert.False(t, dec.Buy)
	assert.Equal(t, ReasonInsufficient, dec.Reason)
	assert.Equal(t, int64(1), dec.Choice.ID)
}

func TestUnavailableEntriesAreFilteredFirst(t *testing.T) {
	cheap := entry(1, 10, 10)
	cheap.Available = false
	dec := Decide(d(1_000), []Entry{cheap, entry(2, 100, 10)}, d(300))

	require.True(t, dec.Buy)
	assert.Equal(t, int64(2), dec.Choice.ID)
}

func TestNoCandidates(t *testing.T) {
	dec := Decide(d(1_000), []Entry{entry(1, 10, 0)}, d(300))
	assert.Equal(t, ReasonNoCandidate, dec.Reason)

	dec = Decide(d(1_000), nil, d(300))
	assert.Equal(t, ReasonNoCandidate, dec.Reason)
}

func TestTieBrokenByLowerCost(t *testing.T) {
	expensive := entry(1, 2_000, 100)
	cheap := entry(2, 1_000, 50)

	best, ok := Best([]Entry{expensive, cheap})
	require.True(t, ok)
	assert.Equal(t, int64(2), best.ID)

	best, _ = Best([]Entry{cheap, expensive})
	assert.Equal(t, int64(2), best.ID, "ordering of input must not change the choice")
}

func TestRatioUsesBankersRounding(t *testing.T) {
	// 1.125 rounds to 1.12, 1.135 rounds to 1.14
	r, ok := Ratio(Entry{Cost: decimal.RequireFromString("1.125"), Profit: d(1)})
	require.True(t, ok)
	assert.Equal(t, "1.12", r.StringFixed(2))

	r, _ = Ratio(Entry{Cost: decimal.RequireFromString("1.135"), Profit: d(1)})
	assert.Equal(t, "1.14", r.StringFixed(2))
}

func TestRankOrdersBestFirst(t *testing.T) {
	ranked := Rank([]Entry{entry(1, 500_000, 1_000), entry(2, 100_000, 500), entry(3, 50, 1)})

	ids := []int64{}
	for _, r := range ranked {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{3, 2, 1}, ids)
}

// Simulates the purchase loop: each buy lowers the balance and raises the
// bought card's cost, until the optimizer declines.
func TestPurchaseLoopConverges(t *testing.T) {
	balance := d(1_000_000)
	catalog := []Entry{entry(1, 100_000, 500), entry(2, 200_000, 800), entry(3, 900_000, 1_000)}
	ceiling := d(300)

	purchases := 0
	for i := 0; i < 100; i++ {
		dec := Decide(balance, catalog, ceiling)
		if !dec.Buy {
			break
		}
		purchases++
		balance = balance.Sub(dec.Choice.Cost)
		for j := range catalog {
			if catalog[j].ID == dec.Choice.ID {
				catalog[j].Cost = catalog[j].Cost.Mul(decimal.NewFromFloat(1.5))
			}
		}
	}

	assert.Greater(t, purchases, 0)
	assert.Less(t, purchases, 100)
	final := Decide(balance, catalog, ceiling)
	assert.False(t, final.Buy)
}
