package config

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Tunables are the knobs that can change while the farm runs
type Tunables struct {
	mu      sync.RWMutex
	mineMin int64
	mineMax int64
	ceiling decimal.Decimal
}

// NewTunables seeds the knobs from settings
func NewTunables(s *Settings) *Tunables {
	return &Tunables{
		mineMin: s.Mining.CountMin,
		mineMax: s.Mining.CountMax,
		ceiling: s.Upgrade.RatioCeiling,
	}
}

// MineCountRange returns the half-open [min, max) per-call tap range
func (t *Tunables) MineCountRange() (int64, int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mineMin, t.mineMax
}

// SetMineCountRange replaces the range after validating it
func (t *Tunables) SetMineCountRange(min, max int64) error {
	if err := ValidateMineRange(min, max); err != nil {
		return err
	}
	t.mu.Lock()
	t.mineMin, t.mineMax = min, max
	t.mu.Unlock()
	return nil
}

// RatioCeiling returns the upgrade ratio ceiling
func (t *Tunables) RatioCeiling() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ceiling
}

// SetRatioCeiling replaces the ceiling; negative values are rejected
func (t *Tunables) SetRatioCeiling(c decimal.Decimal) error {
	if c.IsNegative() {
		return errNegativeCeiling
	}
	t.mu.Lock()
	t.ceiling = c
	t.mu.Unlock()
	return nil
}
