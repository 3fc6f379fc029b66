package models

import "github.com/shopspring/decimal"

// ProfitTarget is one rung of a tier's profit ladder.
type ProfitTarget struct {
	TargetCents    decimal.Decimal `json:"target_cents"`
	PercentToClose decimal.Decimal `json:"percent_to_close"`
}

// PyramidLevel is one rung of a tier's add ladder, relative to the average
// entry price.
type PyramidLevel struct {
	PriceIncreaseCents decimal.Decimal `json:"price_increase_cents"`
	PercentToAdd       decimal.Decimal `json:"percent_to_add"`
	OffsetCents        decimal.Decimal `json:"offset_cents"`
}

// Tier bundles the strategy parameters for one price range. Tiers are built
// at startup and never mutated; a symbol is assigned its tier once, from its
// price at the moment it is added to the watchlist.
type Tier struct {
	MinPrice decimal.Decimal `json:"min_price"`
	MaxPrice decimal.Decimal `json:"max_price"` // zero means unbounded

	EntryOffsetCents decimal.Decimal `json:"entry_offset_cents"`
	LimitOffsetCents decimal.Decimal `json:"limit_offset_cents"`
	StopCents        decimal.Decimal `json:"stop_cents"`

	// StopAfterTargets is the hit count at which the stop is raised to
	// breakeven-or-better, or the trailing stop takes over when
	// UseTrailingStop is set.
	StopAfterTargets int  `json:"stop_after_targets"`
	UseTrailingStop  bool `json:"use_trailing_stop"`

	// TrailingWindowSec is the rolling window for the trailing stop. Zero
	// falls back to the global default.
	TrailingWindowSec int `json:"trailing_window_sec"`

	Targets  []ProfitTarget `json:"targets"`
	Pyramids []PyramidLevel `json:"pyramids"`
}

// Contains reports whether price falls inside the tier's range.
func (t Tier) Contains(price decimal.Decimal) bool {
	if price.LessThan(t.MinPrice) {
		return false
	}
	if !t.MaxPrice.IsZero() && price.GreaterThanOrEqual(t.MaxPrice) {
		return false
	}
	return true
}

// TrailingWindowOrDefault resolves the tier-vs-global precedence for the
// trailing window: the tier value wins whenever it is set.
func (t Tier) TrailingWindowOrDefault(globalSec int) int {
	if t.TrailingWindowSec > 0 {
		return t.TrailingWindowSec
	}
	return globalSec
}

// StopCentsOrDefault resolves the tier-vs-global precedence for the stop
// offset: the tier value wins whenever it is set.
func (t Tier) StopCentsOrDefault(globalCents decimal.Decimal) decimal.Decimal {
	if t.StopCents.IsPositive() {
		return t.StopCents
	}
	return globalCents
}

// TierForPrice returns the index of the first tier containing price, or the
// last tier when none match (prices above every bounded range).
func TierForPrice(tiers []Tier, price decimal.Decimal) int {
	for i, t := range tiers {
		if t.Contains(price) {
			return i
		}
	}
	return len(tiers) - 1
}

// Cents converts a cent amount to a dollar price delta.
func Cents(c decimal.Decimal) decimal.Decimal {
	return c.Div(decimal.NewFromInt(100))
}
