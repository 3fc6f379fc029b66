package config

import (
	"github.com/shopspring/decimal"

	"breakout_trading/internal/models"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// DefaultTiers is the built-in price-tier table. Cheaper symbols get tighter
// offsets and a trailing stop once the ladder is mostly done; expensive ones
// get wider offsets and a plain breakeven raise.
func DefaultTiers() []models.Tier {
	return []models.Tier{
		{
			// Low-priced momentum names, roughly $2-$10.
			MinPrice:          d(0),
			MaxPrice:          d(10),
			EntryOffsetCents:  d(0),
			LimitOffsetCents:  d(10),
			StopCents:         d(20),
			StopAfterTargets:  2,
			UseTrailingStop:   true,
			TrailingWindowSec: 8,
			Targets: []models.ProfitTarget{
				{TargetCents: d(8), PercentToClose: d(10)},
				{TargetCents: d(20), PercentToClose: d(40)},
				{TargetCents: d(40), PercentToClose: d(25)},
			},
			Pyramids: []models.PyramidLevel{
				{PriceIncreaseCents: d(12), PercentToAdd: d(25), OffsetCents: d(5)},
				{PriceIncreaseCents: d(28), PercentToAdd: d(15), OffsetCents: d(5)},
			},
		},
		{
			// Mid range, $10-$35.
			MinPrice:          d(10),
			MaxPrice:          d(35),
			EntryOffsetCents:  d(2),
			LimitOffsetCents:  d(15),
			StopCents:         d(35),
			StopAfterTargets:  2,
			UseTrailingStop:   true,
			TrailingWindowSec: 10,
			Targets: []models.ProfitTarget{
				{TargetCents: d(15), PercentToClose: d(15)},
				{TargetCents: d(35), PercentToClose: d(35)},
				{TargetCents: d(70), PercentToClose: d(25)},
			},
			Pyramids: []models.PyramidLevel{
				{PriceIncreaseCents: d(20), PercentToAdd: d(20), OffsetCents: d(8)},
				{PriceIncreaseCents: d(50), PercentToAdd: d(10), OffsetCents: d(8)},
			},
		},
		{
			// $35 and up. No trailing stop, breakeven raise only.
			MinPrice:         d(35),
			MaxPrice:         decimal.Zero,
			EntryOffsetCents: d(5),
			LimitOffsetCents: d(25),
			StopCents:        d(60),
			StopAfterTargets: 1,
			UseTrailingStop:  false,
			Targets: []models.ProfitTarget{
				{TargetCents: d(30), PercentToClose: d(20)},
				{TargetCents: d(75), PercentToClose: d(30)},
				{TargetCents: d(150), PercentToClose: d(25)},
			},
			Pyramids: []models.PyramidLevel{
				{PriceIncreaseCents: d(40), PercentToAdd: d(15), OffsetCents: d(12)},
			},
		},
	}
}
