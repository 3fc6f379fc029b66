package engine

import (
	"log"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"breakout_trading/internal/market"
	"breakout_trading/internal/models"
)

var hundred = decimal.NewFromInt(100)

// OnQuote handles a quote update for a symbol with an open Position and
// runs the full strategy pipeline: stop latch, next profit target, pyramid
// ladder, trailing stop.
func (e *Engine) OnQuote(symbol string, bid, ask float64, at time.Time) {
	if math.IsNaN(bid) || math.IsNaN(ask) || bid <= 0 {
		log.Printf("WARN: [%s] discarding bad quote bid=%v ask=%v", symbol, bid, ask)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[symbol]
	if !ok {
		return
	}
	pos.Bid = decimal.NewFromFloat(bid)
	pos.Ask = decimal.NewFromFloat(ask)
	e.evaluatePositionLocked(pos, at)
}

// evaluatePositionLocked is the per-quote decision cycle. Order matters:
// the stop latch short-circuits everything behind it, permanently.
func (e *Engine) evaluatePositionLocked(pos *models.Position, at time.Time) {
	mark := pos.Bid // long exit side
	if mark.IsZero() {
		return
	}
	pos.Mark = mark
	pos.ProfitCents = mark.Sub(pos.AvgEntryPrice).Mul(hundred)

	if pos.StopTriggered {
		return
	}

	if !pos.StopPrice.IsZero() && mark.LessThanOrEqual(pos.StopPrice) {
		pos.StopTriggered = true
		pos.Closing = true
		log.Printf("[%s] STOP: mark $%s <= stop $%s, closing %s shares",
			pos.Symbol, mark.StringFixed(2), pos.StopPrice.StringFixed(2), pos.RemainingQty())
		e.enqueueCloseLocked(pos, pos.RemainingQty(), models.KindClose)
		return
	}

	e.evaluateNextTargetLocked(pos)
	if pos.StopTriggered {
		return
	}
	e.evaluatePyramidsLocked(pos, mark)
	if pos.TrailingActive {
		e.evaluateTrailingLocked(pos, mark, at)
	}
}

// evaluateNextTargetLocked checks only the next unhit rung of the ladder;
// fast moves that cross several rungs are caught up by reconciliation.
func (e *Engine) evaluateNextTargetLocked(pos *models.Position) {
	tier := e.tier(pos.TierIndex)
	if pos.ProfitTargetsHit >= len(tier.Targets) {
		return
	}
	if pos.Closing {
		return
	}
	target := tier.Targets[pos.ProfitTargetsHit]
	if pos.ProfitCents.LessThan(target.TargetCents) {
		return
	}

	e.fireTargetLocked(pos, tier, target)
}

// fireTargetLocked closes the target's slice and advances the counter. The
// counter advances even when the computed quantity rounds to zero, so a
// dust-sized rung can't block the ladder.
func (e *Engine) fireTargetLocked(pos *models.Position, tier models.Tier, target models.ProfitTarget) {
	qty := pos.InitialQty.Mul(target.PercentToClose).Div(hundred).Floor()
	if qty.GreaterThan(pos.RemainingQty()) {
		qty = pos.RemainingQty()
	}

	pos.ProfitTargetsHit++
	log.Printf("[%s] profit target %d hit (%s¢ >= %s¢), closing %s of %s",
		pos.Symbol, pos.ProfitTargetsHit, pos.ProfitCents.StringFixed(1),
		target.TargetCents.StringFixed(0), qty, pos.Qty)

	if qty.IsPositive() {
		pos.Closing = true
		e.enqueueCloseLocked(pos, qty, models.KindIOC)
	}
	e.afterTargetsChangedLocked(pos, tier)
}

// afterTargetsChangedLocked applies the tier's post-target stop policy once
// the threshold count is reached: trailing stop when configured, otherwise
// a breakeven-or-better raise. The stop never moves down.
func (e *Engine) afterTargetsChangedLocked(pos *models.Position, tier models.Tier) {
	if tier.StopAfterTargets <= 0 || pos.ProfitTargetsHit < tier.StopAfterTargets {
		return
	}
	if tier.UseTrailingStop {
		if !pos.TrailingActive {
			pos.TrailingActive = true
			log.Printf("[%s] trailing stop activated (%ds window)",
				pos.Symbol, tier.TrailingWindowOrDefault(e.cfg.TrailingWindowSec))
		}
		return
	}
	if pos.AvgEntryPrice.GreaterThan(pos.StopPrice) {
		log.Printf("[%s] stop raised to breakeven $%s (was $%s)",
			pos.Symbol, pos.AvgEntryPrice.StringFixed(2), pos.StopPrice.StringFixed(2))
		pos.StopPrice = pos.AvgEntryPrice
	}
}

// evaluatePyramidsLocked fires each add level at most once when the mark
// crosses avg entry + level increase.
func (e *Engine) evaluatePyramidsLocked(pos *models.Position, mark decimal.Decimal) {
	tier := e.tier(pos.TierIndex)
	for i, lvl := range tier.Pyramids {
		if pos.PyramidsDone[i] {
			continue
		}
		trigger := pos.AvgEntryPrice.Add(models.Cents(lvl.PriceIncreaseCents))
		if mark.LessThan(trigger) {
			continue
		}
		pos.PyramidsDone[i] = true

		qty := pos.InitialQty.Mul(lvl.PercentToAdd).Div(hundred).Floor()
		if !qty.IsPositive() {
			continue
		}
		limitPrice := trigger.Add(models.Cents(lvl.OffsetCents))
		log.Printf("[%s] pyramid level %d: mark $%s >= $%s, adding %s @ $%s",
			pos.Symbol, i, mark.StringFixed(2), trigger.StringFixed(2), qty, limitPrice.StringFixed(2))

		e.queue.Enqueue(OrderRequest{
			Kind: models.KindPyramid,
			Spec: market.OrderSpec{
				Symbol:        pos.Symbol,
				Side:          "buy",
				Qty:           qty,
				Limit:         true,
				LimitPrice:    limitPrice,
				TimeInForce:   "day",
				ExtendedHours: e.cfg.ExtendedHours,
				ClientOrderID: market.NewClientOrderID(models.KindPyramid),
			},
		}, PriorityPyramid)
	}
}

// evaluateTrailingLocked maintains the rolling low-price window. The
// recorded low only ratchets down; any window minimum strictly below it
// closes the whole position immediately.
func (e *Engine) evaluateTrailingLocked(pos *models.Position, mark decimal.Decimal, at time.Time) {
	tier := e.tier(pos.TierIndex)
	window := time.Duration(tier.TrailingWindowOrDefault(e.cfg.TrailingWindowSec)) * time.Second

	pos.TrailWindow = append(pos.TrailWindow, models.PriceSample{At: at, Price: mark})
	cutoff := at.Add(-window)
	for len(pos.TrailWindow) > 0 && pos.TrailWindow[0].At.Before(cutoff) {
		pos.TrailWindow = pos.TrailWindow[1:]
	}

	windowMin := pos.TrailWindow[0].Price
	for _, s := range pos.TrailWindow[1:] {
		if s.Price.LessThan(windowMin) {
			windowMin = s.Price
		}
	}

	if pos.LastTrailLow.IsZero() {
		pos.LastTrailLow = windowMin
		return
	}
	if windowMin.GreaterThanOrEqual(pos.LastTrailLow) {
		return
	}

	pos.LastTrailLow = windowMin
	pos.StopTriggered = true
	pos.Closing = true
	log.Printf("[%s] trailing stop: new window low $%s, closing %s shares",
		pos.Symbol, windowMin.StringFixed(2), pos.RemainingQty())
	e.enqueueCloseLocked(pos, pos.RemainingQty(), models.KindClose)
}

// enqueueCloseLocked queues a sell for qty shares at top priority. Closes
// go out as immediate-or-cancel market orders.
func (e *Engine) enqueueCloseLocked(pos *models.Position, qty decimal.Decimal, kind models.OrderKind) {
	if !qty.IsPositive() {
		log.Printf("WARN: [%s] refusing to close non-positive qty %s", pos.Symbol, qty)
		return
	}
	e.queue.Enqueue(OrderRequest{
		Kind: kind,
		Spec: market.OrderSpec{
			Symbol:        pos.Symbol,
			Side:          "sell",
			Qty:           qty,
			TimeInForce:   "ioc",
			ClientOrderID: market.NewClientOrderID(kind),
		},
	}, PriorityClose)
}
