package engine

import (
	"log"

	"breakout_trading/internal/market"
	"breakout_trading/internal/models"
)

// reconcilePositions merges the broker's positions into local state. The
// broker is truth for quantities and prices; the strategy latches and
// counters are local and only ever move forward. Running it twice against
// unchanged broker state is a no-op.
func (e *Engine) reconcilePositions() {
	if !e.reconcileGate.tryStart() {
		return
	}
	defer e.reconcileGate.finish()

	var broker []market.BrokerPosition
	err := e.dispatcher.Do(e.runCtx, "get positions", func() error {
		var callErr error
		broker, callErr = e.provider.GetPositions()
		return callErr
	})
	if err != nil {
		log.Printf("ERROR: position reconciliation skipped: %v", err)
		return
	}

	e.mu.Lock()
	bySym := make(map[string]market.BrokerPosition, len(broker))
	for _, bp := range broker {
		bySym[bp.Symbol] = bp
	}

	closeInFlight := map[string]bool{}
	for _, o := range e.orders {
		if o.Kind == models.KindClose || o.Kind == models.KindIOC {
			closeInFlight[o.Symbol] = true
		}
	}

	var unsubs, subs []string

	for sym, pos := range e.positions {
		bp, ok := bySym[sym]
		if !ok || !bp.Qty.IsPositive() {
			if e.removePositionLocked(sym) {
				unsubs = append(unsubs, sym)
			}
			continue
		}

		pos.Qty = bp.Qty
		pos.AvgEntryPrice = bp.AvgEntryPrice
		if pos.InitialQty.IsZero() {
			pos.InitialQty = bp.Qty
		}
		if !bp.CurrentPrice.IsZero() {
			pos.Mark = bp.CurrentPrice
		}
		if !pos.Mark.IsZero() {
			pos.ProfitCents = pos.Mark.Sub(pos.AvgEntryPrice).Mul(hundred)
		}
		e.recomputeStopLocked(pos)
		e.catchUpTargetsLocked(pos)

		// A latched stop whose close got lost (dropped after retries, broker
		// reject) is re-issued here so the exit always converges.
		if pos.StopTriggered && !pos.Closing && !closeInFlight[sym] && pos.RemainingQty().IsPositive() {
			log.Printf("[%s] stop latched with no close in flight, re-issuing", sym)
			pos.Closing = true
			e.enqueueCloseLocked(pos, pos.RemainingQty(), models.KindClose)
		}
	}

	for sym, bp := range bySym {
		if _, ok := e.positions[sym]; ok {
			continue
		}
		if !bp.Qty.IsPositive() {
			continue
		}
		e.adoptPositionLocked(bp)
		if _, watched := e.watchlist[sym]; !watched {
			subs = append(subs, sym)
		}
	}

	// Sync watchlist flags; a position appearing under a pending entry is
	// the fill transition.
	for sym, entry := range e.watchlist {
		_, hasPos := e.positions[sym]
		if hasPos && !entry.HasPosition {
			entry.HasPosition = true
			entry.PendingEntryOrder = ""
			entry.HODFrozen = false
			entry.Armed = false
		} else if !hasPos {
			entry.HasPosition = false
		}
	}

	gaugeOpenPositions.Set(float64(len(e.positions)))
	e.mu.Unlock()

	e.subscribe(subs)
	e.unsubscribe(unsubs)
}

// removePositionLocked destroys a Position whose broker qty reached zero.
// Returns true when the symbol's feed subscription should be dropped (it is
// kept while the symbol stays on the watchlist).
func (e *Engine) removePositionLocked(sym string) bool {
	pos := e.positions[sym]
	delete(e.positions, sym)
	log.Printf("[%s] position closed (targets hit: %d, stop triggered: %v)",
		sym, pos.ProfitTargetsHit, pos.StopTriggered)

	if entry, ok := e.watchlist[sym]; ok {
		entry.HasPosition = false
		return false
	}
	return true
}

// adoptPositionLocked creates a Position for a holding the broker reports
// but we don't track: an entry fill, or a pre-existing position found at
// startup. Tier and stop derive from the broker's prices.
func (e *Engine) adoptPositionLocked(bp market.BrokerPosition) {
	price := bp.CurrentPrice
	if price.IsZero() {
		price = bp.AvgEntryPrice
	}
	tierIdx := models.TierForPrice(e.cfg.Tiers, price)
	if entry, ok := e.watchlist[bp.Symbol]; ok {
		tierIdx = entry.TierIndex
	}
	tier := e.tier(tierIdx)

	pos := &models.Position{
		Symbol:        bp.Symbol,
		Qty:           bp.Qty,
		InitialQty:    bp.Qty,
		AvgEntryPrice: bp.AvgEntryPrice,
		Mark:          price,
		StopPrice:     bp.AvgEntryPrice.Sub(models.Cents(tier.StopCentsOrDefault(e.cfg.GlobalStopCents))),
		PyramidsDone:  map[int]bool{},
		TierIndex:     tierIdx,
		OpenedAt:      e.now(),
	}
	pos.ProfitCents = pos.Mark.Sub(pos.AvgEntryPrice).Mul(hundred)
	e.positions[bp.Symbol] = pos

	log.Printf("[%s] position adopted: qty=%s avg=$%s stop=$%s tier=%d",
		bp.Symbol, bp.Qty, bp.AvgEntryPrice.StringFixed(2), pos.StopPrice.StringFixed(2), tierIdx)
}

// recomputeStopLocked re-derives the tier stop and applies it only if it is
// strictly more favorable than the current one. The stop never regresses.
func (e *Engine) recomputeStopLocked(pos *models.Position) {
	tier := e.tier(pos.TierIndex)
	candidate := pos.AvgEntryPrice.Sub(models.Cents(tier.StopCentsOrDefault(e.cfg.GlobalStopCents)))
	if tier.StopAfterTargets > 0 && pos.ProfitTargetsHit >= tier.StopAfterTargets && !tier.UseTrailingStop {
		if pos.AvgEntryPrice.GreaterThan(candidate) {
			candidate = pos.AvgEntryPrice
		}
	}
	if pos.StopPrice.IsZero() || candidate.GreaterThan(pos.StopPrice) {
		pos.StopPrice = candidate
	}
}

// catchUpTargetsLocked advances the hit counter when a fast move crossed
// rungs between quote updates. Each rung still fires exactly once; targets
// are never un-hit. At most one close is put in flight per cycle, so a
// multi-rung jump converges over successive reconciliations without
// overlapping partial closes.
func (e *Engine) catchUpTargetsLocked(pos *models.Position) {
	if pos.StopTriggered || pos.Closing {
		return
	}
	tier := e.tier(pos.TierIndex)
	for pos.ProfitTargetsHit < len(tier.Targets) {
		target := tier.Targets[pos.ProfitTargetsHit]
		if pos.ProfitCents.LessThan(target.TargetCents) {
			return
		}
		e.fireTargetLocked(pos, tier, target)
		if pos.Closing || pos.StopTriggered {
			return
		}
	}
}

// pollOrders reconciles tracked orders against the broker's open-order set:
// anything no longer open has settled, anything older than its kind timeout
// is canceled, and a timed-out close is immediately replaced.
func (e *Engine) pollOrders() {
	if !e.orderPollGate.tryStart() {
		return
	}
	defer e.orderPollGate.finish()

	fetchStart := e.now()
	var open []market.BrokerOrder
	err := e.dispatcher.Do(e.runCtx, "get open orders", func() error {
		var callErr error
		open, callErr = e.provider.GetOpenOrders()
		return callErr
	})
	if err != nil {
		log.Printf("ERROR: order poll skipped: %v", err)
		return
	}
	now := e.now()

	e.mu.Lock()
	openByID := make(map[string]market.BrokerOrder, len(open))
	for _, bo := range open {
		openByID[bo.ID] = bo
	}

	var timedOut []*models.TrackedOrder
	settled := false
	for id, o := range e.orders {
		// An order placed after the fetch began cannot be in the snapshot;
		// treating its absence as settlement would release its guard flags
		// while it is live broker-side. Leave it for the next poll.
		if o.PlacedAt.After(fetchStart) {
			continue
		}
		bo, stillOpen := openByID[id]
		if !stillOpen {
			// Filled or canceled broker-side; the position refresh below
			// picks up the result.
			delete(e.orders, id)
			e.clearOrderFlagsLocked(o)
			settled = true
			continue
		}
		o.FilledQty = bo.FilledQty
		if o.Age(now) > e.cfg.Timeout(o.Kind) {
			timedOut = append(timedOut, o)
		}
	}
	e.mu.Unlock()

	for _, o := range timedOut {
		cancelErr := e.dispatcher.Do(e.runCtx, "cancel "+o.ID, func() error {
			return e.provider.CancelOrder(o.ID)
		})
		if cancelErr != nil {
			log.Printf("ERROR: [%s] cancel of stale %s order %s failed: %v",
				o.Symbol, o.Kind, o.ID, cancelErr)
			continue
		}
		log.Printf("[%s] stale %s order %s canceled after %s", o.Symbol, o.Kind, o.ID, o.Age(now))

		e.mu.Lock()
		delete(e.orders, o.ID)
		e.clearOrderFlagsLocked(o)
		// A close that timed out must still exit the position.
		if o.Kind == models.KindClose || o.Kind == models.KindIOC {
			if pos, ok := e.positions[o.Symbol]; ok && pos.RemainingQty().IsPositive() {
				pos.Closing = true
				e.enqueueCloseLocked(pos, pos.RemainingQty(), models.KindClose)
			}
		}
		e.mu.Unlock()
	}

	if settled {
		go e.reconcilePositions()
	}
}

// clearOrderFlagsLocked releases the per-symbol flags held by a tracked
// order once it leaves the open set.
func (e *Engine) clearOrderFlagsLocked(o *models.TrackedOrder) {
	switch o.Kind {
	case models.KindEntry:
		if entry, ok := e.watchlist[o.Symbol]; ok && entry.PendingEntryOrder == o.ClientOrderID {
			entry.PendingEntryOrder = ""
			entry.HODFrozen = false
		}
	case models.KindClose, models.KindIOC:
		if pos, ok := e.positions[o.Symbol]; ok {
			pos.Closing = false
		}
	}
}
