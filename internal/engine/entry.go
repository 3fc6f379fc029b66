package engine

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"breakout_trading/internal/config"
	"breakout_trading/internal/market"
	"breakout_trading/internal/models"
)

// OnTrade handles a trade print for a watchlisted symbol. Entry evaluation
// runs against the pre-print high-of-day, then the reference level advances
// (unless frozen by an outstanding entry order).
func (e *Engine) OnTrade(symbol string, price float64, at time.Time) {
	if math.IsNaN(price) || price <= 0 {
		log.Printf("WARN: [%s] discarding bad trade print %v", symbol, price)
		return
	}
	p := decimal.NewFromFloat(price)

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.watchlist[symbol]
	if !ok {
		return
	}
	e.evaluateEntryLocked(entry, p, at)
	if !entry.HODFrozen && p.GreaterThan(entry.HighOfDay) {
		entry.HighOfDay = p
	}
}

// OnStatus handles a trading-status event. A halt freezes all evaluation
// for the symbol; the resume timestamp starts the cooldown window.
func (e *Engine) OnStatus(symbol string, halted bool, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.watchlist[symbol]
	if !ok {
		return
	}
	if halted && !entry.Halted {
		mtxHalts.Inc()
		log.Printf("[%s] trading halted", symbol)
	}
	if !halted && entry.Halted {
		log.Printf("[%s] trading resumed, cooldown %ds", symbol, e.cfg.HaltCooldownSec)
		entry.LastHalt = at
	}
	entry.Halted = halted
}

// evaluateEntryLocked runs the arming state machine for one trade print.
//
//	Idle -> Armed: first print at or above HOD + tier entry offset
//	Armed -> PendingEntry: next qualifying print enqueues the limit buy and
//	freezes HOD until the order resolves
func (e *Engine) evaluateEntryLocked(entry *models.WatchlistEntry, price decimal.Decimal, at time.Time) {
	if entry.HasPosition || entry.PendingEntryOrder != "" {
		return
	}
	if entry.Halted {
		return
	}
	if !entry.LastHalt.IsZero() &&
		at.Sub(entry.LastHalt) < time.Duration(e.cfg.HaltCooldownSec)*time.Second {
		return
	}
	if !e.withinEntryWindow(at) {
		return
	}
	if entry.HighOfDay.IsZero() {
		log.Printf("WARN: [%s] no high-of-day reference, skipping entry evaluation", entry.Symbol)
		return
	}

	tier := e.tier(entry.TierIndex)
	trigger := entry.HighOfDay.Add(models.Cents(tier.EntryOffsetCents))
	if price.LessThan(trigger) {
		return
	}
	if !entry.Armed {
		entry.Armed = true
		return
	}

	limitPrice := price.Add(models.Cents(tier.LimitOffsetCents))
	qty := e.cfg.EntryNotional.Div(limitPrice).Floor()
	if !qty.IsPositive() {
		log.Printf("WARN: [%s] entry notional too small for limit $%s, skipping",
			entry.Symbol, limitPrice.StringFixed(2))
		return
	}

	cid := market.NewClientOrderID(models.KindEntry)
	entry.PendingEntryOrder = cid
	entry.HODFrozen = true
	entry.Armed = false
	entry.PlannedEntry = limitPrice

	log.Printf("[%s] breakout: print $%s >= trigger $%s, buying %s @ $%s",
		entry.Symbol, price.StringFixed(2), trigger.StringFixed(2), qty, limitPrice.StringFixed(2))

	e.queue.Enqueue(OrderRequest{
		Kind: models.KindEntry,
		Spec: market.OrderSpec{
			Symbol:        entry.Symbol,
			Side:          "buy",
			Qty:           qty,
			Limit:         true,
			LimitPrice:    limitPrice,
			TimeInForce:   "day",
			ExtendedHours: e.cfg.ExtendedHours,
			ClientOrderID: cid,
		},
	}, PriorityEntry)
}

// withinEntryWindow checks the configured trading-hours gate in market time.
func (e *Engine) withinEntryWindow(at time.Time) bool {
	t := at.In(config.MarketLoc)
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= parseMinutes(e.cfg.EntryStart, 9*60+30) &&
		minutes < parseMinutes(e.cfg.EntryEnd, 15*60+55)
}

// parseMinutes converts "HH:MM" to minutes-of-day.
func parseMinutes(s string, fallback int) int {
	var h, m int
	if n, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil || n != 2 {
		return fallback
	}
	return h*60 + m
}
