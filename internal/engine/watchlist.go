package engine

import (
	"log"
	"time"

	"github.com/shopspring/decimal"

	"breakout_trading/internal/config"
	"breakout_trading/internal/models"
)

const marketOpenMinutes = 9*60 + 30

type candidate struct {
	symbol   string
	price    decimal.Decimal
	hod      decimal.Decimal
	pinned   bool
	fetchErr bool
}

// rebuildWatchlist refreshes the candidate set from the movers scan plus
// manual overrides. All network work happens before any state is touched: a
// failed scan logs and leaves the watchlist exactly as it was.
func (e *Engine) rebuildWatchlist() {
	if !e.scanGate.tryStart() {
		return
	}
	defer e.scanGate.finish()

	if _, err := e.overrides.Reload(); err != nil {
		log.Printf("WARN: override file reload failed, keeping previous: %v", err)
	}
	ov := e.overrides.Current()

	movers, err := e.provider.GetMovers(e.cfg.MoversTop)
	if err != nil {
		mtxScans.WithLabelValues("error").Inc()
		log.Printf("ERROR: movers scan failed, watchlist unchanged: %v", err)
		return
	}

	now := e.now()
	volumeMin := e.volumeThreshold(now)

	candidates := map[string]candidate{}
	// keep holds symbols that still looked alive but whose per-symbol fetch
	// failed; they are neither added nor removed this cycle.
	keep := map[string]bool{}

	for _, m := range movers {
		sym := m.Symbol
		if ov.ForceRemove(sym) {
			continue
		}
		if m.PercentChange < e.cfg.MinGapPct {
			continue
		}
		price, _ := m.Price.Float64()
		if price < e.cfg.MinScanPrice || price > e.cfg.MaxScanPrice {
			continue
		}
		c, ok := e.qualify(sym, m.Price, volumeMin)
		if !ok {
			if c.fetchErr {
				keep[sym] = true
			}
			continue
		}
		candidates[sym] = c
	}

	// Manual adds bypass every scan filter.
	for _, sym := range ov.Add {
		if _, ok := candidates[sym]; ok {
			c := candidates[sym]
			c.pinned = true
			candidates[sym] = c
			continue
		}
		if ov.ForceRemove(sym) {
			continue
		}
		c, ok := e.forceQualify(sym)
		if !ok {
			keep[sym] = true
			continue
		}
		candidates[sym] = c
	}

	added, removed := e.applyScanLocked(candidates, keep, ov)

	e.subscribe(added)
	e.unsubscribe(removed)
	mtxScans.WithLabelValues("ok").Inc()
	if len(added) > 0 || len(removed) > 0 {
		log.Printf("Watchlist rebuilt: +%v -%v (%d total)", added, removed, e.watchlistSize())
	}
}

// qualify applies the volume filter and fetches the high-of-day reference.
func (e *Engine) qualify(symbol string, price decimal.Decimal, volumeMin int64) (candidate, bool) {
	c := candidate{symbol: symbol, price: price}

	snap, err := e.provider.GetSnapshot(symbol)
	if err != nil {
		log.Printf("WARN: [%s] snapshot fetch failed, skipping this cycle: %v", symbol, err)
		c.fetchErr = true
		return c, false
	}
	volume := snap.DayVolume
	if volume < volumeMin {
		// The snapshot daily bar can miss the pre-market tape; the summed
		// minute bars start at 04:00 and are the better count.
		if iv, ivErr := e.provider.GetIntradayVolume(symbol); ivErr == nil && iv > volume {
			volume = iv
		}
	}
	if volume < volumeMin {
		return c, false
	}
	if !snap.LastPrice.IsZero() {
		c.price = snap.LastPrice
	}

	hod, err := e.provider.GetIntradayHigh(symbol)
	if err != nil || hod.IsZero() {
		// Fall back to the snapshot daily high rather than drop the symbol.
		hod = snap.DailyHigh
	}
	if hod.IsZero() {
		log.Printf("WARN: [%s] no usable high-of-day, skipping this cycle", symbol)
		c.fetchErr = true
		return c, false
	}
	c.hod = hod
	return c, true
}

// forceQualify builds a candidate for a manual override add, no filters.
func (e *Engine) forceQualify(symbol string) (candidate, bool) {
	snap, err := e.provider.GetSnapshot(symbol)
	if err != nil {
		log.Printf("WARN: [%s] override add failed, snapshot unavailable: %v", symbol, err)
		return candidate{}, false
	}
	hod, err := e.provider.GetIntradayHigh(symbol)
	if err != nil || hod.IsZero() {
		hod = snap.DailyHigh
	}
	if hod.IsZero() || snap.LastPrice.IsZero() {
		log.Printf("WARN: [%s] override add failed, no price data", symbol)
		return candidate{}, false
	}
	return candidate{symbol: symbol, price: snap.LastPrice, hod: hod, pinned: true}, true
}

// applyScanLocked merges the scan result into the watchlist in one critical
// section and returns the symbols to (un)subscribe.
func (e *Engine) applyScanLocked(candidates map[string]candidate, keep map[string]bool, ov *config.Overrides) (added, removed []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for sym, c := range candidates {
		entry, ok := e.watchlist[sym]
		if !ok {
			e.watchlist[sym] = &models.WatchlistEntry{
				Symbol:    sym,
				HighOfDay: c.hod,
				// Tier is fixed at creation from the add-time price.
				TierIndex: models.TierForPrice(e.cfg.Tiers, c.price),
				Pinned:    c.pinned,
				AddedAt:   e.now(),
			}
			if _, hasPos := e.positions[sym]; hasPos {
				e.watchlist[sym].HasPosition = true
			}
			added = append(added, sym)
			continue
		}
		entry.Pinned = c.pinned
		if !entry.HODFrozen && c.hod.GreaterThan(entry.HighOfDay) {
			entry.HighOfDay = c.hod
		}
	}

	for sym, entry := range e.watchlist {
		entry.Pinned = ov.ForceAdd(sym)
		if _, ok := candidates[sym]; ok {
			continue
		}
		if keep[sym] {
			continue
		}
		if ov.ForceRemove(sym) && !entry.HasPosition {
			delete(e.watchlist, sym)
			removed = append(removed, sym)
			continue
		}
		if entry.Pinned || entry.HasPosition || entry.PendingEntryOrder != "" {
			continue
		}
		delete(e.watchlist, sym)
		removed = append(removed, sym)
	}

	gaugeWatchlistSize.Set(float64(len(e.watchlist)))
	return added, removed
}

// volumeThreshold picks the time-of-day volume bar: pre-market is the
// strictest, the open-to-cutoff stretch is high, the rest of the day low.
func (e *Engine) volumeThreshold(now time.Time) int64 {
	t := now.In(config.MarketLoc)
	minutes := t.Hour()*60 + t.Minute()
	cutoff := parseMinutes(e.cfg.MorningCutoff, 11*60)
	switch {
	case minutes < marketOpenMinutes:
		return e.cfg.VolumeMinPremarket
	case minutes < cutoff:
		return e.cfg.VolumeMinMorning
	default:
		return e.cfg.VolumeMinAfter
	}
}

func (e *Engine) watchlistSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.watchlist)
}
