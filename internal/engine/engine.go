package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"breakout_trading/internal/config"
	"breakout_trading/internal/dashboard"
	"breakout_trading/internal/market"
	"breakout_trading/internal/models"
	"breakout_trading/internal/storage"
)

// taskGate is the Idle|Running latch for a periodic task. A tick that fires
// while the previous run is still in flight is a no-op skip, never a queued
// retry.
type taskGate struct {
	running atomic.Bool
}

func (g *taskGate) tryStart() bool { return g.running.CompareAndSwap(false, true) }
func (g *taskGate) finish()        { g.running.Store(false) }

// Engine owns the three keyed stores (symbol → Position, symbol →
// WatchlistEntry, orderID → TrackedOrder). Every mutation funnels through
// mu; stream callbacks and timer ticks serialize behind it, so the strategy
// logic itself runs effectively single-threaded.
type Engine struct {
	cfg       *config.Config
	provider  market.Provider
	streamer  market.Streamer
	overrides *config.OverrideStore
	store     *storage.Store
	sink      dashboard.Sink

	dispatcher *Dispatcher
	queue      *OrderQueue

	mu        sync.Mutex
	positions map[string]*models.Position
	watchlist map[string]*models.WatchlistEntry
	orders    map[string]*models.TrackedOrder

	scanGate      taskGate
	reconcileGate taskGate
	orderPollGate taskGate

	runCtx context.Context
	now    func() time.Time
}

// New wires an engine around the provider. Attach the streamer afterwards
// (its handlers need the engine to exist first).
func New(cfg *config.Config, provider market.Provider, store *storage.Store, sink dashboard.Sink) *Engine {
	e := &Engine{
		cfg:       cfg,
		provider:  provider,
		store:     store,
		sink:      sink,
		overrides: config.NewOverrideStore(cfg.OverridesFile),
		dispatcher: NewDispatcher(
			time.Duration(cfg.DispatchSpacingMS)*time.Millisecond,
			time.Duration(cfg.RetryBaseMS)*time.Millisecond,
			cfg.RetryMaxAttempts,
		),
		positions: map[string]*models.Position{},
		watchlist: map[string]*models.WatchlistEntry{},
		orders:    map[string]*models.TrackedOrder{},
		runCtx:    context.Background(),
		now:       time.Now,
	}
	e.queue = NewOrderQueue(e.submitOrder)
	return e
}

// AttachStreamer hands the engine its feed. Must be called before Run.
func (e *Engine) AttachStreamer(s market.Streamer) { e.streamer = s }

// Restore loads a persisted snapshot into the stores. Call once, before
// Run; the first reconciliation then repairs any drift accumulated while
// the process was down.
func (e *Engine) Restore(state models.EngineState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions = state.Positions
	e.watchlist = state.Watchlist
	e.orders = state.Orders
	for _, p := range e.positions {
		if p.PyramidsDone == nil {
			p.PyramidsDone = map[int]bool{}
		}
	}
	log.Printf("State restored: %d positions, %d watchlist, %d tracked orders",
		len(e.positions), len(e.watchlist), len(e.orders))
}

// Snapshot copies the stores into a persistable state.
func (e *Engine) Snapshot() models.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := models.NewEngineState()
	for k, v := range e.positions {
		cp := *v
		state.Positions[k] = &cp
	}
	for k, v := range e.watchlist {
		cp := *v
		state.Watchlist[k] = &cp
	}
	for k, v := range e.orders {
		cp := *v
		state.Orders[k] = &cp
	}
	return state
}

func (e *Engine) saveState() {
	e.store.Save(e.Snapshot())
}

// Run resubscribes the restored symbol set, runs a first reconciliation,
// then multiplexes the periodic tasks until ctx is canceled. On shutdown a
// final best-effort snapshot is written.
func (e *Engine) Run(ctx context.Context) {
	e.runCtx = ctx
	go e.queue.Run(ctx)

	e.resubscribeRestored()
	e.reconcilePositions()
	e.rebuildWatchlist()

	scan := time.NewTicker(time.Duration(e.cfg.ScanIntervalSec) * time.Second)
	reconcile := time.NewTicker(time.Duration(e.cfg.ReconcileIntervalSec) * time.Second)
	orderPoll := time.NewTicker(time.Duration(e.cfg.OrderPollIntervalSec) * time.Second)
	snapshot := time.NewTicker(time.Duration(e.cfg.SnapshotIntervalSec) * time.Second)
	defer scan.Stop()
	defer reconcile.Stop()
	defer orderPoll.Stop()
	defer snapshot.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Engine stopping, writing final snapshot...")
			e.saveState()
			return
		case <-scan.C:
			go func() {
				e.rebuildWatchlist()
				e.publishSummary()
			}()
		case <-reconcile.C:
			go e.reconcilePositions()
		case <-orderPoll.C:
			go e.pollOrders()
		case <-snapshot.C:
			go e.saveState()
		}
	}
}

func (e *Engine) resubscribeRestored() {
	e.mu.Lock()
	symbols := make([]string, 0, len(e.watchlist)+len(e.positions))
	seen := map[string]bool{}
	for sym := range e.watchlist {
		symbols = append(symbols, sym)
		seen[sym] = true
	}
	for sym := range e.positions {
		if !seen[sym] {
			symbols = append(symbols, sym)
		}
	}
	e.mu.Unlock()

	e.subscribe(symbols)
}

func (e *Engine) subscribe(symbols []string) {
	if e.streamer == nil || len(symbols) == 0 {
		return
	}
	if err := e.streamer.Subscribe(symbols); err != nil {
		log.Printf("ERROR: feed subscribe failed for %v: %v", symbols, err)
	}
}

func (e *Engine) unsubscribe(symbols []string) {
	if e.streamer == nil || len(symbols) == 0 {
		return
	}
	if err := e.streamer.Unsubscribe(symbols); err != nil {
		log.Printf("ERROR: feed unsubscribe failed for %v: %v", symbols, err)
	}
}

// tier returns the tier row for an index, clamped to the table.
func (e *Engine) tier(idx int) models.Tier {
	tiers := e.cfg.Tiers
	if idx < 0 || idx >= len(tiers) {
		idx = len(tiers) - 1
	}
	return tiers[idx]
}

// submitOrder is the queue drain target: one broker submission through the
// dispatcher, then bookkeeping. A fatal or retries-exhausted error rolls
// back the request's arming flags so the strategy can converge on a retry
// path of its own (re-arm, reconcile-driven close replacement).
func (e *Engine) submitOrder(req OrderRequest) error {
	var placed *market.BrokerOrder
	label := fmt.Sprintf("place %s %s", req.Kind, req.Spec.Symbol)
	err := e.dispatcher.Do(e.runCtx, label, func() error {
		var callErr error
		placed, callErr = e.provider.PlaceOrder(req.Spec)
		return callErr
	})
	if err != nil {
		mtxOrderFailures.Inc()
		e.rollbackFailedOrder(req)
		return err
	}

	e.mu.Lock()
	e.orders[placed.ID] = &models.TrackedOrder{
		ID:            placed.ID,
		ClientOrderID: placed.ClientOrderID,
		Symbol:        placed.Symbol,
		Kind:          req.Kind,
		Side:          placed.Side,
		Qty:           placed.Qty,
		LimitPrice:    placed.LimitPrice,
		PlacedAt:      e.now(),
	}
	e.mu.Unlock()

	mtxOrders.WithLabelValues(string(req.Kind)).Inc()
	log.Printf("[%s] %s order %s accepted: qty=%s limit=$%s",
		req.Spec.Symbol, req.Kind, placed.ID, placed.Qty, placed.LimitPrice.StringFixed(2))

	// Broker state changed; refresh our view of it.
	go e.reconcilePositions()
	return nil
}

// rollbackFailedOrder releases the flags an enqueue set, so a dropped order
// doesn't wedge the symbol. One-way latches (StopTriggered, TrailingActive,
// PyramidsDone) deliberately stay set: the reconciler re-issues closes for a
// latched stop, and a pyramid level fires at most once even if its order was
// lost.
func (e *Engine) rollbackFailedOrder(req OrderRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch req.Kind {
	case models.KindEntry:
		if entry, ok := e.watchlist[req.Spec.Symbol]; ok &&
			entry.PendingEntryOrder == req.Spec.ClientOrderID {
			entry.PendingEntryOrder = ""
			entry.HODFrozen = false
		}
	case models.KindClose, models.KindIOC:
		if pos, ok := e.positions[req.Spec.Symbol]; ok {
			pos.Closing = false
		}
	}
}

func (e *Engine) publishSummary() {
	e.mu.Lock()
	summary := dashboard.Summary{
		WatchlistSize: len(e.watchlist),
		OpenOrders:    len(e.orders),
	}
	for _, p := range e.positions {
		summary.Positions = append(summary.Positions, dashboard.PositionView{
			Symbol:      p.Symbol,
			Qty:         p.Qty,
			AvgEntry:    p.AvgEntryPrice,
			Mark:        p.Mark,
			ProfitCents: p.ProfitCents,
			TargetsHit:  p.ProfitTargetsHit,
			StopPrice:   p.StopPrice,
		})
	}
	e.mu.Unlock()

	e.sink.Publish(summary)
}
