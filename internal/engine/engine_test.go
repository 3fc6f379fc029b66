package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"breakout_trading/internal/config"
	"breakout_trading/internal/dashboard"
	"breakout_trading/internal/market"
	"breakout_trading/internal/models"
	"breakout_trading/internal/storage"
)

// spyProvider implements market.Provider for tests: canned responses,
// recorded calls.
type spyProvider struct {
	mu sync.Mutex

	positions  []market.BrokerPosition
	openOrders []market.BrokerOrder
	movers     []market.Mover
	snapshots  map[string]*market.Snapshot
	highs      map[string]decimal.Decimal
	volumes    map[string]int64

	moversErr error
	placeErr  error

	// onOpenOrders, when set, runs at the start of GetOpenOrders, before the
	// canned response is returned.
	onOpenOrders func()

	placed   []market.OrderSpec
	canceled []string
}

func (s *spyProvider) GetClock() (*market.Clock, error) {
	return &market.Clock{IsOpen: true}, nil
}

func (s *spyProvider) GetPositions() ([]market.BrokerPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]market.BrokerPosition{}, s.positions...), nil
}

func (s *spyProvider) GetOpenOrders() ([]market.BrokerOrder, error) {
	if s.onOpenOrders != nil {
		s.onOpenOrders()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]market.BrokerOrder{}, s.openOrders...), nil
}

func (s *spyProvider) PlaceOrder(spec market.OrderSpec) (*market.BrokerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placeErr != nil {
		return nil, s.placeErr
	}
	s.placed = append(s.placed, spec)
	return &market.BrokerOrder{
		ID:            fmt.Sprintf("ord-%d", len(s.placed)),
		ClientOrderID: spec.ClientOrderID,
		Symbol:        spec.Symbol,
		Side:          spec.Side,
		Qty:           spec.Qty,
		LimitPrice:    spec.LimitPrice,
		Status:        "new",
	}, nil
}

func (s *spyProvider) CancelOrder(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = append(s.canceled, orderID)
	return nil
}

func (s *spyProvider) GetMovers(top int) ([]market.Mover, error) {
	if s.moversErr != nil {
		return nil, s.moversErr
	}
	return s.movers, nil
}

func (s *spyProvider) GetSnapshot(symbol string) (*market.Snapshot, error) {
	if snap, ok := s.snapshots[symbol]; ok {
		return snap, nil
	}
	return nil, fmt.Errorf("no snapshot for %s", symbol)
}

func (s *spyProvider) GetIntradayHigh(symbol string) (decimal.Decimal, error) {
	if h, ok := s.highs[symbol]; ok {
		return h, nil
	}
	return decimal.Zero, fmt.Errorf("no bars for %s", symbol)
}

func (s *spyProvider) GetIntradayVolume(symbol string) (int64, error) {
	if v, ok := s.volumes[symbol]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("no bars for %s", symbol)
}

// spyStreamer records subscription changes.
type spyStreamer struct {
	subscribed   []string
	unsubscribed []string
}

func (s *spyStreamer) Connect(ctx context.Context) error { return nil }
func (s *spyStreamer) Subscribe(symbols []string) error {
	s.subscribed = append(s.subscribed, symbols...)
	return nil
}
func (s *spyStreamer) Unsubscribe(symbols []string) error {
	s.unsubscribed = append(s.unsubscribed, symbols...)
	return nil
}
func (s *spyStreamer) Symbols() []string { return nil }

func testTiers() []models.Tier {
	cents := decimal.NewFromInt
	return []models.Tier{
		{
			MinPrice:         decimal.Zero,
			MaxPrice:         decimal.Zero, // catch-all
			EntryOffsetCents: decimal.Zero,
			LimitOffsetCents: cents(10),
			StopCents:        cents(20),
			Targets: []models.ProfitTarget{
				{TargetCents: cents(8), PercentToClose: cents(10)},
				{TargetCents: cents(20), PercentToClose: cents(40)},
			},
			Pyramids: []models.PyramidLevel{
				{PriceIncreaseCents: cents(12), PercentToAdd: cents(25), OffsetCents: cents(5)},
			},
		},
	}
}

func testConfig(tiers []models.Tier) *config.Config {
	return &config.Config{
		MinGapPct:          10,
		MinScanPrice:       1,
		MaxScanPrice:       500,
		MoversTop:          10,
		VolumeMinPremarket: 500_000,
		VolumeMinMorning:   1_000_000,
		VolumeMinAfter:     300_000,

		EntryStart:      "00:00",
		EntryEnd:        "23:59",
		MorningCutoff:   "11:00",
		HaltCooldownSec: 300,

		DispatchSpacingMS: 0,
		RetryMaxAttempts:  1,
		RetryBaseMS:       1,

		EntryTimeoutSec:   30,
		CloseTimeoutSec:   15,
		PyramidTimeoutSec: 30,
		OrderTimeoutSec:   60,

		GlobalStopCents:   decimal.NewFromInt(30),
		TrailingWindowSec: 10,
		EntryNotional:     decimal.NewFromInt(5000),

		Tiers: tiers,
	}
}

func newTestEngine(p market.Provider, tiers []models.Tier) *Engine {
	return New(testConfig(tiers), p, &storage.Store{Path: "unused_state.json"}, dashboard.LogSink{})
}

// drainRequests pops everything currently queued, in service order.
func drainRequests(q *OrderQueue) []OrderRequest {
	var out []OrderRequest
	for {
		req, ok := q.pop()
		if !ok {
			return out
		}
		out = append(out, req)
	}
}
