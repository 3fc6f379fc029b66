package market

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
)

// Feed event callbacks. All three are invoked from the stream goroutine; the
// engine serializes behind its own lock.
type (
	QuoteHandler  func(symbol string, bid, ask float64, at time.Time)
	TradeHandler  func(symbol string, price float64, at time.Time)
	StatusHandler func(symbol string, halted bool, at time.Time)
)

// Streamer is the live market-data feed boundary.
type Streamer interface {
	Connect(ctx context.Context) error
	Subscribe(symbols []string) error
	Unsubscribe(symbols []string) error
	Symbols() []string
}

// AlpacaStreamer implements Streamer over the Alpaca stocks websocket,
// delivering quotes, trades and trading statuses for the subscribed set.
type AlpacaStreamer struct {
	client   *stream.StocksClient
	onQuote  QuoteHandler
	onTrade  TradeHandler
	onStatus StatusHandler

	mu        sync.Mutex
	symbols   map[string]bool
	reconnect bool
}

// NewAlpacaStreamer wires the three handlers into a stocks stream client on
// the IEX feed.
func NewAlpacaStreamer(onQuote QuoteHandler, onTrade TradeHandler, onStatus StatusHandler) *AlpacaStreamer {
	return &AlpacaStreamer{
		client: stream.NewStocksClient(
			marketdata.IEX,
			stream.WithCredentials(os.Getenv("APCA_API_KEY_ID"), os.Getenv("APCA_API_SECRET_KEY")),
			stream.WithReconnectSettings(10, 500*time.Millisecond),
		),
		onQuote:   onQuote,
		onTrade:   onTrade,
		onStatus:  onStatus,
		symbols:   map[string]bool{},
		reconnect: true,
	}
}

// Connect opens the websocket in the background and keeps it alive with a
// fixed-backoff manual loop after the SDK's own retries give up. Each manual
// reconnect re-subscribes the full current symbol set.
func (s *AlpacaStreamer) Connect(ctx context.Context) error {
	go func() {
		backoff := 2 * time.Second
		for {
			log.Println("Connecting to market-data stream...")
			err := s.client.Connect(ctx)
			if ctx.Err() != nil || !s.reconnect {
				return
			}
			log.Printf("ERROR: stream connection lost: %v (retrying in %s)", err, backoff)
			time.Sleep(backoff)
			s.resubscribeAll()
		}
	}()
	return nil
}

func (s *AlpacaStreamer) resubscribeAll() {
	current := s.Symbols()
	if len(current) == 0 {
		return
	}
	if err := s.Subscribe(current); err != nil {
		log.Printf("ERROR: stream resubscribe failed for %d symbols: %v", len(current), err)
	}
}

// Subscribe adds symbols to the live quote/trade/status subscriptions.
func (s *AlpacaStreamer) Subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	if err := s.client.SubscribeToQuotes(s.handleQuote, symbols...); err != nil {
		return err
	}
	if err := s.client.SubscribeToTrades(s.handleTrade, symbols...); err != nil {
		return err
	}
	if err := s.client.SubscribeToStatuses(s.handleStatus, symbols...); err != nil {
		return err
	}
	s.mu.Lock()
	for _, sym := range symbols {
		s.symbols[sym] = true
	}
	s.mu.Unlock()
	return nil
}

// Unsubscribe drops symbols from all three channels.
func (s *AlpacaStreamer) Unsubscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	if err := s.client.UnsubscribeFromQuotes(symbols...); err != nil {
		return err
	}
	if err := s.client.UnsubscribeFromTrades(symbols...); err != nil {
		return err
	}
	if err := s.client.UnsubscribeFromStatuses(symbols...); err != nil {
		return err
	}
	s.mu.Lock()
	for _, sym := range symbols {
		delete(s.symbols, sym)
	}
	s.mu.Unlock()
	return nil
}

// Symbols returns the current subscription set, sorted.
func (s *AlpacaStreamer) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *AlpacaStreamer) handleQuote(q stream.Quote) {
	if s.onQuote != nil {
		s.onQuote(q.Symbol, q.BidPrice, q.AskPrice, q.Timestamp)
	}
}

func (s *AlpacaStreamer) handleTrade(t stream.Trade) {
	if s.onTrade != nil {
		s.onTrade(t.Symbol, t.Price, t.Timestamp)
	}
}

func (s *AlpacaStreamer) handleStatus(ts stream.TradingStatus) {
	if s.onStatus == nil {
		return
	}
	halted := ts.StatusCode == "H" || strings.Contains(strings.ToLower(ts.StatusMsg), "halt")
	s.onStatus(ts.Symbol, halted, ts.Timestamp)
}
