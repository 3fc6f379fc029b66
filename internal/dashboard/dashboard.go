package dashboard

import (
	"log"

	"github.com/shopspring/decimal"
)

// PositionView is one row of the published snapshot.
type PositionView struct {
	Symbol      string
	Qty         decimal.Decimal
	AvgEntry    decimal.Decimal
	Mark        decimal.Decimal
	ProfitCents decimal.Decimal
	TargetsHit  int
	StopPrice   decimal.Decimal
}

// Summary is the structured state snapshot pushed on the scan cadence.
type Summary struct {
	WatchlistSize int
	OpenOrders    int
	Positions     []PositionView
}

// Sink receives display events from the engine. Implementations must return
// quickly and must not panic back into the caller; the engine treats every
// call as fire-and-forget.
type Sink interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Publish(s Summary)
}

// LogSink writes everything through the engine log. It is the default sink
// when no external dashboard is attached.
type LogSink struct{}

func (LogSink) Info(msg string)  { log.Printf("INFO: %s", msg) }
func (LogSink) Warn(msg string)  { log.Printf("WARN: %s", msg) }
func (LogSink) Error(msg string) { log.Printf("ERROR: %s", msg) }

func (LogSink) Publish(s Summary) {
	log.Printf("SNAPSHOT: watchlist=%d open_orders=%d positions=%d",
		s.WatchlistSize, s.OpenOrders, len(s.Positions))
	for _, p := range s.Positions {
		log.Printf("  [%s] qty=%s avg=$%s mark=$%s profit=%s¢ targets=%d stop=$%s",
			p.Symbol, p.Qty, p.AvgEntry.StringFixed(2), p.Mark.StringFixed(2),
			p.ProfitCents.StringFixed(1), p.TargetsHit, p.StopPrice.StringFixed(2))
	}
}
